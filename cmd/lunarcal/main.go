package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lunarcal/internal/alert"
	"lunarcal/internal/config"
	"lunarcal/internal/holiday"
	appLog "lunarcal/internal/log"
	"lunarcal/internal/lunar"
	"lunarcal/internal/store"
	"lunarcal/internal/web"
)

// flagConfig holds CLI flag values that override or extend the config file.
type flagConfig struct {
	configPath string
	listen     string
	dbPath     string
	once       bool
	seed       bool
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := runHashPassword(); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	appLog.Info("lunarcal starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.dbPath != "" {
		conf.DBPath = flags.dbPath
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"week_start", conf.WeekStart,
		"alert_cron", conf.AlertCron,
		"db_path", conf.DBPath,
		"once", flags.once,
		"seed", flags.seed,
	)

	if err := run(conf, flags); err != nil {
		appLog.Error("lunarcal failed", err)
		os.Exit(1)
	}
	appLog.Info("lunarcal exiting")
}

func run(conf *config.Config, flags flagConfig) error {
	st, err := store.Open(conf.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.seed {
		batch := holiday.Seed(conf.HolidaySeed.FromYear, conf.HolidaySeed.ToYear)
		n, err := st.ImportReminders(ctx, batch)
		if err != nil {
			return err
		}
		appLog.Info("holidays seeded",
			"from", conf.HolidaySeed.FromYear, "to", conf.HolidaySeed.ToYear,
			"generated", len(batch), "inserted", n)
	}

	conv := lunar.New()
	loc := web.ResolveLocation(conf.Timezone)
	feed := alert.NewFeed(conf.AlertFeedSize)
	dispatcher := alert.NewDispatcher(st, conv, alert.MultiNotifier{alert.LogNotifier{}, feed}, loc)

	if flags.once {
		delivered, err := dispatcher.Check(ctx, time.Now())
		appLog.Info("single alert check done", "delivered", len(delivered))
		return err
	}

	if err := dispatcher.Start(conf.AlertCron); err != nil {
		return err
	}
	defer dispatcher.Stop()

	srv := &http.Server{
		Addr:              conf.Listen,
		Handler:           web.NewServer(conf, st, conv, feed).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/lunarcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.dbPath, "db", "", "SQLite database path (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one alert check and exit")
	flag.BoolVar(&cfg.seed, "seed", false, "Import the holiday seed set before starting")

	flag.Parse()

	return cfg
}
