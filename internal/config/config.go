package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API. When
// PasswordHash (an Argon2id hash from `lunarcal hash-password`) is set it is
// used instead of the plain Password.
type BasicAuthConfig struct {
	Username     string `yaml:"username" json:"username"`
	Password     string `yaml:"password,omitempty" json:"password,omitempty"`
	PasswordHash string `yaml:"password_hash,omitempty" json:"password_hash,omitempty"`
}

// HolidaySeedConfig bounds the year range used when seeding holidays.
type HolidaySeedConfig struct {
	FromYear int `yaml:"from_year" json:"from_year"`
	ToYear   int `yaml:"to_year" json:"to_year"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is an optional IANA zone (e.g. "Asia/Seoul"). Empty means the
	// host's local clock.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls the first column of the month grid:
	//   - "sunday" (default)
	//   - "monday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	// AlertCron is the cron schedule for alert checks. Alerts are matched to
	// the minute, so anything coarser than "* * * * *" will miss alerts.
	AlertCron string `yaml:"alert_cron" json:"alert_cron"`

	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path" json:"db_path"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// AlertFeedSize caps how many fired alerts /api/alerts remembers.
	AlertFeedSize int `yaml:"alert_feed_size" json:"alert_feed_size"`

	HolidaySeed HolidaySeedConfig `yaml:"holiday_seed" json:"holiday_seed"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen        = "127.0.0.1:3000"
	defaultWeekStart     = "sunday"
	defaultAlertCron     = "* * * * *"
	defaultDBPath        = "/var/lib/lunarcal/lunar_reminder.db"
	defaultLogLevel      = "info"
	defaultAlertFeedSize = 50
	defaultSeedFrom      = 2024
	defaultSeedTo        = 2030
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        defaultListen,
		WeekStart:     defaultWeekStart,
		AlertCron:     defaultAlertCron,
		DBPath:        defaultDBPath,
		LogLevel:      defaultLogLevel,
		AlertFeedSize: defaultAlertFeedSize,
		HolidaySeed: HolidaySeedConfig{
			FromYear: defaultSeedFrom,
			ToYear:   defaultSeedTo,
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = defaultWeekStart
	}
	if c.AlertCron == "" {
		c.AlertCron = defaultAlertCron
	}
	if c.DBPath == "" {
		c.DBPath = defaultDBPath
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.AlertFeedSize <= 0 {
		c.AlertFeedSize = defaultAlertFeedSize
	}
	if c.HolidaySeed.FromYear <= 0 {
		c.HolidaySeed.FromYear = defaultSeedFrom
	}
	if c.HolidaySeed.ToYear < c.HolidaySeed.FromYear {
		c.HolidaySeed.ToYear = c.HolidaySeed.FromYear + (defaultSeedTo - defaultSeedFrom)
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and returned.
//   - Otherwise the YAML is unmarshalled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".lunarcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method that delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
