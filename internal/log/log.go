package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	mu       sync.Mutex
	logger   = stdlog.New(os.Stderr, "", 0)
	minLevel = LevelInfo
)

// rank orders levels so enabled() can compare them.
var rank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := rank[l]; !ok {
		l = LevelInfo
	}
	minLevel = l
}

// ParseLevel maps a config string ("debug", "info", ...) to a Level.
// Unknown values fall back to INFO.
func ParseLevel(s string) Level {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := rank[l]; !ok {
		return LevelInfo
	}
	return l
}

// SetOutput redirects log lines; tests use it to capture output.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
}

func Debug(msg string, kv ...any) {
	logWithLevel(LevelDebug, msg, kv...)
}

func Info(msg string, kv ...any) {
	logWithLevel(LevelInfo, msg, kv...)
}

func Warn(msg string, kv ...any) {
	logWithLevel(LevelWarn, msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	logWithLevel(LevelError, msg, extended...)
}

func logWithLevel(level Level, msg string, kv ...any) {
	mu.Lock()
	defer mu.Unlock()
	if !enabled(level) {
		return
	}

	// 2025-01-01T00:00:00Z [LEVEL] msg key=value ...
	line := time.Now().Format(time.RFC3339Nano) + " [" + string(level) + "] " + msg
	if len(kv) > 0 {
		line += formatKVs(kv...)
	}

	logger.Println(line)
}

func enabled(level Level) bool {
	return rank[level] >= rank[minLevel]
}

func formatKVs(kv ...any) string {
	var b strings.Builder
	// Expect kv as pairs: key, value, key, value, ...
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		b.WriteString(" " + key + "=" + quoteIfNeeded(fmt.Sprint(kv[i+1])))
	}
	// If odd number of args, last one is ignored.
	return b.String()
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"=") {
		return fmt.Sprintf("%q", s)
	}
	return s
}
