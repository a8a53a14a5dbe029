package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls log output and rotation
type Config struct {
	Level      string // debug, info, warn, error
	Dir        string // log directory; empty disables file output
	MaxSizeMB  int    // max size of a log file before rotation
	MaxBackups int    // rotated files to retain
	MaxAgeDays int    // days to retain rotated files
	Compress   bool   // gzip rotated files
}

// DefaultConfig returns the logging defaults used by the trader binary
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Dir:        "logs",
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 14,
		Compress:   true,
	}
}

// Logger wraps a structured logger scoped to one trading session
type Logger struct {
	entry *logrus.Entry
}

// New creates a session logger writing to stdout and, when a directory
// is configured, to a size-rotated file named after the symbol.
func New(cfg Config, symbol string) (*Logger, error) {
	base := logrus.New()
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, err
		}
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, strings.ToLower(symbol)+".log"),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		base.SetOutput(io.MultiWriter(os.Stdout, rotator))
	}

	return &Logger{entry: base.WithField("symbol", symbol)}, nil
}

// NewNop creates a logger that discards everything, for tests.
func NewNop() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &Logger{entry: logrus.NewEntry(base)}
}

// Component returns a derived logger tagged with a component name
func (l *Logger) Component(name string) *Logger {
	return &Logger{entry: l.entry.WithField("component", name)}
}

// WithField returns a derived logger with an extra structured field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// Trade logs a trading action at info level with a trade marker field
func (l *Logger) Trade(format string, args ...interface{}) {
	l.entry.WithField("event", "trade").Infof(format, args...)
}
