// Package logging provides structured logging with file and console output.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents logging levels
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Logger wraps zerolog with an optional dated log file
type Logger struct {
	zlog    zerolog.Logger
	level   zerolog.Level
	file    *os.File
	logPath string
}

// Config holds logger configuration
type Config struct {
	LogDir  string    // Directory for log files; empty disables the file
	Level   LogLevel  // Minimum log level (default: info)
	Console bool      // Also log to the console
	Out     io.Writer // Console destination (default: stderr)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		LogDir:  filepath.Join(home, ".talkinghead", "logs"),
		Level:   LevelInfo,
		Console: true,
	}
}

// ParseLevel maps a level name to zerolog, defaulting to info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch LogLevel(strings.ToLower(string(level))) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New creates a new Logger with file and console output
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var writers []io.Writer
	logger := &Logger{level: ParseLevel(cfg.Level)}

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		// Create log file with date-based name
		logFileName := fmt.Sprintf("talkinghead_%s.log", time.Now().Format("2006-01-02"))
		logger.logPath = filepath.Join(cfg.LogDir, logFileName)

		file, err := os.OpenFile(logger.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.file = file
		writers = append(writers, file)
	}

	if cfg.Console {
		out := cfg.Out
		if out == nil {
			out = os.Stderr
		}
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		})
	}

	var w io.Writer = io.Discard
	if len(writers) > 0 {
		w = io.MultiWriter(writers...)
	}

	logger.zlog = zerolog.New(w).Level(logger.level).With().
		Timestamp().
		Str("app", "talkinghead").
		Logger()

	logger.zlog.Debug().
		Str("component", "logging").
		Str("logFile", logger.logPath).
		Str("level", logger.level.String()).
		Msg("Logger initialized")

	return logger, nil
}

// LogPath returns the current log file path, empty when logging to console only
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Component returns a zerolog.Logger with the component field set
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger()
}

// Zerolog returns the underlying zerolog.Logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}
