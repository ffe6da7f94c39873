package logger

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/zfogg/daredrop/pkg/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger *log.Logger

// Init initializes the logger
func Init(verbose bool) {
	logLevel := ParseLevel(config.GetString("log.level"))
	if verbose {
		logLevel = log.DebugLevel
	}

	logger = log.NewWithOptions(openSink(config.GetString("log.file"), config.GetInt("log.max_size_mb")), log.Options{
		ReportTimestamp: true,
		Prefix:          "daredrop",
	})
	logger.SetLevel(logLevel)
}

// InitWithWriter points the logger at w, used by tests and the watch commands
func InitWithWriter(w io.Writer, level log.Level) {
	logger = log.New(w)
	logger.SetLevel(level)
}

// openSink returns a rotating file writer, or stderr if the log directory is unusable
func openSink(path string, maxSizeMB int) io.Writer {
	if path == "" {
		return os.Stderr
	}

	// Probe once so an unwritable path falls back to stderr instead of failing on first write
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return os.Stderr
	}
	_ = f.Close()

	if maxSizeMB <= 0 {
		maxSizeMB = 20
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: 5,
		MaxAge:     7,
		Compress:   true,
	}
}

// ParseLevel maps a config string to a level, defaulting to info
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Debug logs a debug message
func Debug(msg string, args ...interface{}) {
	if logger != nil {
		logger.Debug(msg, args...)
	}
}

// Info logs an info message
func Info(msg string, args ...interface{}) {
	if logger != nil {
		logger.Info(msg, args...)
	}
}

// Warn logs a warning message
func Warn(msg string, args ...interface{}) {
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

// Error logs an error message
func Error(msg string, args ...interface{}) {
	if logger != nil {
		logger.Error(msg, args...)
	}
}

// Fatal logs a fatal message and exits
func Fatal(msg string, args ...interface{}) {
	if logger != nil {
		logger.Fatal(msg, args...)
	} else {
		os.Exit(1)
	}
}

// GetLogger returns the logger instance
func GetLogger() *log.Logger {
	return logger
}
