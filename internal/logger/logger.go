// Package logger provides leveled structured logging.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger provides leveled logging.
type Logger struct {
	zl zerolog.Logger
}

var defaultLogger *Logger

// Init initializes the default logger with the specified level and format.
// Format "text" writes human-readable console lines, anything else writes JSON.
func Init(level string, format string) {
	InitWithWriter(level, format, os.Stderr)
}

// InitWithWriter is Init with an explicit destination.
func InitWithWriter(level string, format string, w io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := w
	if strings.ToLower(format) == "text" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02 15:04:05.000"}
	}

	defaultLogger = &Logger{
		zl: zerolog.New(out).Level(parseLevel(level)).With().Timestamp().Logger(),
	}
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Debug logs at debug level.
func Debug(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.zl.Debug().Msgf(format, args...)
	}
}

// Info logs at info level.
func Info(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.zl.Info().Msgf(format, args...)
	}
}

// Warn logs at warn level.
func Warn(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.zl.Warn().Msgf(format, args...)
	}
}

// Error logs at error level.
func Error(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.zl.Error().Msgf(format, args...)
	}
}

// Fatal logs at fatal level and exits.
func Fatal(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.zl.WithLevel(zerolog.FatalLevel).Msgf(format, args...)
	}
	os.Exit(1)
}
