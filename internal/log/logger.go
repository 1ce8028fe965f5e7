package log

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds a zerolog logger with the given level string (debug, info, warn, error).
func New(level string) *zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	lvl := parseLevel(level)
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	logger := zerolog.New(output).Level(lvl).With().Timestamp().Logger()
	return &logger
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// GooseLogger adapts a zerolog logger to the printf-style logger goose expects.
type GooseLogger struct {
	log *zerolog.Logger
}

// NewGooseLogger wraps logger for migration output.
func NewGooseLogger(logger *zerolog.Logger) *GooseLogger {
	return &GooseLogger{log: logger}
}

// Printf logs migration progress at info level.
func (g *GooseLogger) Printf(format string, v ...interface{}) {
	g.log.Info().Str("component", "migrate").Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Fatalf logs at error level. Unlike goose's default it does not exit; the failing
// migration error is still returned to the caller.
func (g *GooseLogger) Fatalf(format string, v ...interface{}) {
	g.log.Error().Str("component", "migrate").Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
