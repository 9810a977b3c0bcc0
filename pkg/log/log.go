package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance. Packages derive component
// loggers from it via Component.
var Logger zerolog.Logger

func init() {
	// Sensible default so early startup and tests log without Init.
	Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// Component creates a child logger scoped to one subsystem
// (health, failover, routing, storage, ...).
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// WithPath creates a child logger with a path_id field.
func WithPath(component string, pathID string) zerolog.Logger {
	return Logger.With().Str("component", component).Str("path_id", pathID).Logger()
}

// WithPolicy creates a child logger with a policy_id field.
func WithPolicy(component string, policyID uint64) zerolog.Logger {
	return Logger.With().Str("component", component).Uint64("policy_id", policyID).Logger()
}
