// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string // RFC3339, Unix, etc.
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
	}
}

// Init initializes the global zerolog logger.
func Init(cfg Config) {
	InitWriter(cfg, os.Stdout)
}

// InitWriter initializes the global logger writing to out.
func InitWriter(cfg Config, out io.Writer) {
	zerolog.TimeFieldFormat = cfg.TimeFormat

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := out
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// WithService attaches service-wide fields to the global logger.
func WithService(principal, version string) {
	log.Logger = log.With().
		Str("service", principal).
		Str("version", version).
		Logger()
}

// WithSession returns a logger with listening-session context.
func WithSession(sessionID string) zerolog.Logger {
	return log.With().
		Str("sessionId", sessionID).
		Logger()
}

// WithEngine returns a speech component logger tagged with the recognition
// engine in use.
func WithEngine(provider string) zerolog.Logger {
	return log.With().
		Str("component", "speech").
		Str("sttProvider", provider).
		Logger()
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}
