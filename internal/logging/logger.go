package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"roadcall/internal/config"
)

// New constructs a zerolog logger based on config settings.
// Defaults to JSON at info level on stdout when fields are empty.
func New(cfg config.LoggingConfig) *zerolog.Logger {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level))); err == nil {
		level = parsed
	}

	output := zerolog.New(os.Stdout)
	if strings.ToLower(strings.TrimSpace(cfg.Format)) == "console" {
		output = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	base := output.
		Level(level).
		With().
		Timestamp().
		Str("app", "roadcall").
		Logger()
	return &base
}
