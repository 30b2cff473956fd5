package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/ezenkico/deploy-commander/sequencer/config"
)

// NewLogger creates a structured zerolog.Logger with the run context fields
// from the config. Logs go to stderr so command output on stdout stays
// machine readable.
func NewLogger(cfg *config.Config) zerolog.Logger {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	if cfg.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: w}
	}

	ctx := zerolog.New(w).With().Timestamp()

	if cfg.ProjectName != "" {
		ctx = ctx.Str("project", cfg.ProjectName)
	}
	if cfg.Variant != "" {
		ctx = ctx.Str("variant", cfg.Variant)
	}

	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
