// Package logging configures the process-wide zerolog logger.
package logging

import (
	"NetSpectraIDS/internal/config"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLevel maps a config level name to a zerolog level. Unknown names fall back to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New builds a logger writing to out in the configured format.
func New(cfg config.LogConfig, out io.Writer) zerolog.Logger {
	if strings.ToLower(cfg.Format) == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
}

// Setup installs the configured logger as the global zerolog logger.
func Setup(cfg config.LogConfig) {
	log.Logger = New(cfg, os.Stderr)
}
