// Package logger configures the global zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup installs the global logger. An unknown level falls back to info and
// is reported once the logger is up.
func Setup(level string, pretty bool) {
	SetupWriter(os.Stderr, level, pretty)
}

func SetupWriter(w io.Writer, level string, pretty bool) {
	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level, using info")
	}
}
