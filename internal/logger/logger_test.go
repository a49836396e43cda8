package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestSetupWriterLevels(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	SetupWriter(&buf, "warn", false)
	require.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	log.Info().Msg("hidden")
	log.Warn().Str("symbol", "AAPL").Msg("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"symbol":"AAPL"`)
}

func TestSetupWriterUnknownLevel(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	SetupWriter(&buf, "chatty", false)
	require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	require.Contains(t, buf.String(), "unknown log level")
}

func TestSetupWriterPretty(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	SetupWriter(&buf, "debug", true)
	log.Debug().Msg("console")
	require.Contains(t, buf.String(), "console")
	require.NotContains(t, buf.String(), `"message"`)
}
