package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/log"
)

func TestLevelFromString(t *testing.T) {
	lvl, err := LevelFromString("DEBUG")
	require.NoError(t, err)
	require.Equal(t, log.LevelDebug, lvl)

	_, err = LevelFromString("loud")
	require.Error(t, err)
}

func TestFormatFlagValue(t *testing.T) {
	fv := NewFormatFlagValue(FormatText)
	require.NoError(t, fv.Set("json"))
	require.Equal(t, FormatJSON, fv.FormatType())
	require.Error(t, fv.Set("yaml"))
}

func TestDynamicLogLevel(t *testing.T) {
	var buf bytes.Buffer
	h := NewLogHandler(&buf, CLIConfig{Level: log.LevelInfo, Format: FormatLogFmt})
	logger := log.NewLogger(h)

	logger.Debug("hidden")
	require.Empty(t, buf.String())

	h.(LvlSetter).SetLogLevel(log.LevelDebug)
	logger.Debug("shown", "origin", 42)
	require.Contains(t, buf.String(), "shown")
	require.Contains(t, buf.String(), "origin=42")
}

func TestFormatHandlerMaxVerbosity(t *testing.T) {
	for _, ft := range []FormatType{FormatText, FormatLogFmt, FormatLogFmtMs, FormatJSON, FormatJSONMs, FormatTerminal} {
		t.Run(ft.String(), func(t *testing.T) {
			var buf bytes.Buffer
			logger := log.NewLogger(FormatHandler(ft, false)(&buf))
			logger.Trace("lowest")
			require.Contains(t, buf.String(), "lowest")
		})
	}
}

func TestJSONMsHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewLogger(JSONMsHandlerWithLevel(&buf, slog.LevelInfo))
	logger.Info("hello", "n", 1)
	require.Contains(t, buf.String(), `"msg":"hello"`)
	require.Contains(t, buf.String(), `"lvl":"info"`)
}
