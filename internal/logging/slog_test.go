package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lccanon/simdeg/types"
)

func TestSlogLogger_ImplementsInterface(t *testing.T) {
	t.Helper()
	var _ types.Logger = (*SlogLogger)(nil)
}

func TestNewSlogDefault(t *testing.T) {
	logger := NewSlogDefault()

	require.NotNil(t, logger)
	require.NotNil(t, logger.logger)
}

func TestSlogLogger_Levels(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := NewSlog(slog.New(handler))

	logger.Debug("groups merged", "left", 3, "right", 7)
	logger.Info("pool created", "pool", "main")
	logger.Warn("observation rejected", "reason", "unknown kind")
	logger.Error("consumer stopped", "error", "timeout")

	output := buf.String()
	assert.Contains(t, output, "level=DEBUG")
	assert.Contains(t, output, "left=3")
	assert.Contains(t, output, "level=INFO")
	assert.Contains(t, output, "pool=main")
	assert.Contains(t, output, "level=WARN")
	assert.Contains(t, output, `reason="unknown kind"`)
	assert.Contains(t, output, "level=ERROR")
	assert.Contains(t, output, "error=timeout")
}

func TestNewText(t *testing.T) {
	t.Run("filters below the configured level", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger, err := NewText(buf, "WARN")
		require.NoError(t, err)

		logger.Debug("split forced")
		logger.Info("merge")
		logger.Warn("readaptation skipped")

		output := buf.String()
		assert.NotContains(t, output, "split forced")
		assert.NotContains(t, output, "merge")
		assert.Contains(t, output, "readaptation skipped")
	})

	t.Run("rejects unknown levels", func(t *testing.T) {
		_, err := NewText(&bytes.Buffer{}, "verbose")
		require.ErrorIs(t, err, types.ErrInvalidConfig)
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{" Info ", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSlogLogger_With(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := NewText(buf, "info")
	require.NoError(t, err)

	logger.With("pool", "p1", "kind", "collusion").Info("largest group changed", "size", 12)

	output := buf.String()
	assert.Contains(t, output, "pool=p1")
	assert.Contains(t, output, "kind=collusion")
	assert.Contains(t, output, "size=12")
}
