package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"info":  slog.LevelInfo,
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestSetup_DefaultLevel(t *testing.T) {
	_, err := Setup("", "text", false)
	require.NoError(t, err)

	ctx := context.Background()
	handler := slog.Default().Handler()
	assert.True(t, handler.Enabled(ctx, slog.LevelInfo), "INFO should be enabled in default mode")
	assert.False(t, handler.Enabled(ctx, slog.LevelDebug), "DEBUG should not be enabled in default mode")
}

func TestSetup_DebugOverridesLevel(t *testing.T) {
	_, err := Setup("error", "text", true)
	require.NoError(t, err)
	assert.True(t, slog.Default().Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestSetup_UnknownLevelFallsBack(t *testing.T) {
	l, err := Setup("loud", "text", false)
	assert.Error(t, err)
	require.NotNil(t, l)
	assert.True(t, l.Handler().Enabled(context.Background(), slog.LevelInfo))
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, slog.LevelInfo, "json").Info("loaded", "rows", 3)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "loaded", rec["msg"])
	assert.Equal(t, float64(3), rec["rows"])
}
