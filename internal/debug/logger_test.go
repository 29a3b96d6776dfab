package debug

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":      slog.LevelWarn,
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestConfigureJSON(t *testing.T) {
	t.Cleanup(func() { Init(false) })

	var buf bytes.Buffer
	require.NoError(t, Configure(Options{Level: "debug", Format: "json", Output: &buf}))
	assert.True(t, Enabled())

	With("entity", "User").Debug("query", "rows", 2)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "query", rec["msg"])
	assert.Equal(t, "User", rec["entity"])
	assert.Equal(t, float64(2), rec["rows"])
}

func TestConfigureFiltersByLevel(t *testing.T) {
	t.Cleanup(func() { Init(false) })

	var buf bytes.Buffer
	require.NoError(t, Configure(Options{Level: "error", Output: &buf}))
	assert.False(t, Enabled())
	Warn("ignored")
	assert.Empty(t, buf.String())
	Error("kept")
	assert.Contains(t, buf.String(), "msg=kept")

	assert.Error(t, Configure(Options{Format: "xml"}))
}
