package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel(" error "))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestNew_JSONAndText(t *testing.T) {
	SetLevel("info")
	t.Cleanup(func() { SetLevel("info") })

	var jsonBuf bytes.Buffer
	New(&jsonBuf, "json").Info("hello", "k", "v")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(jsonBuf.Bytes(), &rec))
	require.Equal(t, "hello", rec["msg"])
	require.Equal(t, "v", rec["k"])

	var textBuf bytes.Buffer
	New(&textBuf, "text").Info("hello", "k", "v")
	require.True(t, strings.Contains(textBuf.String(), "k=v"))
}

func TestSetLevel_FiltersDebug(t *testing.T) {
	t.Cleanup(func() { SetLevel("info") })

	var buf bytes.Buffer
	l := New(&buf, "text")

	SetLevel("warn")
	l.Info("dropped")
	require.Zero(t, buf.Len())

	SetLevel("debug")
	l.Debug("kept")
	require.Contains(t, buf.String(), "kept")
}
