package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.LevelInfo, "json", &buf)

	l.Debug("hidden")
	l.Info("loaded", "table", "customers", "rows", 3)

	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)
	assert.NotContains(t, line, "hidden")

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	assert.Equal(t, "loaded", rec["msg"])
	assert.Equal(t, "customers", rec["table"])
	assert.EqualValues(t, 3, rec["rows"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	New(slog.LevelDebug, "text", &buf).Debug("probe", "key", "a.csv")
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "key=a.csv")
}

func TestOrDefault(t *testing.T) {
	assert.Same(t, slog.Default(), OrDefault(nil))
	l := New(slog.LevelInfo, "json", &bytes.Buffer{})
	assert.Same(t, l, OrDefault(l))
}
