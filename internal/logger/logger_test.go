package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/go-kit/log/level"
	"github.com/stretchr/testify/require"
)

func TestNewFiltersLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", LogFormatLogfmt, "profremap")

	level.Info(l).Log("msg", "hidden")
	level.Warn(l).Log("msg", "shown")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "msg=shown")
	require.Contains(t, out, "name=profremap")
	require.Contains(t, out, "level=warn")
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "debug", LogFormatJSON, "")

	level.Debug(l).Log("msg", "loaded", "file", "main.js.map")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	require.Equal(t, "loaded", entry["msg"])
	require.Equal(t, "main.js.map", entry["file"])
	require.Equal(t, "debug", entry["level"])
	require.NotContains(t, entry, "name")
}
