package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]string {
	t.Helper()
	var out []map[string]string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]string
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, INFO, true).With("component", "scheduler")

	l.Debug("hidden")
	l.Info("run finished", "sent", 3, "error", errors.New("boom"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "run finished", lines[0]["msg"])
	assert.Equal(t, "scheduler", lines[0]["component"])
	assert.Equal(t, "3", lines[0]["sent"])
	assert.Equal(t, "boom", lines[0]["error"])
}

func TestLoggerRedactsEmails(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, DEBUG, true)

	l.Warn("send failed", "email", "john.doe@example.com", "detail", "rejected ab@example.com")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "jo***@example.com", lines[0]["email"])
	assert.Equal(t, "rejected ***@example.com", lines[0]["detail"])
}

func TestLoggerOddFields(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, DEBUG, false).Info("x", "dangling")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "dangling", lines[0]["!BADKEY"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("WARNING"))
	assert.Equal(t, ERROR, ParseLevel("error"))
	assert.Equal(t, INFO, ParseLevel("verbose"))
}

func TestRedactEmail(t *testing.T) {
	tests := map[string]string{
		"john.doe@example.com": "jo***@example.com",
		"ab@example.com":       "***@example.com",
		"not-an-email":         "***@***",
		"a@b@c.com":            "***@***",
		"trailing@":            "***@***",
	}
	for in, want := range tests {
		assert.Equal(t, want, RedactEmail(in), in)
	}
}
