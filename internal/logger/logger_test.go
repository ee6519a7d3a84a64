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

// captureOutput redirects logger output to a buffer and restores it afterwards.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)

	mu.Lock()
	original := output
	mu.Unlock()
	level := GetLevel()
	format, _ := currentFormat.Load().(string)

	InitWithWriter(buf, "", "")
	t.Cleanup(func() {
		InitWithWriter(original, level.String(), format)
	})
	return buf
}

func TestLevelFiltering(t *testing.T) {
	t.Run("DebugLevelShowsAllMessages", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("DEBUG")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		out := buf.String()
		for _, s := range []string{"debug message", "info message", "warn message", "error message"} {
			assert.Contains(t, out, s)
		}
	})

	t.Run("WarnLevelFiltersLower", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("WARN")

		Debug("debug message")
		Info("info message")
		Warn("warn message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.NotContains(t, out, "info message")
		assert.Contains(t, out, "warn message")
	})

	t.Run("InvalidLevelIgnored", func(t *testing.T) {
		captureOutput(t)
		SetLevel("ERROR")
		SetLevel("chatty")
		assert.Equal(t, LevelError, GetLevel())
	})
}

func TestJSONFormat(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")
	SetFormat("json")

	Error("cluster fault", ClusterID(3), Lanes([]int{1, 4}), Err(errors.New("boom")))

	line := strings.TrimSpace(buf.String())
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	assert.Equal(t, "cluster fault", rec["msg"])
	assert.Equal(t, float64(3), rec[KeyClusterID])
	assert.Equal(t, []any{float64(1), float64(4)}, rec[KeyLanes])
	assert.Equal(t, "boom", rec[KeyError])
}

func TestWithBindsFields(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")
	SetFormat("text")

	With(KeyComponent, "dispatcher").Info("started")
	assert.Contains(t, buf.String(), "component=dispatcher")
	assert.Contains(t, buf.String(), "msg=started")
}
