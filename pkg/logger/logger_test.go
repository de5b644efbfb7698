package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igengage/pkg/config"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		out = append(out, entry)
	}
	return out
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"info level", &config.LoggingConfig{Level: "info"}, false},
		{"debug without color", &config.LoggingConfig{Level: "debug", NoColor: true}, false},
		{"invalid level", &config.LoggingConfig{Level: "invalid"}, true},
		{"file output", &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "igengage.log")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"DEBUG", zerolog.DebugLevel, false},
		{"info", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"verbose", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "warn")
	require.NoError(t, err)

	logger.Debug("hidden debug")
	logger.Info("hidden info")
	logger.Warn("visible warn")
	logger.Error("visible error")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "visible warn", entries[0]["message"])
	assert.Equal(t, "error", entries[1]["level"])
	assert.Equal(t, "igengage", entries[1]["app"])
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	base, err := NewWithWriter(&buf, "debug")
	require.NoError(t, err)

	child := base.WithField("phase", "likes").WithFields(map[string]interface{}{
		"fetched": 7,
		"wait":    90 * time.Second,
	})
	child.Info("child")
	base.Info("parent")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "likes", entries[0]["phase"])
	assert.Equal(t, float64(7), entries[0]["fetched"])
	assert.Equal(t, "1m30s", entries[0]["wait"])
	assert.NotContains(t, entries[1], "phase")
}

func TestWithErrorAndContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "info")
	require.NoError(t, err)

	ctx := ContextWithRunID(context.Background(), "run-123")
	logger.WithContext(ctx).WithError(errors.New("boom")).Error("failed")
	assert.Same(t, logger, logger.WithError(nil))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0]["error"])
	assert.Equal(t, "run-123", entries[0]["run_id"])
}

func TestRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
	assert.Equal(t, "", RunIDFromContext(context.Background()))
}

func TestHelpersWithTestLogger(t *testing.T) {
	tl := NewTestLogger()

	LogRequest(tl, "GET", "/api/v1/media/1/likers/", 429, 120*time.Millisecond)
	LogPhaseProgress(tl, "comments", 12, "all")
	LogBackoff(tl.WithField("run_id", "r1"), "likes", "rate limited", 2, time.Minute)

	assert.True(t, tl.HasMessage("Platform request rejected"))
	assert.True(t, tl.HasMessage("Retrieval progress"))

	warns := tl.GetMessagesByLevel("WARN")
	require.Len(t, warns, 2)
	assert.Equal(t, "r1", warns[1].Fields["run_id"])
	assert.Equal(t, 2, warns[1].Fields["retry"])

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.WithField("a", 1).WithError(errors.New("x")).Info("nothing")
	assert.Nil(t, l.GetZerolog())
}
