package bootstrap

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanwarden/scanwarden/internal/logging"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestSetupLogger_HeadlessConsoleOutput(t *testing.T) {
	var console bytes.Buffer
	logger, closer, err := SetupLogger(LoggerConfig{
		Level:         slog.LevelInfo,
		ConsoleWriter: &console,
		ForceQuiet:    true,
	})
	require.NoError(t, err)
	defer closer() //nolint:errcheck

	logger.Info("scan queued", "channel", "malware")
	assert.Contains(t, console.String(), "scan queued")
	assert.Contains(t, console.String(), "channel=malware")
}

func TestSetupLogger_WritesRunLogFile(t *testing.T) {
	dir := t.TempDir()
	runID := logging.NewRunID()

	logger, closer, err := SetupLogger(LoggerConfig{
		Level:      slog.LevelInfo,
		LogDir:     dir,
		RunID:      runID,
		ForceQuiet: true,
	})
	require.NoError(t, err)

	logger.Info("file sink check")
	require.NoError(t, closer())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.Contains(entries[0].Name(), runID))

	content, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(content), "file sink check")
	assert.Contains(t, string(content), runID)
}

func TestSetupLogger_RejectsBadLogDir(t *testing.T) {
	_, _, err := SetupLogger(LoggerConfig{
		LogDir: "relative/dir",
		RunID:  logging.NewRunID(),
	})
	assert.ErrorIs(t, err, logging.ErrLogDirNotAbsolute)
}
