package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{input: "", want: slog.LevelInfo},
		{input: "info", want: slog.LevelInfo},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "warning", want: slog.LevelWarn},
		{input: " error ", want: slog.LevelError},
		{input: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("json to writer", func(t *testing.T) {
		var buf bytes.Buffer
		logger, closer, err := New(Config{Level: "info", Format: FormatJSON, Output: &buf})
		require.NoError(t, err)
		defer closer.Close()

		logger.Debug("hidden")
		logger.Info("visible", ClusterID("abc"))

		lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
		require.Len(t, lines, 1)

		var record map[string]any
		require.NoError(t, json.Unmarshal(lines[0], &record))
		assert.Equal(t, "visible", record["msg"])
		assert.Equal(t, "abc", record[KeyClusterID])
	})

	t.Run("text is the default format", func(t *testing.T) {
		var buf bytes.Buffer
		logger, _, err := New(Config{Output: &buf})
		require.NoError(t, err)

		logger.Info("hello", Path("/tmp/x"))
		assert.Contains(t, buf.String(), "msg=hello")
		assert.Contains(t, buf.String(), "path=/tmp/x")
	})

	t.Run("rotated file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "kubedeck.log")
		logger, closer, err := New(Config{File: file, MaxSizeMB: 1, MaxBackups: 1})
		require.NoError(t, err)

		logger.Warn("written to file")
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(file)
		require.NoError(t, err)
		assert.Contains(t, string(data), "written to file")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, _, err := New(Config{Format: "xml"})
		assert.Error(t, err)
	})

	t.Run("unknown level", func(t *testing.T) {
		_, _, err := New(Config{Level: "loud"})
		assert.Error(t, err)
	})
}
