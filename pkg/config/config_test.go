package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "table", cfg.OutputFormat)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout.Std())
	assert.Equal(t, 90*time.Second, cfg.HeartbeatTimeout.Std())
	assert.Equal(t, 60*time.Second, cfg.LivenessInterval.Std())
	assert.Equal(t, 5*time.Minute, cfg.StaleAfter.Std())
	assert.Equal(t, 3, cfg.ConnectAttempts)
	assert.Equal(t, 50, cfg.WarnEntries)
	assert.True(t, cfg.AutoPopulate)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))

	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_PartialFileLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
log_level: debug
heartbeat_timeout: 2m
connect_attempts: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Minute, cfg.HeartbeatTimeout.Std())
	assert.Equal(t, 5, cfg.ConnectAttempts)
	// Untouched fields keep their defaults.
	assert.Equal(t, "table", cfg.OutputFormat)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout.Std())
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scan_timeout: soonish\n"), 0o644))

	_, err := Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "bad log level", content: "log_level: shouting\n", wantErr: "invalid log_level"},
		{name: "bad output format", content: "output_format: xml\n", wantErr: "invalid output_format"},
		{name: "zero attempts", content: "connect_attempts: 0\n", wantErr: "connect_attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := Load(path)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "warn"

	logger := cfg.NewLogger()

	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
}
