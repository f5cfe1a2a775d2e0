package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	cfg, err := Load("", logger)
	require.NoError(t, err)
	assert.Equal(t, 8126, cfg.APIPort)
	assert.Equal(t, 10, cfg.HistoryLimit)
	assert.Equal(t, "uber_ride_status", cfg.Entities.Status)
	assert.Equal(t, "uber_refresh_status", cfg.Entities.RefreshButton)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	cfg, err := Load(filepath.Join(t.TempDir(), "does_not_exist.yaml"), logger)
	require.NoError(t, err)
	assert.Equal(t, 8126, cfg.APIPort)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	path := filepath.Join(t.TempDir(), "uber_config.yaml")

	content := `api_port: 9000
history_limit: 25
entities:
  status: my_ride_status
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path, logger)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.APIPort)
	assert.Equal(t, 25, cfg.HistoryLimit)
	assert.Equal(t, "my_ride_status", cfg.Entities.Status)
	// Untouched entries keep their defaults
	assert.Equal(t, "uber_ride_progress", cfg.Entities.Progress)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	tests := []struct {
		name    string
		content string
	}{
		{"bad port", "api_port: -1\n"},
		{"bad history limit", "history_limit: 0\n"},
		{"empty entity name", "entities:\n  status: \"\"\n"},
		{"malformed yaml", "api_port: [not a port\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "uber_config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := Load(path, logger)
			assert.Error(t, err)
		})
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("UBER_CLIENT_ID", "client")
	t.Setenv("UBER_CLIENT_SECRET", "secret")
	t.Setenv("UBER_REDIRECT_URI", "http://localhost/callback")
	t.Setenv("HA_URL", "ws://ha:8123/api/websocket")
	t.Setenv("HA_TOKEN", "ha-token")
	t.Setenv("READ_ONLY", "true")

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "client", env.ClientID)
	assert.Equal(t, "secret", env.ClientSecret)
	assert.Equal(t, "http://localhost/callback", env.RedirectURI)
	assert.Equal(t, "ws://ha:8123/api/websocket", env.HAURL)
	assert.True(t, env.ReadOnly)
}

func TestLoadEnvRequiresCredentials(t *testing.T) {
	t.Setenv("UBER_CLIENT_ID", "")
	t.Setenv("UBER_CLIENT_SECRET", "")

	_, err := LoadEnv()
	assert.Error(t, err)
}
