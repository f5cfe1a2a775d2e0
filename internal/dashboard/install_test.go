package dashboard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInstallCopiesAssets(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	wwwDir := filepath.Join(t.TempDir(), "www")

	require.NoError(t, Install(wwwDir, logger))

	card, err := os.ReadFile(filepath.Join(wwwDir, CardFilename))
	require.NoError(t, err)
	assert.Contains(t, string(card), "uber-ride-tracker-card")

	callback, err := os.ReadFile(filepath.Join(wwwDir, CallbackFilename))
	require.NoError(t, err)
	assert.Contains(t, string(callback), "/api/authorize")
}

func TestInstallOverwritesExistingAssets(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	wwwDir := t.TempDir()

	stale := filepath.Join(wwwDir, CardFilename)
	require.NoError(t, os.WriteFile(stale, []byte("old version"), 0o644))

	require.NoError(t, Install(wwwDir, logger))

	card, err := os.ReadFile(stale)
	require.NoError(t, err)
	assert.NotEqual(t, "old version", string(card))
}

func TestInstallSkipsWhenUnconfigured(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	assert.NoError(t, Install("", logger))
}
