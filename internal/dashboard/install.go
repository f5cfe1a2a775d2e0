// Package dashboard installs the bundled Lovelace card and the OAuth
// callback page into the hub's www directory so they are served under
// /local/.
package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

//go:embed assets/uber-ride-tracker-card.js assets/uber_callback.html
var assets embed.FS

// Filenames of the installed assets, relative to the www directory.
const (
	CardFilename     = "uber-ride-tracker-card.js"
	CallbackFilename = "uber_callback.html"
)

// Install copies the bundled assets into wwwDir, creating it if needed.
// Existing files are overwritten so upgrades pick up new asset versions.
func Install(wwwDir string, logger *zap.Logger) error {
	if wwwDir == "" {
		logger.Info("No www directory configured, skipping dashboard install")
		return nil
	}

	if err := os.MkdirAll(wwwDir, 0o755); err != nil {
		return fmt.Errorf("failed to create www directory: %w", err)
	}

	for _, name := range []string{CardFilename, CallbackFilename} {
		data, err := assets.ReadFile("assets/" + name)
		if err != nil {
			return fmt.Errorf("missing bundled asset %s: %w", name, err)
		}

		dest := filepath.Join(wwwDir, name)
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return fmt.Errorf("failed to install %s: %w", name, err)
		}
		logger.Info("Installed dashboard asset", zap.String("path", dest))
	}

	return nil
}
