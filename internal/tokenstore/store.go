// Package tokenstore persists OAuth tokens to disk so the integration
// survives restarts without re-authorization.
package tokenstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/erbarraud/ha-uber-ride-tracker/internal/uber"
)

// Store reads and writes a token file. Tokens are credentials, so the file
// is created with mode 0600.
type Store struct {
	path   string
	logger *zap.Logger
}

// NewStore creates a token store backed by the file at path.
func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.Named("tokenstore"),
	}
}

// Load reads the stored token. A missing file is not an error; the zero
// token is returned and the caller starts the OAuth flow.
func (s *Store) Load() (uber.Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("No stored token found", zap.String("path", s.path))
			return uber.Token{}, nil
		}
		return uber.Token{}, fmt.Errorf("failed to read token file: %w", err)
	}

	var token uber.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return uber.Token{}, fmt.Errorf("failed to parse token file: %w", err)
	}

	s.logger.Info("Loaded stored token", zap.Time("expires_at", token.ExpiresAt))
	return token, nil
}

// Save writes the token atomically (temp file then rename) so a crash
// mid-write never leaves a truncated token file.
func (s *Store) Save(token uber.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("failed to create temp token file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set token file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close token file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace token file: %w", err)
	}

	s.logger.Debug("Token saved", zap.String("path", s.path))
	return nil
}
