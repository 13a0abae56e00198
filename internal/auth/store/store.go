// Package store persists the single set of credentials for the current user.
package store

import (
	"encoding/json"
	"fmt"

	"github.com/brizzai/arclio-login/internal/auth/models"
	"github.com/brizzai/arclio-login/internal/config"
	"github.com/brizzai/arclio-login/internal/logger"
	"go.uber.org/zap"
)

// Store loads, saves and clears the stored credentials.
// Load returns (nil, nil) when nothing usable is stored.
type Store interface {
	Load() (*models.TokenSet, error)
	Save(tokens *models.TokenSet) error
	Clear() error
	Path() string
}

// New returns the backend selected by cfg
func New(cfg *config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case config.StorageBackendFile, "":
		return NewFileStore(cfg.Dir), nil
	case config.StorageBackendKeyring:
		return NewKeyringStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

func encode(tokens *models.TokenSet) ([]byte, error) {
	if tokens == nil || tokens.AccessToken == "" {
		return nil, fmt.Errorf("refusing to store credentials without an access token")
	}
	return json.MarshalIndent(models.NewStoredCredentials(tokens), "", "  ")
}

// decode turns a stored document into a TokenSet. Unreadable documents,
// documents without an access token and documents written by a newer
// version are treated as absent.
func decode(data []byte, location string) *models.TokenSet {
	var creds models.StoredCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		logger.Warn("Ignoring unreadable stored credentials", zap.String("location", location), zap.Error(err))
		return nil
	}
	if creds.Version > models.StoredCredentialsVersion {
		logger.Warn("Ignoring stored credentials from a newer version",
			zap.String("location", location),
			zap.Int("version", creds.Version),
		)
		return nil
	}
	if creds.AccessToken == "" {
		logger.Warn("Ignoring stored credentials without an access token", zap.String("location", location))
		return nil
	}
	if creds.Version < models.StoredCredentialsVersion {
		logger.Debug("Upgrading stored credentials", zap.Int("from", creds.Version), zap.Int("to", models.StoredCredentialsVersion))
	}
	return creds.TokenSet()
}
