package store

import (
	"errors"
	"fmt"

	"github.com/brizzai/arclio-login/internal/auth/autherr"
	"github.com/brizzai/arclio-login/internal/auth/constants"
	"github.com/brizzai/arclio-login/internal/auth/models"
	"github.com/brizzai/arclio-login/internal/logger"
	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
)

// KeyringStore keeps the credentials document as one secret in the system keychain
type KeyringStore struct {
	service string
	user    string
}

func NewKeyringStore() *KeyringStore {
	return &KeyringStore{service: constants.KeyringService, user: constants.KeyringUser}
}

func (s *KeyringStore) Path() string {
	return fmt.Sprintf("keyring:%s/%s", s.service, s.user)
}

func (s *KeyringStore) Load() (*models.TokenSet, error) {
	data, err := keyring.Get(s.service, s.user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", autherr.ErrIOFailure, s.Path(), err)
	}
	return decode([]byte(data), s.Path()), nil
}

func (s *KeyringStore) Save(tokens *models.TokenSet) error {
	data, err := encode(tokens)
	if err != nil {
		return err
	}
	if err := keyring.Set(s.service, s.user, string(data)); err != nil {
		return fmt.Errorf("%w: write %s: %v", autherr.ErrIOFailure, s.Path(), err)
	}
	logger.Debug("Credentials saved", zap.String("path", s.Path()))
	return nil
}

func (s *KeyringStore) Clear() error {
	if err := keyring.Delete(s.service, s.user); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return autherr.ErrNotFound
		}
		return fmt.Errorf("%w: remove %s: %v", autherr.ErrIOFailure, s.Path(), err)
	}
	logger.Debug("Credentials removed", zap.String("path", s.Path()))
	return nil
}
