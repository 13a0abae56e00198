package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/brizzai/arclio-login/internal/auth/autherr"
	"github.com/brizzai/arclio-login/internal/auth/constants"
	"github.com/brizzai/arclio-login/internal/auth/models"
	"github.com/brizzai/arclio-login/internal/logger"
	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// LockTimeout bounds the wait for the writer lock. Writers proceed without
// the lock once it expires so a stuck process never blocks the CLI.
const LockTimeout = 100 * time.Millisecond

// FileStore keeps credentials in a JSON file readable only by the owner
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Path returns the credentials file location
func (s *FileStore) Path() string {
	return filepath.Join(s.dir, constants.CredentialsFile)
}

func (s *FileStore) lockPath() string {
	return filepath.Join(s.dir, ".credentials.lock")
}

// Load reads the credentials file. A missing or unusable file is reported
// as (nil, nil); only a file that exists but cannot be read is an error.
func (s *FileStore) Load() (*models.TokenSet, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", autherr.ErrIOFailure, s.Path(), err)
	}
	return decode(data, s.Path()), nil
}

// Save atomically replaces the credentials file
func (s *FileStore) Save(tokens *models.TokenSet) error {
	data, err := encode(tokens)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("%w: create %s: %v", autherr.ErrIOFailure, s.dir, err)
	}

	unlock := s.lock()
	defer unlock()

	if err := s.writeAtomic(data); err != nil {
		return fmt.Errorf("%w: write %s: %v", autherr.ErrIOFailure, s.Path(), err)
	}

	logger.Debug("Credentials saved", zap.String("path", s.Path()))
	return nil
}

// Clear removes the credentials file. It returns autherr.ErrNotFound when
// there was nothing to remove.
func (s *FileStore) Clear() error {
	unlock := s.lock()
	defer unlock()

	if err := os.Remove(s.Path()); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return autherr.ErrNotFound
		}
		return fmt.Errorf("%w: remove %s: %v", autherr.ErrIOFailure, s.Path(), err)
	}

	logger.Debug("Credentials removed", zap.String("path", s.Path()))
	return nil
}

// lock takes the writer lock when it can within LockTimeout and returns
// the matching release func.
func (s *FileStore) lock() func() {
	if _, err := os.Stat(s.dir); err != nil {
		return func() {}
	}

	fl := flock.New(s.lockPath())
	ctx, cancel := context.WithTimeout(context.Background(), LockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, 10*time.Millisecond)
	if err != nil || !locked {
		logger.Debug("Proceeding without credentials lock", zap.String("path", s.lockPath()), zap.Error(err))
		return func() {}
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			logger.Warn("Failed to release credentials lock", zap.Error(err))
		}
	}
}

func (s *FileStore) writeAtomic(data []byte) error {
	tmpFile, err := os.CreateTemp(s.dir, "credentials-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	if err := tmpFile.Chmod(0o600); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	// Rename replaces the destination on Unix; Windows refuses while it exists.
	dest := s.Path()
	if err := os.Rename(tmpPath, dest); err != nil {
		if runtime.GOOS == "windows" {
			_ = os.Remove(dest)
			return os.Rename(tmpPath, dest)
		}
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
