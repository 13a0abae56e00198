package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brizzai/arclio-login/internal/auth/autherr"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, name := range []string{"KINDE_AUTH_DOMAIN", "KINDE_DOMAIN", "KINDE_CLIENT_ID", "KINDE_CLIENT_SECRET", "ARCLIO_STORAGE_BACKEND"} {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
	return home
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, []int{3100, 3101, 3102, 3103, 3104}, cfg.Callback.Ports)
	assert.Equal(t, 120*time.Second, cfg.Callback.Timeout)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, StorageBackendFile, cfg.Storage.Backend)
	assert.Equal(t, filepath.Join(home, ".config", "arclio"), cfg.Storage.Dir)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_KindeFromEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("KINDE_AUTH_DOMAIN", "https://test.kinde.com/")
	t.Setenv("KINDE_CLIENT_ID", "test_client_id")
	t.Setenv("KINDE_CLIENT_SECRET", "test_client_secret")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "https://test.kinde.com", cfg.Kinde.Domain)
	assert.Equal(t, "test_client_id", cfg.Kinde.ClientID)
	assert.Equal(t, "test_client_secret", cfg.Kinde.ClientSecret)
	assert.NoError(t, cfg.Kinde.Validate())
}

func TestLoad_LegacyDomainVariable(t *testing.T) {
	isolate(t)
	t.Setenv("KINDE_DOMAIN", "https://legacy.kinde.com")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "https://legacy.kinde.com", cfg.Kinde.Domain)
}

func TestLoad_ConfigFile(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".config", "arclio")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	content := []byte("callback:\n  ports: [4100]\n  timeout: 5s\nstorage:\n  backend: keyring\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600))

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, []int{4100}, cfg.Callback.Ports)
	assert.Equal(t, 5*time.Second, cfg.Callback.Timeout)
	assert.Equal(t, StorageBackendKeyring, cfg.Storage.Backend)
}

func TestLoad_Flags(t *testing.T) {
	isolate(t)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	InitFlags(fs)
	require.NoError(t, fs.Parse([]string{"--log-level=debug", "--storage-backend=keyring"}))

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, StorageBackendKeyring, cfg.Storage.Backend)
}

func TestLoad_UnsupportedBackend(t *testing.T) {
	isolate(t)
	t.Setenv("ARCLIO_STORAGE_BACKEND", "s3")

	_, err := Load(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage backend")
}

func TestKindeConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     KindeConfig
		wantErr string
	}{
		{
			name: "complete",
			cfg:  KindeConfig{Domain: "https://test.kinde.com", ClientID: "id", ClientSecret: "secret"},
		},
		{
			name:    "missing client id",
			cfg:     KindeConfig{Domain: "https://test.kinde.com", ClientSecret: "secret"},
			wantErr: "KINDE_CLIENT_ID",
		},
		{
			name:    "nothing set",
			cfg:     KindeConfig{},
			wantErr: "KINDE_AUTH_DOMAIN, KINDE_CLIENT_ID, KINDE_CLIENT_SECRET",
		},
		{
			name:    "domain is not a url",
			cfg:     KindeConfig{Domain: "test.kinde", ClientID: "id", ClientSecret: "secret"},
			wantErr: "invalid value for KINDE_AUTH_DOMAIN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, autherr.ErrConfigurationMissing)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
