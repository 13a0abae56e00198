package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brizzai/arclio-login/internal/auth/autherr"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// Version information - set by GoReleaser during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// GetVersionInfo returns a formatted version string
func GetVersionInfo() string {
	return fmt.Sprintf("arclio version %s, commit %s, built at %s", version, commit, date)
}

// Version returns the bare version string
func Version() string {
	return version
}

type Config struct {
	Kinde    KindeConfig    `mapstructure:"kinde"`
	Callback CallbackConfig `mapstructure:"callback"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// KindeConfig holds the identity provider settings. They come from
// KINDE_AUTH_DOMAIN, KINDE_CLIENT_ID and KINDE_CLIENT_SECRET.
type KindeConfig struct {
	Domain       string `mapstructure:"domain" validate:"required,url"`
	ClientID     string `mapstructure:"client_id" validate:"required"`
	ClientSecret string `mapstructure:"client_secret" validate:"required"`
}

type CallbackConfig struct {
	Ports   []int         `mapstructure:"ports"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// StorageBackend selects where credentials are persisted
type StorageBackend string

const (
	StorageBackendFile    StorageBackend = "file"
	StorageBackendKeyring StorageBackend = "keyring"
)

type StorageConfig struct {
	Backend StorageBackend `mapstructure:"backend"`
	Dir     string         `mapstructure:"dir"`
}

type LoggingConfig struct {
	Level             string `mapstructure:"level"`
	Format            string `mapstructure:"format"`
	Color             bool   `mapstructure:"color"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
	OutputPath        string `mapstructure:"output_path"`
	AppendToFile      bool   `mapstructure:"append_to_file"`
	DisableConsole    bool   `mapstructure:"disable_console"`
}

// envAliases maps config keys to the environment variables that feed them,
// in priority order.
var envAliases = map[string][]string{
	"kinde.domain":        {"KINDE_AUTH_DOMAIN", "KINDE_DOMAIN"},
	"kinde.client_id":     {"KINDE_CLIENT_ID"},
	"kinde.client_secret": {"KINDE_CLIENT_SECRET"},
}

// missingEnvNames maps validation failures back to the env var a user should set.
var missingEnvNames = map[string]string{
	"Domain":       "KINDE_AUTH_DOMAIN",
	"ClientID":     "KINDE_CLIENT_ID",
	"ClientSecret": "KINDE_CLIENT_SECRET",
}

// DefaultDir returns the per-user configuration directory (~/.config/arclio).
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "arclio")
	}
	return filepath.Join(home, ".config", "arclio")
}

// InitFlags initializes command line flags (without parsing)
func InitFlags(fs *pflag.FlagSet) {
	fs.String("log-level", "warn", "Log level (debug|info|warn|error)")
	fs.String("storage-backend", string(StorageBackendFile), "Credential storage backend (file|keyring)")
	// Note: no Parse() here as cobra parses the flag set
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("callback.ports", []int{3100, 3101, 3102, 3103, 3104})
	v.SetDefault("callback.timeout", 120*time.Second)
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("storage.backend", string(StorageBackendFile))
	v.SetDefault("storage.dir", DefaultDir())
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.disable_stacktrace", true)
}

// Load reads configuration from the environment, the optional
// ~/.config/arclio/config.yaml file and the given flag set. Missing Kinde
// settings are not an error here; callers that need them call Validate.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ARCLIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for key, envs := range envAliases {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, err
		}
	}

	if fs != nil {
		if f := fs.Lookup("log-level"); f != nil {
			if err := v.BindPFlag("logging.level", f); err != nil {
				return nil, err
			}
		}
		if f := fs.Lookup("storage-backend"); f != nil {
			if err := v.BindPFlag("storage.backend", f); err != nil {
				return nil, err
			}
		}
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(DefaultDir())

	if err := v.ReadInConfig(); err != nil {
		// It's OK if the file doesn't exist, only error if it's another problem
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	config.Kinde.Domain = strings.TrimRight(config.Kinde.Domain, "/")

	switch config.Storage.Backend {
	case StorageBackendFile, StorageBackendKeyring:
	default:
		return nil, fmt.Errorf("unsupported storage backend %q, expected file or keyring", config.Storage.Backend)
	}

	if len(config.Callback.Ports) == 0 {
		return nil, fmt.Errorf("callback.ports must list at least one port")
	}

	return &config, nil
}

// Validate checks that the provider settings are present. The returned error
// wraps autherr.ErrConfigurationMissing and names the environment variables to set.
func (c *KindeConfig) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	var missing, invalid []string
	for _, fe := range verrs {
		name := missingEnvNames[fe.StructField()]
		if fe.Tag() == "required" {
			missing = append(missing, name)
		} else {
			invalid = append(invalid, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: set %s", autherr.ErrConfigurationMissing, strings.Join(missing, ", "))
	}
	return fmt.Errorf("%w: invalid value for %s", autherr.ErrConfigurationMissing, strings.Join(invalid, ", "))
}

// Providers exposes config sections to fx consumers
func Providers(cfg *Config) (*KindeConfig, *CallbackConfig, *HTTPConfig, *StorageConfig, *LoggingConfig) {
	return &cfg.Kinde, &cfg.Callback, &cfg.HTTP, &cfg.Storage, &cfg.Logging
}

// Module provides the configuration sections. The root *Config is supplied by the caller.
var Module = fx.Module("config",
	fx.Provide(Providers),
)
