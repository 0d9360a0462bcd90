// Package config loads memberctl settings from defaults, the user config
// file, MEMBERCTL_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/s155cp/memberctl/pkg/auth"
	"github.com/s155cp/memberctl/pkg/auth/types"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the resolved configuration.
type Config struct {
	APIURL   string              `mapstructure:"api_url"`
	WebURL   string              `mapstructure:"web_url"`
	Storage  types.StorageConfig `mapstructure:"storage"`
	Refresh  auth.RefreshConfig  `mapstructure:"refresh"`
	Log      LogConfig           `mapstructure:"log"`
	Google   GoogleConfig        `mapstructure:"google"`
	Progress ProgressConfig      `mapstructure:"progress"`
	Cache    CacheConfig         `mapstructure:"cache"`
	History  HistoryConfig       `mapstructure:"history"`
}

// LogConfig configures diagnostic logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GoogleConfig configures Google sign-in.
type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	OpenBrowser  bool   `mapstructure:"open_browser"`
	CallbackPort int    `mapstructure:"callback_port"`
	// AuthURL and TokenURL override Google's endpoint, e.g. to point at
	// mock-auth-api during development.
	AuthURL  string `mapstructure:"auth_url"`
	TokenURL string `mapstructure:"token_url"`
}

// ProgressConfig selects the loading indicator.
type ProgressConfig struct {
	Type string `mapstructure:"type"`
}

// CacheConfig controls the on-disk cache of API responses.
type CacheConfig struct {
	// Dir defaults to the XDG cache directory.
	Dir string `mapstructure:"dir"`
	// TTL is how long responses are reused. 0 disables the cache.
	TTL time.Duration `mapstructure:"ttl"`
}

// HistoryConfig controls the session event journal.
type HistoryConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Path defaults to history.json in the state directory.
	Path       string `mapstructure:"path"`
	MaxEntries int    `mapstructure:"max_entries"`
}

// flagKeys maps persistent flag names to config keys.
var flagKeys = map[string]string{
	"api-url":   "api_url",
	"web-url":   "web_url",
	"storage":   "storage.type",
	"log-level": "log.level",
}

// Loader handles loading configurations from various sources.
type Loader struct {
	cliName    string
	envPrefix  string
	configPath string
	v          *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader(cliName string) *Loader {
	l := &Loader{
		cliName:   cliName,
		envPrefix: strings.ToUpper(strings.ReplaceAll(cliName, "-", "_")),
		v:         viper.New(),
	}
	setDefaults(l.v, cliName)
	return l
}

// SetConfigFile overrides the config file location.
func (l *Loader) SetConfigFile(path string) {
	l.configPath = path
}

// BindFlags lets the known flags in fs take precedence over file and env.
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load resolves the configuration.
// Priority: Flag > ENV > Config file > Default
func (l *Loader) Load() (*Config, error) {
	v := l.v
	v.SetEnvPrefix(l.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	path := l.ConfigPath()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.WebURL == "" {
		cfg.WebURL = cfg.APIURL
	}

	return &cfg, nil
}

// ConfigPath returns the config file path in use.
func (l *Loader) ConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}
	if customPath := os.Getenv(l.envPrefix + "_CONFIG"); customPath != "" {
		return customPath
	}
	return filepath.Join(xdg.ConfigHome, l.cliName, "config.yaml")
}

// GetStateDir returns the XDG-compliant state directory.
func (l *Loader) GetStateDir() string {
	return filepath.Join(xdg.StateHome, l.cliName)
}

// EnsureConfigDirs creates the config and state directories.
func (l *Loader) EnsureConfigDirs() error {
	dirs := []string{
		filepath.Dir(l.ConfigPath()),
		l.GetStateDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// Save writes cfg to the config file.
func (l *Loader) Save(cfg *Config) error {
	configPath := l.ConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(toFile(cfg))
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func setDefaults(v *viper.Viper, cliName string) {
	refresh := auth.DefaultRefreshConfig()

	v.SetDefault("api_url", "http://localhost:8080")
	v.SetDefault("web_url", "")
	v.SetDefault("storage.type", string(types.StorageTypeFile))
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.keyring_service", cliName)
	v.SetDefault("storage.keyring_user", "")
	v.SetDefault("refresh.buffer", refresh.RefreshBuffer)
	v.SetDefault("refresh.min_delay", refresh.MinRefreshDelay)
	v.SetDefault("refresh.max_retries", refresh.MaxRetries)
	v.SetDefault("refresh.retry_delay", refresh.RetryDelay)
	v.SetDefault("refresh.redirect_to", "")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
	v.SetDefault("google.client_id", "")
	v.SetDefault("google.open_browser", true)
	v.SetDefault("google.callback_port", 0)
	v.SetDefault("google.auth_url", "")
	v.SetDefault("google.token_url", "")
	v.SetDefault("progress.type", "spinner")
	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")
	v.SetDefault("history.max_entries", 500)
}

// fileConfig is the on-disk layout. Durations are written as strings.
type fileConfig struct {
	APIURL  string              `yaml:"api_url"`
	WebURL  string              `yaml:"web_url,omitempty"`
	Storage types.StorageConfig `yaml:"storage"`
	Refresh struct {
		Buffer     string `yaml:"buffer"`
		MinDelay   string `yaml:"min_delay"`
		MaxRetries int    `yaml:"max_retries"`
		RetryDelay string `yaml:"retry_delay"`
		RedirectTo string `yaml:"redirect_to,omitempty"`
	} `yaml:"refresh"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Google struct {
		ClientID     string `yaml:"client_id,omitempty"`
		OpenBrowser  bool   `yaml:"open_browser"`
		CallbackPort int    `yaml:"callback_port,omitempty"`
		AuthURL      string `yaml:"auth_url,omitempty"`
		TokenURL     string `yaml:"token_url,omitempty"`
	} `yaml:"google"`
	Progress struct {
		Type string `yaml:"type"`
	} `yaml:"progress"`
	Cache struct {
		Dir string `yaml:"dir,omitempty"`
		TTL string `yaml:"ttl"`
	} `yaml:"cache"`
	History struct {
		Enabled    bool   `yaml:"enabled"`
		Path       string `yaml:"path,omitempty"`
		MaxEntries int    `yaml:"max_entries"`
	} `yaml:"history"`
}

func toFile(cfg *Config) *fileConfig {
	f := &fileConfig{
		APIURL:  cfg.APIURL,
		WebURL:  cfg.WebURL,
		Storage: cfg.Storage,
	}
	f.Refresh.Buffer = durationString(cfg.Refresh.RefreshBuffer)
	f.Refresh.MinDelay = durationString(cfg.Refresh.MinRefreshDelay)
	f.Refresh.MaxRetries = cfg.Refresh.MaxRetries
	f.Refresh.RetryDelay = durationString(cfg.Refresh.RetryDelay)
	f.Refresh.RedirectTo = cfg.Refresh.RedirectTo
	f.Log.Level = cfg.Log.Level
	f.Log.Format = cfg.Log.Format
	f.Google.ClientID = cfg.Google.ClientID
	f.Google.OpenBrowser = cfg.Google.OpenBrowser
	f.Google.CallbackPort = cfg.Google.CallbackPort
	f.Google.AuthURL = cfg.Google.AuthURL
	f.Google.TokenURL = cfg.Google.TokenURL
	f.Progress.Type = cfg.Progress.Type
	f.Cache.Dir = cfg.Cache.Dir
	f.Cache.TTL = durationString(cfg.Cache.TTL)
	f.History.Enabled = cfg.History.Enabled
	f.History.Path = cfg.History.Path
	f.History.MaxEntries = cfg.History.MaxEntries
	return f
}

func durationString(d time.Duration) string {
	return d.String()
}
