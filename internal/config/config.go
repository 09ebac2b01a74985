package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/giantswarm/kubedeck/internal/events"
	"github.com/giantswarm/kubedeck/internal/k8s"
	"github.com/giantswarm/kubedeck/internal/logging"
	"github.com/giantswarm/kubedeck/internal/vault"
)

const (
	// EnvPrefix is prepended to every environment override, e.g.
	// KUBEDECK_CLIENT_TIMEOUT for client.timeout.
	EnvPrefix = "KUBEDECK"

	// AppDirName is the directory under the user's home holding all state.
	AppDirName = ".kubedeck"

	configName = "config"
	configType = "yaml"
)

// Config is the resolved application configuration.
type Config struct {
	DataDir      string `mapstructure:"data_dir"`
	VaultDir     string `mapstructure:"vault_dir"`
	DatabasePath string `mapstructure:"database_path"`
	// LegacyDir holds kubeconfig files written by older releases.
	LegacyDir string `mapstructure:"legacy_dir"`
	// ReadOnly blocks tools that mutate cluster state.
	ReadOnly bool `mapstructure:"read_only"`

	Log       LogConfig       `mapstructure:"log"`
	Client    ClientConfig    `mapstructure:"client"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Events    EventsConfig    `mapstructure:"events"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// ClientConfig configures Kubernetes client construction and caching.
type ClientConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	CacheMaxEntries   int           `mapstructure:"cache_max_entries"`
	QPS               float32       `mapstructure:"qps"`
	Burst             int           `mapstructure:"burst"`
	ConnectivityCheck bool          `mapstructure:"connectivity_check"`
}

// DiscoveryConfig bounds kubeconfig folder discovery.
type DiscoveryConfig struct {
	MaxDepth int `mapstructure:"max_depth"`
}

// EventsConfig configures the websocket event channel.
type EventsConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Options control where Load looks for settings.
type Options struct {
	// ConfigFile is an explicit config file. It must exist when set.
	ConfigFile string

	// Flags are bound by name to config keys, see FlagKeys.
	Flags *pflag.FlagSet
}

// FlagKeys maps command line flag names to config keys. Flags not listed
// here are not configuration.
var FlagKeys = map[string]string{
	"data-dir":           "data_dir",
	"vault-dir":          "vault_dir",
	"database-path":      "database_path",
	"legacy-dir":         "legacy_dir",
	"read-only":          "read_only",
	"log-level":          "log.level",
	"log-format":         "log.format",
	"log-file":           "log.file",
	"client-timeout":     "client.timeout",
	"connectivity-check": "client.connectivity_check",
	"allowed-origins":    "events.allowed_origins",
}

// DefaultDataDir returns ~/.kubedeck, or a relative .kubedeck when the home
// directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return AppDirName
	}
	return filepath.Join(home, AppDirName)
}

func setDefaults(v *viper.Viper) {
	cache := k8s.DefaultCacheConfig()

	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("vault_dir", "")
	v.SetDefault("database_path", "")
	v.SetDefault("legacy_dir", "")
	v.SetDefault("read_only", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", string(logging.FormatText))
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)

	v.SetDefault("client.timeout", k8s.DefaultTimeout)
	v.SetDefault("client.cache_ttl", cache.TTL)
	v.SetDefault("client.cache_max_entries", cache.MaxEntries)
	v.SetDefault("client.qps", k8s.DefaultQPSLimit)
	v.SetDefault("client.burst", k8s.DefaultBurstLimit)
	v.SetDefault("client.connectivity_check", false)

	v.SetDefault("discovery.max_depth", vault.MaxDiscoveryDepth)

	v.SetDefault("events.allowed_origins", []string{})
}

// Load resolves the configuration from defaults, the config file, KUBEDECK_*
// environment variables and bound flags, in increasing precedence. The result
// is validated.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.Flags != nil {
		for name, key := range FlagKeys {
			flag := opts.Flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag %q: %w", name, err)
			}
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		// data_dir may already be overridden by env or flag.
		v.AddConfigPath(v.GetString("data_dir"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.applyDerivedDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDerivedDefaults() {
	if c.VaultDir == "" {
		c.VaultDir = filepath.Join(c.DataDir, "kubeconfigs")
	}
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataDir, "clusters.db")
	}
	if c.LegacyDir == "" {
		c.LegacyDir = c.VaultDir
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch logging.Format(c.Log.Format) {
	case logging.FormatText, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log.format must be %q or %q, got %q", logging.FormatText, logging.FormatJSON, c.Log.Format))
	}
	if c.Log.File != "" && c.Log.MaxSizeMB <= 0 {
		errs = append(errs, errors.New("log.max_size_mb must be positive when log.file is set"))
	}
	if c.Log.MaxBackups < 0 {
		errs = append(errs, errors.New("log.max_backups must not be negative"))
	}
	if c.Client.Timeout <= 0 {
		errs = append(errs, errors.New("client.timeout must be positive"))
	}
	if c.Client.CacheTTL <= 0 {
		errs = append(errs, errors.New("client.cache_ttl must be positive"))
	}
	if c.Client.CacheMaxEntries <= 0 {
		errs = append(errs, errors.New("client.cache_max_entries must be positive"))
	}
	if c.Client.QPS < 0 {
		errs = append(errs, errors.New("client.qps must not be negative"))
	}
	if c.Client.Burst < 0 {
		errs = append(errs, errors.New("client.burst must not be negative"))
	}
	if c.Discovery.MaxDepth < 0 {
		errs = append(errs, errors.New("discovery.max_depth must not be negative"))
	}
	for _, origin := range c.Events.AllowedOrigins {
		if origin != "*" && !strings.Contains(origin, "://") {
			errs = append(errs, fmt.Errorf("events.allowed_origins: %q is not scheme://host", origin))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// LoggingConfig returns the logger settings.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:      c.Log.Level,
		Format:     logging.Format(c.Log.Format),
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
	}
}

// CacheConfig returns the client cache settings.
func (c *Config) CacheConfig() k8s.CacheConfig {
	cache := k8s.DefaultCacheConfig()
	cache.TTL = c.Client.CacheTTL
	cache.MaxEntries = c.Client.CacheMaxEntries
	return cache
}

// ConnectivityConfig returns the client rate limits and probe settings.
func (c *Config) ConnectivityConfig() k8s.ConnectivityConfig {
	cc := k8s.DefaultConnectivityConfig()
	cc.QPS = c.Client.QPS
	cc.Burst = c.Client.Burst
	return cc
}

// HubConfig returns the websocket hub settings.
func (c *Config) HubConfig() events.HubConfig {
	return events.HubConfig{AllowedOrigins: c.Events.AllowedOrigins}
}
