package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	pebblestore "github.com/rzbill/rtm/internal/storage/pebble"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override (server.port -> RTM_SERVER_PORT).
const EnvPrefix = "RTM"

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Store  StoreConfig  `mapstructure:"store"`
	Apps   AppsConfig   `mapstructure:"apps"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig configures the broker process.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// MaxSubscriptions per connection; negative means unlimited.
	MaxSubscriptions int           `mapstructure:"max_subscriptions"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	EnableStats      bool          `mapstructure:"enable_stats"`
	StatsInterval    time.Duration `mapstructure:"stats_interval"`
	// Node names this broker in handshakes and stats. Defaults to the hostname.
	Node string `mapstructure:"node"`
}

// StoreConfig selects the log-store backends.
type StoreConfig struct {
	// Endpoints are log-store URLs (pebble://, grpc://, redis://). Empty
	// means one embedded store under DataDir.
	Endpoints     []string      `mapstructure:"endpoints"`
	DataDir       string        `mapstructure:"data_dir"`
	Fsync         string        `mapstructure:"fsync"`
	FsyncInterval time.Duration `mapstructure:"fsync_interval"`
}

// AppsConfig locates the credential store.
type AppsConfig struct {
	Path string `mapstructure:"path"`
	// Content is base64(gzip(yaml)); it wins over Path when set.
	Content string `mapstructure:"content"`
}

// LogConfig mirrors log.Config.
type LogConfig struct {
	Level   string   `mapstructure:"level"`
	Format  string   `mapstructure:"format"`
	Outputs []string `mapstructure:"outputs"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// FsyncMode maps the configured fsync policy.
func (s StoreConfig) FsyncMode() (pebblestore.FsyncMode, error) {
	switch strings.ToLower(s.Fsync) {
	case "", "always":
		return pebblestore.FsyncModeAlways, nil
	case "interval":
		return pebblestore.FsyncModeInterval, nil
	case "never":
		return pebblestore.FsyncModeNever, nil
	}
	return pebblestore.FsyncModeUnspecified, fmt.Errorf("config: unknown fsync mode %q", s.Fsync)
}

// Default returns built-in defaults: a single-node broker on one embedded store.
func Default() Config {
	dataDir := DefaultDataDir()
	return Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			MaxSubscriptions: -1,
			IdleTimeout:      5 * time.Minute,
			EnableStats:      true,
			StatsInterval:    time.Second,
		},
		Store: StoreConfig{
			Endpoints:     []string{"pebble://" + filepath.ToSlash(filepath.Join(dataDir, "node0"))},
			DataDir:       dataDir,
			Fsync:         "interval",
			FsyncInterval: 5 * time.Millisecond,
		},
		Apps: AppsConfig{Path: DefaultAppsPath()},
		Log:  LogConfig{Level: "info", Format: "text"},
	}
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.max_subscriptions", d.Server.MaxSubscriptions)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.enable_stats", d.Server.EnableStats)
	v.SetDefault("server.stats_interval", d.Server.StatsInterval)
	v.SetDefault("server.node", d.Server.Node)
	v.SetDefault("store.endpoints", []string{})
	v.SetDefault("store.data_dir", d.Store.DataDir)
	v.SetDefault("store.fsync", d.Store.Fsync)
	v.SetDefault("store.fsync_interval", d.Store.FsyncInterval)
	v.SetDefault("apps.path", d.Apps.Path)
	v.SetDefault("apps.content", "")
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.outputs", []string{})
}

// New returns a viper instance carrying defaults and the RTM_ env overlay.
// Commands bind their flags to it before calling Decode.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("apps.path", "RTM_APPS_PATH", "RTM_APPS_CONFIG")
	_ = v.BindEnv("apps.content", "RTM_APPS_CONFIG_CONTENT")
	return v
}

// Load reads configuration from a YAML, JSON or TOML file (by extension) and
// overlays RTM_* environment variables. If path is empty only defaults and
// env apply.
func Load(path string) (Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	return Decode(v)
}

// Decode unmarshals v, fills derived defaults and validates the result.
func Decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if len(cfg.Store.Endpoints) == 0 {
		cfg.Store.Endpoints = []string{"pebble://" + filepath.ToSlash(filepath.Join(cfg.Store.DataDir, "node0"))}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.EnableStats && c.Server.StatsInterval <= 0 {
		errs = append(errs, errors.New("server.stats_interval must be positive"))
	}
	if c.Server.IdleTimeout < 0 {
		errs = append(errs, errors.New("server.idle_timeout must not be negative"))
	}
	if len(c.Store.Endpoints) == 0 {
		errs = append(errs, errors.New("store.endpoints is empty"))
	}
	seen := make(map[string]bool, len(c.Store.Endpoints))
	for _, ep := range c.Store.Endpoints {
		if seen[ep] {
			errs = append(errs, fmt.Errorf("store.endpoints: duplicate %s", ep))
		}
		seen[ep] = true
	}
	if _, err := c.Store.FsyncMode(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: invalid: %w", errors.Join(errs...))
	}
	return nil
}
