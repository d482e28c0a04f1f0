// Package config holds reed configuration: store connection, watched
// directories, logging and the optional event dashboard.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Store configures the key-value store connection.
type Store struct {
	// Backend is "redis" (default) or "sqlite".
	Backend string `mapstructure:"backend"`
	// Host and Port address the Redis server.
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// Password is optional; when set the connection authenticates first.
	Password string `mapstructure:"password"`
	// DB selects the Redis logical database.
	DB int `mapstructure:"db"`
	// Path is the SQLite database file for the sqlite backend.
	Path string `mapstructure:"path"`
}

// Addr returns host:port for the Redis backend.
func (s Store) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Merge returns s with every non-zero field of o applied on top. Unset
// fields in o keep the values already in s.
func (s Store) Merge(o Store) Store {
	if o.Backend != "" {
		s.Backend = o.Backend
	}
	if o.Host != "" {
		s.Host = o.Host
	}
	if o.Port != 0 {
		s.Port = o.Port
	}
	if o.Password != "" {
		s.Password = o.Password
	}
	if o.DB != 0 {
		s.DB = o.DB
	}
	if o.Path != "" {
		s.Path = o.Path
	}
	return s
}

// Validate checks that the selected backend has what it needs.
func (s Store) Validate() error {
	switch s.Backend {
	case BackendRedis:
		if s.Host == "" {
			return errors.New("store.host is required for the redis backend")
		}
		if s.Port <= 0 || s.Port > 65535 {
			return fmt.Errorf("store.port must be between 1 and 65535 (got %d)", s.Port)
		}
	case BackendSQLite:
		if s.Path == "" {
			return errors.New("store.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", s.Backend)
	}
	return nil
}

// Log configures the log sink. An empty File logs to stderr.
type Log struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"maxSizeMB"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAgeDays"`
	Compress   bool   `mapstructure:"compress"`
}

// Dashboard configures the WebSocket event dashboard. Port 0 disables it.
type Dashboard struct {
	Port int `mapstructure:"port"`
}

// Sync tunes the sync daemon.
type Sync struct {
	// DebounceInterval is how long a file must be quiet before its change is applied.
	DebounceInterval time.Duration `mapstructure:"debounceInterval"`
	// Concurrency bounds parallel upserts and deletions during reconciliation.
	Concurrency int `mapstructure:"concurrency"`
	// QueueSize bounds the calls deferred while the daemon initializes.
	QueueSize int `mapstructure:"queueSize"`
}

// Config is the full reed configuration.
type Config struct {
	Store     Store     `mapstructure:"store"`
	Posts     string    `mapstructure:"posts"`
	Pages     string    `mapstructure:"pages"`
	Log       Log       `mapstructure:"log"`
	Dashboard Dashboard `mapstructure:"dashboard"`
	Sync      Sync      `mapstructure:"sync"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Store: Store{
			Backend: BackendRedis,
			Host:    "127.0.0.1",
			Port:    6379,
		},
		Log: Log{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Sync: Sync{
			DebounceInterval: 100 * time.Millisecond,
			Concurrency:      8,
			QueueSize:        256,
		},
	}
}

// Load reads configuration from file (YAML or TOML, by extension) and
// REED_* environment variables on top of Default. An empty file searches for
// reed.yaml / reed.toml in the working directory; a missing search result is
// not an error, a missing explicit file is.
func Load(file string) (Config, error) {
	v := viper.New()

	// Every key needs a default so AutomaticEnv can surface it on Unmarshal.
	def := Default()
	v.SetDefault("posts", def.Posts)
	v.SetDefault("pages", def.Pages)
	v.SetDefault("store.backend", def.Store.Backend)
	v.SetDefault("store.host", def.Store.Host)
	v.SetDefault("store.port", def.Store.Port)
	v.SetDefault("store.password", def.Store.Password)
	v.SetDefault("store.db", def.Store.DB)
	v.SetDefault("store.path", def.Store.Path)
	v.SetDefault("log.file", def.Log.File)
	v.SetDefault("log.compress", def.Log.Compress)
	v.SetDefault("dashboard.port", def.Dashboard.Port)
	v.SetDefault("log.maxSizeMB", def.Log.MaxSizeMB)
	v.SetDefault("log.maxBackups", def.Log.MaxBackups)
	v.SetDefault("log.maxAgeDays", def.Log.MaxAgeDays)
	v.SetDefault("sync.debounceInterval", def.Sync.DebounceInterval)
	v.SetDefault("sync.concurrency", def.Sync.Concurrency)
	v.SetDefault("sync.queueSize", def.Sync.QueueSize)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("reed")
	}

	v.SetEnvPrefix("REED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || file != "" {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return cfg, nil
}
