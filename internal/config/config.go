// Package config loads the share server settings from flags, environment
// (GUESTSHARE_*) and an optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "GUESTSHARE"

// Config holds every setting of the share server.
type Config struct {
	Listen  string        `mapstructure:"listen"`
	Prefix  string        `mapstructure:"prefix"`
	UIPath  string        `mapstructure:"ui_path"`
	Realm   string        `mapstructure:"realm"`
	Cookie  CookieConfig  `mapstructure:"cookie"`
	Session SessionConfig `mapstructure:"session"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Folder  FolderConfig  `mapstructure:"folder"`
	Log     LogConfig     `mapstructure:"log"`
}

type CookieConfig struct {
	HashKey  string `mapstructure:"hash_key"`
	BlockKey string `mapstructure:"block_key"`
}

type SessionConfig struct {
	// Backend is "memory" or "redis".
	Backend string `mapstructure:"backend"`
	// MaxSessions caps live sessions across all guests (memory backend).
	MaxSessions int `mapstructure:"max_sessions"`
	// MaxPerGuest caps live sessions of one guest (redis backend).
	MaxPerGuest   int           `mapstructure:"max_per_guest"`
	RatePerMinute int           `mapstructure:"rate_per_minute"`
	TTL           time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type FolderConfig struct {
	// Backend is "memory" or "postgres".
	Backend     string `mapstructure:"backend"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	MaxConns    int    `mapstructure:"max_conns"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	// Development switches to the human readable console encoder.
	Development bool `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("prefix", "/share/")
	v.SetDefault("ui_path", "/appsuite/")
	v.SetDefault("realm", "Guest Share")
	v.SetDefault("cookie.hash_key", "")
	v.SetDefault("cookie.block_key", "")
	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.max_sessions", 10000)
	v.SetDefault("session.max_per_guest", 20)
	v.SetDefault("session.rate_per_minute", 30)
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("folder.backend", "memory")
	v.SetDefault("folder.postgres_dsn", "")
	v.SetDefault("folder.max_conns", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// RegisterFlags adds the command line flags Load understands.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a config file (yaml, toml or json)")
	fs.String("listen", ":8080", "address to listen on")
	fs.String("prefix", "/share/", "path prefix of share links")
	fs.String("ui-path", "/appsuite/", "path of the web application guests are redirected to")
	fs.String("session-backend", "memory", "session store: memory or redis")
	fs.String("folder-backend", "memory", "folder store: memory or postgres")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
}

// Load parses args with fs (which must have been passed to RegisterFlags)
// and merges flags, environment, config file and defaults, in that order of
// precedence.
func Load(fs *pflag.FlagSet, args []string) (*Config, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	bindings := map[string]string{
		"listen":          "listen",
		"prefix":          "prefix",
		"ui_path":         "ui-path",
		"session.backend": "session-backend",
		"folder.backend":  "folder-backend",
		"log.level":       "log-level",
	}
	for key, flag := range bindings {
		if f := fs.Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", flag, err)
			}
		}
	}

	if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
		v.SetConfigFile(f.Value.String())
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis session backend")
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}

	switch c.Folder.Backend {
	case "memory":
	case "postgres":
		if c.Folder.PostgresDSN == "" {
			return fmt.Errorf("folder.postgres_dsn is required for the postgres folder backend")
		}
	default:
		return fmt.Errorf("unknown folder backend %q", c.Folder.Backend)
	}

	if c.Cookie.HashKey != "" && len(c.Cookie.HashKey) < 32 {
		return fmt.Errorf("cookie.hash_key must be at least 32 bytes")
	}
	if n := len(c.Cookie.BlockKey); n != 0 && n != 16 && n != 24 && n != 32 {
		return fmt.Errorf("cookie.block_key must be 16, 24 or 32 bytes")
	}
	if c.Session.MaxSessions < 0 || c.Session.MaxPerGuest < 0 {
		return fmt.Errorf("session limits must not be negative")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	return nil
}
