// Package config loads runtime configuration from the environment.
//
// Values come from, in order of precedence: real environment variables, an
// optional .env file in the working directory, and the defaults below.
// Everything is resolved once at startup and passed down as plain structs;
// no other package reads the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration handed to server.New.
type Config struct {
	Server   ServerConfig
	GitHub   GitHubConfig
	Cache    CacheConfig
	Recovery RecoveryConfig
	Session  SessionConfig
}

type ServerConfig struct {
	Port     int
	LogLevel string
}

// GitHubConfig configures the Remote Data Client.
// Token is optional; without it requests are anonymous and the quota is lower.
type GitHubConfig struct {
	Username   string
	Token      string
	APIURL     string
	GraphQLURL string
	RawURL     string
	Timeout    time.Duration
}

// CacheConfig selects the key-value backend holding the single snapshot slot.
type CacheConfig struct {
	Backend       string // "sqlite" or "redis"
	DBPath        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Key           string
	TTL           time.Duration
}

// RecoveryConfig holds the timers used while the app is in a blocking error state.
type RecoveryConfig struct {
	Interval      time.Duration
	ImpactDelay   time.Duration
	Cycle         time.Duration
	CountdownTick time.Duration
}

// SessionConfig covers the view-state cookie and manual refresh guards.
type SessionConfig struct {
	Secret         string
	RefreshKeyHash string
	RefreshPerMin  int
}

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Load reads the configuration. It fails only when a required value is
// missing or a value is out of range.
func Load() (*Config, error) {
	// A missing .env file is normal in production.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Port:     v.GetInt("PORT"),
			LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),
		},
		GitHub: GitHubConfig{
			Username:   strings.TrimSpace(v.GetString("GITHUB_USERNAME")),
			Token:      strings.TrimSpace(v.GetString("GITHUB_TOKEN")),
			APIURL:     strings.TrimRight(v.GetString("GITHUB_API_URL"), "/"),
			GraphQLURL: v.GetString("GITHUB_GRAPHQL_URL"),
			RawURL:     strings.TrimRight(v.GetString("GITHUB_RAW_URL"), "/"),
			Timeout:    v.GetDuration("HTTP_TIMEOUT"),
		},
		Cache: CacheConfig{
			Backend:       strings.ToLower(v.GetString("CACHE_BACKEND")),
			DBPath:        v.GetString("DB_PATH"),
			RedisAddr:     v.GetString("REDIS_ADDR"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			RedisDB:       v.GetInt("REDIS_DB"),
			Key:           v.GetString("CACHE_KEY"),
			TTL:           v.GetDuration("CACHE_TTL"),
		},
		Recovery: RecoveryConfig{
			Interval:      v.GetDuration("RECOVERY_INTERVAL"),
			ImpactDelay:   v.GetDuration("RECOVERY_IMPACT_DELAY"),
			Cycle:         v.GetDuration("RECOVERY_CYCLE"),
			CountdownTick: v.GetDuration("COUNTDOWN_TICK"),
		},
		Session: SessionConfig{
			Secret:         v.GetString("SESSION_SECRET"),
			RefreshKeyHash: v.GetString("REFRESH_KEY_HASH"),
			RefreshPerMin:  v.GetInt("REFRESH_RATE"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("GITHUB_USERNAME", "")
	v.SetDefault("GITHUB_TOKEN", "")
	v.SetDefault("GITHUB_API_URL", "https://api.github.com")
	v.SetDefault("GITHUB_GRAPHQL_URL", "https://api.github.com/graphql")
	v.SetDefault("GITHUB_RAW_URL", "https://raw.githubusercontent.com")
	v.SetDefault("HTTP_TIMEOUT", "10s")

	v.SetDefault("CACHE_BACKEND", BackendSQLite)
	v.SetDefault("DB_PATH", "data/brewfolio.db")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_KEY", "github_portfolio_cache")
	v.SetDefault("CACHE_TTL", "30m")

	v.SetDefault("RECOVERY_INTERVAL", "5s")
	v.SetDefault("RECOVERY_IMPACT_DELAY", "1200ms")
	v.SetDefault("RECOVERY_CYCLE", "2s")
	v.SetDefault("COUNTDOWN_TICK", "1s")

	v.SetDefault("SESSION_SECRET", "")
	v.SetDefault("REFRESH_KEY_HASH", "")
	v.SetDefault("REFRESH_RATE", 6)
}

func (c *Config) validate() error {
	if c.GitHub.Username == "" {
		return errors.New("config: missing env GITHUB_USERNAME")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid PORT %d", c.Server.Port)
	}
	switch c.Cache.Backend {
	case BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("config: unsupported CACHE_BACKEND %q (expected sqlite or redis)", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return errors.New("config: CACHE_TTL must be positive")
	}
	if c.Recovery.Interval <= 0 || c.Recovery.CountdownTick <= 0 {
		return errors.New("config: RECOVERY_INTERVAL and COUNTDOWN_TICK must be positive")
	}
	if c.Recovery.ImpactDelay > c.Recovery.Cycle {
		return errors.New("config: RECOVERY_IMPACT_DELAY must not exceed RECOVERY_CYCLE")
	}
	if c.Session.Secret != "" && len(c.Session.Secret) < 16 {
		return errors.New("config: SESSION_SECRET must be at least 16 characters")
	}
	if c.Session.RefreshPerMin <= 0 {
		return errors.New("config: REFRESH_RATE must be positive")
	}
	return nil
}
