package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Env      string `mapstructure:"PB_ENV"`
	HTTPAddr string `mapstructure:"PB_HTTP_ADDR"`

	Database DBConfig       `mapstructure:",squash"`
	Cache    CacheConfig    `mapstructure:",squash"`
	Server   ServerConfig   `mapstructure:",squash"`
	Security SecurityConfig `mapstructure:",squash"`
}

type DBConfig struct {
	Type        string `mapstructure:"PB_DB_TYPE"` // "memory", "postgres", "sqlite"
	PostgresDSN string `mapstructure:"PB_POSTGRES_DSN"`
	SQLitePath  string `mapstructure:"PB_SQLITE_PATH"`
	AutoMigrate bool   `mapstructure:"PB_DB_AUTO_MIGRATE"`
	Seed        bool   `mapstructure:"PB_DB_SEED"`
}

type CacheConfig struct {
	// Empty disables Redis; the cache and pub/sub then run in-process.
	RedisAddr string        `mapstructure:"PB_REDIS_ADDR"`
	TTL       time.Duration `mapstructure:"PB_CACHE_TTL"`
}

type ServerConfig struct {
	RequestTimeout time.Duration `mapstructure:"PB_REQUEST_TIMEOUT"`
}

type SecurityConfig struct {
	CORSAllowedOrigins []string `mapstructure:"PB_CORS_ALLOWED_ORIGINS"`
	WSAllowedOrigins   []string `mapstructure:"PB_WS_ALLOWED_ORIGINS"`
}

var listKeys = []string{"PB_CORS_ALLOWED_ORIGINS", "PB_WS_ALLOWED_ORIGINS"}

func loadDotEnvFiles() {
	candidates := []string{
		".env",
		filepath.Join("..", ".env"),
		filepath.Join("..", "..", ".env"),
	}

	seen := make(map[string]struct{})
	for _, path := range candidates {
		abs := path
		if resolved, err := filepath.Abs(path); err == nil {
			abs = resolved
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // env vars already set take precedence
		}
	}
}

// Load reads .env files, then the environment, then applies defaults.
func Load() (*Config, error) {
	loadDotEnvFiles()
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PB_ENV", "dev")
	v.SetDefault("PB_HTTP_ADDR", ":8080")
	v.SetDefault("PB_DB_TYPE", "memory")
	v.SetDefault("PB_POSTGRES_DSN", "")
	v.SetDefault("PB_SQLITE_PATH", "postboard.db")
	v.SetDefault("PB_DB_AUTO_MIGRATE", true)
	v.SetDefault("PB_DB_SEED", false)
	v.SetDefault("PB_REDIS_ADDR", "")
	v.SetDefault("PB_CACHE_TTL", "30s")
	v.SetDefault("PB_REQUEST_TIMEOUT", "15s")
	v.SetDefault("PB_CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("PB_WS_ALLOWED_ORIGINS", "")

	// Handle array parsing for comma-separated values
	for _, key := range listKeys {
		v.Set(key, splitList(v.GetString(key)))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	cfg.Database.Type = strings.ToLower(strings.TrimSpace(cfg.Database.Type))

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (c *Config) validate() error {
	switch c.Env {
	case "dev", "test", "prod":
	default:
		return fmt.Errorf("invalid PB_ENV %q (must be dev, test, or prod)", c.Env)
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("PB_HTTP_ADDR is required")
	}

	switch c.Database.Type {
	case "memory":
	case "postgres":
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("PB_POSTGRES_DSN is required when PB_DB_TYPE is postgres")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("PB_SQLITE_PATH is required when PB_DB_TYPE is sqlite")
		}
	default:
		return fmt.Errorf("invalid PB_DB_TYPE %q (must be memory, postgres, or sqlite)", c.Database.Type)
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("PB_CACHE_TTL must not be negative")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("PB_REQUEST_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}
