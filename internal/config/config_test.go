package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.True(t, cfg.IsDev())
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "memory", cfg.Database.Type)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 15*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.Security.CORSAllowedOrigins)
	assert.Empty(t, cfg.Security.WSAllowedOrigins)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PB_ENV", "PROD")
	t.Setenv("PB_DB_TYPE", "postgres")
	t.Setenv("PB_POSTGRES_DSN", "postgres://u:p@db:5432/posts")
	t.Setenv("PB_CACHE_TTL", "5s")
	t.Setenv("PB_REDIS_ADDR", "redis:6379")
	t.Setenv("PB_WS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.True(t, cfg.IsProd())
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "postgres://u:p@db:5432/posts", cfg.Database.PostgresDSN)
	assert.Equal(t, 5*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "redis:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.WSAllowedOrigins)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"BadEnv", map[string]string{"PB_ENV": "staging"}, "PB_ENV"},
		{"BadDBType", map[string]string{"PB_DB_TYPE": "oracle"}, "PB_DB_TYPE"},
		{"PostgresWithoutDSN", map[string]string{"PB_DB_TYPE": "postgres"}, "PB_POSTGRES_DSN"},
		{"NegativeTTL", map[string]string{"PB_CACHE_TTL": "-1s"}, "PB_CACHE_TTL"},
		{"ZeroTimeout", map[string]string{"PB_REQUEST_TIMEOUT": "0s"}, "PB_REQUEST_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := load(viper.New())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
