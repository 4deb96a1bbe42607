package kv

import (
	"context"
	"fmt"
	"time"
)

// Backend represents the storage backend type
type Backend string

const (
	// BackendMemory uses the in-memory store
	BackendMemory Backend = "memory"
	// BackendRedis uses Redis as the backend
	BackendRedis Backend = "redis"
)

// Config holds configuration for creating a Store instance
type Config struct {
	Backend Backend

	// RedisURL is required when Backend is "redis". Both redis://host:port/db
	// and a bare host:port are accepted.
	RedisURL string

	// JanitorInterval controls how often the in-memory store evicts expired
	// keys. Default: 30 seconds.
	JanitorInterval time.Duration

	// FailoverEnabled serves from memory while Redis is unreachable.
	FailoverEnabled bool

	// ProbeInterval controls how often Redis is probed after a failover.
	// Default: 5 seconds.
	ProbeInterval time.Duration

	// StartupProbeTimeout bounds the first Redis ping. Default: 1 second.
	StartupProbeTimeout time.Duration

	Logger LogFunc
}

// StoreFactory defines a function that creates a Store instance
type StoreFactory func(cfg Config) (Store, error)

var factories = make(map[Backend]StoreFactory)

// RegisterBackend registers a store factory for a given backend. The memory
// and redis subpackages register themselves on import.
func RegisterBackend(backend Backend, factory StoreFactory) {
	factories[backend] = factory
}

func (cfg *Config) setDefaults() {
	if cfg.Backend == "" {
		cfg.Backend = BackendMemory
	}
	if cfg.JanitorInterval == 0 {
		cfg.JanitorInterval = 30 * time.Second
	}
	if cfg.ProbeInterval == 0 {
		cfg.ProbeInterval = 5 * time.Second
	}
	if cfg.StartupProbeTimeout == 0 {
		cfg.StartupProbeTimeout = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = func(string, ...any) {}
	}
}

// NewStoreFromConfig creates a new Store instance based on the provided configuration
func NewStoreFromConfig(cfg Config) (Store, error) {
	cfg.setDefaults()

	switch cfg.Backend {
	case BackendMemory:
		return newBackend(BackendMemory, cfg)
	case BackendRedis:
		return newRedisStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported backend: %s (supported: %s, %s)",
			cfg.Backend, BackendMemory, BackendRedis)
	}
}

func newBackend(backend Backend, cfg Config) (Store, error) {
	factory, ok := factories[backend]
	if !ok {
		return nil, fmt.Errorf("%s backend not registered", backend)
	}
	return factory(cfg)
}

// newRedisStore falls back to memory when Redis cannot be reached. With
// failover enabled the Redis store is kept and probed for recovery.
func newRedisStore(cfg Config) (Store, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required when backend is 'redis'")
	}

	memoryStore, err := newBackend(BackendMemory, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory store for failover: %w", err)
	}

	redisStore, err := newBackend(BackendRedis, cfg)
	if err != nil {
		cfg.Logger("Redis unavailable at startup; using in-memory store", "error", err.Error())
		return memoryStore, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StartupProbeTimeout)
	defer cancel()
	pingErr := redisStore.Ping(ctx)

	switch {
	case !cfg.FailoverEnabled && pingErr != nil:
		redisStore.Close()
		cfg.Logger("Redis health check failed at startup; using in-memory store", "error", pingErr.Error())
		return memoryStore, nil
	case !cfg.FailoverEnabled:
		memoryStore.Close()
		return redisStore, nil
	case pingErr != nil:
		cfg.Logger("Redis unhealthy at startup; using in-memory store and probing", "error", pingErr.Error())
		return NewFailoverStoreWithFallbackActive(redisStore, memoryStore, cfg.ProbeInterval, cfg.Logger), nil
	default:
		cfg.Logger("Redis healthy at startup; using Redis with in-memory failover")
		return NewFailoverStore(redisStore, memoryStore, cfg.ProbeInterval, cfg.Logger), nil
	}
}
