package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/leafsii/postboard-backend/internal/metrics"
	"github.com/leafsii/postboard-backend/pkg/kv"
	_ "github.com/leafsii/postboard-backend/pkg/kv/memory"
	kvredis "github.com/leafsii/postboard-backend/pkg/kv/redis"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache is the JSON cache and event bus used by the post service. Values live
// in a kv.Store; pub/sub goes through Redis when it answered at startup and
// through an in-process hub otherwise.
type Cache struct {
	kvStore kv.Store
	// client is nil in in-memory mode
	client    *redis.Client
	pubsubHub *PubSubHub

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

// NewCache connects to Redis at addr (host:port or redis:// URL). An empty
// addr, or a Redis that does not answer, yields an in-memory cache; with a
// Redis that goes away later the values fail over to memory until it returns.
func NewCache(addr string, logger *zap.SugaredLogger, m *metrics.Metrics) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	c := &Cache{logger: logger, metrics: m}

	if addr == "" {
		logger.Infow("No Redis address configured; using in-memory cache")
		return c.inMemory()
	}

	opt, err := kvredis.ParseOptions(addr)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		logger.Warnw("Redis unavailable; using in-memory cache with in-process pubsub", "error", err)
		return c.inMemory()
	}

	c.client = client
	c.kvStore, err = kv.NewStoreFromConfig(kv.Config{
		Backend:         kv.BackendRedis,
		RedisURL:        addr,
		FailoverEnabled: true,
		Logger:          logger.Infow,
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create cache store: %w", err)
	}
	return c, nil
}

func (c *Cache) inMemory() (*Cache, error) {
	store, err := kv.NewStoreFromConfig(kv.Config{Backend: kv.BackendMemory})
	if err != nil {
		return nil, err
	}
	c.kvStore = store
	c.pubsubHub = NewPubSubHub()
	return c, nil
}

// keyspace drops a trailing numeric id so per-post keys share one label.
func keyspace(key string) string {
	i := strings.LastIndexByte(key, ':')
	if i < 0 || i == len(key)-1 {
		return key
	}
	for _, r := range key[i+1:] {
		if r < '0' || r > '9' {
			return key
		}
	}
	return key[:i]
}

func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.kvStore.Get(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			if c.metrics != nil {
				c.metrics.RecordCacheMiss(ctx, keyspace(key))
			}
			return ErrCacheMiss
		}
		c.logger.Errorw("Cache get error", "key", key, "error", err)
		return fmt.Errorf("cache get error: %w", err)
	}
	if c.metrics != nil {
		c.metrics.RecordCacheHit(ctx, keyspace(key))
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	if err := c.kvStore.Set(ctx, key, data, ttl); err != nil {
		c.logger.Errorw("Cache set error", "key", key, "error", err)
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := c.kvStore.Del(ctx, keys...); err != nil {
		c.logger.Errorw("Cache delete error", "keys", keys, "error", err)
		return fmt.Errorf("cache delete error: %w", err)
	}
	return nil
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	count, err := c.kvStore.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("cache exists error: %w", err)
	}
	return count > 0, nil
}

// Publish JSON-encodes message onto channel.
func (c *Cache) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("pubsub marshal error: %w", err)
	}

	if c.client != nil {
		if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
			c.logger.Errorw("Publish error", "channel", channel, "error", err)
			return fmt.Errorf("pubsub publish error: %w", err)
		}
		return nil
	}

	n := c.pubsubHub.Publish(channel, string(data))
	c.logger.Debugw("Published to in-memory pubsub", "channel", channel, "subscribers", n)
	return nil
}

// Subscribe streams messages from channels until ctx is done, then closes
// the returned channel.
func (c *Cache) Subscribe(ctx context.Context, channels ...string) <-chan Message {
	out := make(chan Message, 100)

	if c.client != nil {
		ps := c.client.Subscribe(ctx, channels...)
		go func() {
			defer close(out)
			defer ps.Close()
			in := ps.Channel()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-in:
					if !ok {
						return
					}
					select {
					case out <- Message{Channel: msg.Channel, Payload: msg.Payload}:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
		return out
	}

	sub := c.pubsubHub.Subscribe(ctx, channels...)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- msg:
			case <-ctx.Done():
				sub.Close()
				return
			}
		}
	}()
	return out
}

// IsInMemoryMode returns true if the cache is running without Redis
func (c *Cache) IsInMemoryMode() bool {
	return c.client == nil
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.kvStore.Ping(ctx)
}

func (c *Cache) Close() error {
	var errs []error
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	errs = append(errs, c.kvStore.Close())
	return errors.Join(errs...)
}
