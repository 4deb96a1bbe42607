package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafsii/postboard-backend/pkg/kv"
	"github.com/leafsii/postboard-backend/pkg/kv/kvtest"
)

func TestRedisStore(t *testing.T) {
	redisURL := os.Getenv("PB_TEST_REDIS_ADDR")
	if redisURL == "" {
		t.Skip("PB_TEST_REDIS_ADDR not set, skipping Redis tests")
	}

	kvtest.RunConformanceTests(t, func(t *testing.T) kv.Store {
		store, err := New(redisURL)
		require.NoError(t, err)
		require.NoError(t, store.client.FlushDB(context.Background()).Err())
		return store
	})
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"Nil", nil, false},
		{"KeyMissing", redis.Nil, false},
		{"Canceled", context.Canceled, false},
		{"Refused", syscall.ECONNREFUSED, true},
		{"WrappedReset", fmt.Errorf("dial: %w", syscall.ECONNRESET), true},
		{"EOF", io.EOF, true},
		{"ClientClosed", redis.ErrClosed, true},
		{"WrongType", errors.New("WRONGTYPE Operation against a key holding the wrong kind of value"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConnectionError(tt.err))
		})
	}
}

func TestUnreachableServerIsUnavailable(t *testing.T) {
	store, err := New("127.0.0.1:1")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get(context.Background(), "k")
	assert.ErrorIs(t, err, kv.ErrBackendUnavailable)
}

func TestParseOptions(t *testing.T) {
	opt, err := ParseOptions("localhost:6380")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6380", opt.Addr)

	opt, err = ParseOptions("redis://:secret@cache:6379/2")
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opt.Addr)
	assert.Equal(t, "secret", opt.Password)
	assert.Equal(t, 2, opt.DB)
}
