// Package kvtest provides conformance tests for kv.Store implementations
package kvtest

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/leafsii/postboard-backend/pkg/kv"
)

// StoreFactory creates a fresh Store instance for testing
type StoreFactory func(t *testing.T) kv.Store

// RunConformanceTests runs all conformance tests against a Store implementation
func RunConformanceTests(t *testing.T, factory StoreFactory) {
	tests := []struct {
		name string
		test func(t *testing.T, store kv.Store)
	}{
		{"SetGet", testSetGet},
		{"GetNonExistent", testGetNonExistent},
		{"Overwrite", testOverwrite},
		{"Del", testDel},
		{"DelMany", testDelMany},
		{"Exists", testExists},
		{"TTLExpiry", testTTLExpiry},
		{"TTLWithoutExpiry", testTTLWithoutExpiry},
		{"TTLNonExistent", testTTLNonExistent},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			tt.test(t, store)
		})
	}
}

func testSetGet(t *testing.T, store kv.Store) {
	ctx := context.Background()
	value := []byte(`{"id":1,"title":"hello"}`)

	if err := store.Set(ctx, "test:string", value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	result, err := store.Get(ctx, "test:string")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !reflect.DeepEqual(result, value) {
		t.Fatalf("Expected %q, got %q", value, result)
	}
}

func testGetNonExistent(t *testing.T, store kv.Store) {
	_, err := store.Get(context.Background(), "test:nonexistent")
	if !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func testOverwrite(t *testing.T, store kv.Store) {
	ctx := context.Background()
	store.Set(ctx, "test:overwrite", []byte("one"), time.Minute)
	store.Set(ctx, "test:overwrite", []byte("two"))

	result, err := store.Get(ctx, "test:overwrite")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(result) != "two" {
		t.Fatalf("Expected %q, got %q", "two", result)
	}

	ttl, err := store.TTL(ctx, "test:overwrite")
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl >= 0 {
		t.Fatalf("Expected overwrite without ttl to clear expiry, got %v", ttl)
	}
}

func testDel(t *testing.T, store kv.Store) {
	ctx := context.Background()
	store.Set(ctx, "test:del1", []byte("a"))
	store.Set(ctx, "test:del2", []byte("b"))

	deleted, err := store.Del(ctx, "test:del1")
	if err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("Expected 1 deleted, got %d", deleted)
	}

	if _, err := store.Get(ctx, "test:del1"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for deleted key, got %v", err)
	}
	if _, err := store.Get(ctx, "test:del2"); err != nil {
		t.Fatalf("Expected test:del2 to still exist, got %v", err)
	}
}

func testDelMany(t *testing.T, store kv.Store) {
	ctx := context.Background()
	store.Set(ctx, "test:many1", []byte("a"))
	store.Set(ctx, "test:many2", []byte("b"))

	deleted, err := store.Del(ctx, "test:many1", "test:many2", "test:missing")
	if err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("Expected 2 deleted, got %d", deleted)
	}
}

func testExists(t *testing.T, store kv.Store) {
	ctx := context.Background()

	count, err := store.Exists(ctx, "test:exists")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("Expected 0 for non-existent key, got %d", count)
	}

	store.Set(ctx, "test:exists", []byte("x"))
	count, err = store.Exists(ctx, "test:exists", "test:absent")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("Expected 1, got %d", count)
	}
}

func testTTLExpiry(t *testing.T, store kv.Store) {
	ctx := context.Background()
	if err := store.Set(ctx, "test:ttl", []byte("x"), time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	ttl, err := store.TTL(ctx, "test:ttl")
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl <= 0 || ttl > time.Second {
		t.Fatalf("Expected ttl in (0, 1s], got %v", ttl)
	}

	time.Sleep(1100 * time.Millisecond)

	if _, err := store.Get(ctx, "test:ttl"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Expected key to expire, got %v", err)
	}
}

func testTTLWithoutExpiry(t *testing.T, store kv.Store) {
	ctx := context.Background()
	store.Set(ctx, "test:persistent", []byte("x"))

	ttl, err := store.TTL(ctx, "test:persistent")
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl >= 0 {
		t.Fatalf("Expected negative ttl for key without expiry, got %v", ttl)
	}
}

func testTTLNonExistent(t *testing.T, store kv.Store) {
	_, err := store.TTL(context.Background(), "test:nottl")
	if !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func testPing(t *testing.T, store kv.Store) {
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}
