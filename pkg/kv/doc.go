// Package kv provides the byte-oriented key-value store behind the server-side
// post cache, with in-memory and Redis-backed implementations.
//
// Example usage:
//
//	store, err := NewStoreFromConfig(Config{
//		Backend:         BackendRedis,
//		RedisURL:        "redis://localhost:6379/0",
//		FailoverEnabled: true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	err = store.Set(ctx, "pb:posts:list", payload, 30*time.Second)
//
// A Redis store wrapped in a FailoverStore keeps serving from memory while
// Redis is unreachable and switches back once a probe succeeds. Entries
// written during the outage are not copied back; instead every key set or
// deleted on the fallback is deleted from Redis before it is used again.
package kv
