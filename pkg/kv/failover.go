package kv

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// LogFunc is a function type for structured logging. zap's SugaredLogger.Infow
// satisfies it.
type LogFunc func(msg string, fields ...any)

// FailoverStore wraps a primary and fallback store, switching to the fallback
// when the primary reports ErrBackendUnavailable and back once it answers a
// probe again. Keys written or deleted while on the fallback are deleted from
// the primary before it is used again, so values it held from before the
// outage cannot resurface.
type FailoverStore struct {
	primary       Store
	fallback      Store
	active        atomic.Value // Store
	probeInterval time.Duration
	logger        LogFunc

	// writeMu is held shared by writes and exclusively while promoting.
	writeMu sync.RWMutex
	dirty   map[string]struct{} // guarded by dirtyMu
	dirtyMu sync.Mutex

	mu        sync.Mutex
	probing   bool
	closeOnce sync.Once
	closed    chan struct{}
	probeStop chan struct{}
	probeDone chan struct{}
	promote   chan struct{}
}

// NewFailoverStore creates a failover store that starts on the primary.
func NewFailoverStore(primary, fallback Store, probeInterval time.Duration, logger LogFunc) *FailoverStore {
	if logger == nil {
		logger = func(string, ...any) {}
	}

	fs := &FailoverStore{
		primary:       primary,
		fallback:      fallback,
		probeInterval: probeInterval,
		logger:        logger,
		dirty:         make(map[string]struct{}),
		closed:        make(chan struct{}),
		promote:       make(chan struct{}, 1),
	}
	fs.active.Store(primary)

	go fs.handlePromotions()
	return fs
}

// NewFailoverStoreWithFallbackActive creates a failover store that starts on
// the fallback and probes the primary for recovery.
func NewFailoverStoreWithFallbackActive(primary, fallback Store, probeInterval time.Duration, logger LogFunc) *FailoverStore {
	fs := NewFailoverStore(primary, fallback, probeInterval, logger)
	fs.active.Store(fallback)
	fs.startProbing()
	return fs
}

func (fs *FailoverStore) activeStore() Store {
	return fs.active.Load().(Store)
}

// ActiveBackend reports "primary" or "fallback".
func (fs *FailoverStore) ActiveBackend() string {
	if fs.activeStore() == fs.primary {
		return "primary"
	}
	return "fallback"
}

func (fs *FailoverStore) demoteToFallback() {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.activeStore() == fs.fallback {
		return
	}
	fs.active.Store(fs.fallback)
	fs.logger("Failing over to in-memory store", "reason", "primary_unavailable")
	fs.startProbingLocked()
}

func (fs *FailoverStore) handlePromotions() {
	for {
		select {
		case <-fs.closed:
			return
		case <-fs.promote:
			if fs.activeStore() == fs.primary {
				continue
			}
			if err := fs.promoteToPrimary(); err != nil {
				fs.logger("Primary recovery postponed", "error", err)
				continue
			}
			fs.logger("Recovered to primary store", "reason", "primary_healthy")
			fs.stopProbing()
		}
	}
}

// promoteToPrimary deletes the keys touched on the fallback from both stores
// and only then makes the primary active. Writes wait until the switch is done.
func (fs *FailoverStore) promoteToPrimary() error {
	fs.writeMu.Lock()
	defer fs.writeMu.Unlock()

	keys := fs.dirtyKeys()
	if len(keys) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), fs.probeInterval)
		_, err := fs.primary.Del(ctx, keys...)
		cancel()
		if err != nil {
			return err
		}
		// The fallback copies would be stale by the next outage.
		if _, err := fs.fallback.Del(context.Background(), keys...); err != nil {
			fs.logger("Failed to clear fallback store", "error", err)
		}
	}

	fs.dirtyMu.Lock()
	fs.dirty = make(map[string]struct{})
	fs.dirtyMu.Unlock()

	fs.active.Store(fs.primary)
	return nil
}

func (fs *FailoverStore) markDirty(keys ...string) {
	fs.dirtyMu.Lock()
	defer fs.dirtyMu.Unlock()
	for _, k := range keys {
		fs.dirty[k] = struct{}{}
	}
}

func (fs *FailoverStore) dirtyKeys() []string {
	fs.dirtyMu.Lock()
	defer fs.dirtyMu.Unlock()
	keys := make([]string, 0, len(fs.dirty))
	for k := range fs.dirty {
		keys = append(keys, k)
	}
	return keys
}

func (fs *FailoverStore) startProbing() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.startProbingLocked()
}

// startProbingLocked must hold mu.
func (fs *FailoverStore) startProbingLocked() {
	if fs.probing {
		return
	}
	fs.probing = true
	fs.probeStop = make(chan struct{})
	fs.probeDone = make(chan struct{})
	go fs.probeLoop(fs.probeStop, fs.probeDone)
}

func (fs *FailoverStore) stopProbing() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.stopProbingLocked()
}

// stopProbingLocked must hold mu.
func (fs *FailoverStore) stopProbingLocked() {
	if !fs.probing {
		return
	}
	close(fs.probeStop)
	<-fs.probeDone
	fs.probing = false
}

func (fs *FailoverStore) probeLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(fs.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-fs.closed:
			return
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), fs.probeInterval/2)
			err := fs.primary.Ping(ctx)
			cancel()
			if err == nil {
				select {
				case fs.promote <- struct{}{}:
				default:
				}
			}
		}
	}
}

// withFailover runs fn on the active store and retries once on the fallback
// when the primary is unavailable.
func withFailover[T any](fs *FailoverStore, fn func(Store) (T, error)) (T, error) {
	store := fs.activeStore()
	result, err := fn(store)
	if store == fs.primary && errors.Is(err, ErrBackendUnavailable) {
		fs.demoteToFallback()
		if fallback := fs.activeStore(); fallback != store {
			return fn(fallback)
		}
	}
	return result, err
}

// writeWithFailover is withFailover for operations that change keys. Keys
// changed on the fallback are remembered for promoteToPrimary.
func writeWithFailover[T any](fs *FailoverStore, keys []string, fn func(Store) (T, error)) (T, error) {
	fs.writeMu.RLock()
	defer fs.writeMu.RUnlock()

	return withFailover(fs, func(s Store) (T, error) {
		if s == fs.fallback {
			fs.markDirty(keys...)
		}
		return fn(s)
	})
}

func (fs *FailoverStore) Set(ctx context.Context, key string, value []byte, ttl ...time.Duration) error {
	_, err := writeWithFailover(fs, []string{key}, func(s Store) (struct{}, error) {
		return struct{}{}, s.Set(ctx, key, value, ttl...)
	})
	return err
}

func (fs *FailoverStore) Get(ctx context.Context, key string) ([]byte, error) {
	return withFailover(fs, func(s Store) ([]byte, error) {
		return s.Get(ctx, key)
	})
}

func (fs *FailoverStore) Del(ctx context.Context, keys ...string) (int64, error) {
	return writeWithFailover(fs, keys, func(s Store) (int64, error) {
		return s.Del(ctx, keys...)
	})
}

func (fs *FailoverStore) Exists(ctx context.Context, keys ...string) (int64, error) {
	return withFailover(fs, func(s Store) (int64, error) {
		return s.Exists(ctx, keys...)
	})
}

func (fs *FailoverStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return withFailover(fs, func(s Store) (time.Duration, error) {
		return s.TTL(ctx, key)
	})
}

// Ping checks the active store.
func (fs *FailoverStore) Ping(ctx context.Context) error {
	return fs.activeStore().Ping(ctx)
}

// Close stops probing and closes both stores.
func (fs *FailoverStore) Close() error {
	var errs []error
	fs.closeOnce.Do(func() {
		close(fs.closed)

		fs.mu.Lock()
		fs.stopProbingLocked()
		fs.mu.Unlock()

		if err := fs.primary.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := fs.fallback.Close(); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}
