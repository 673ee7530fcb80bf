// Package cache stores computed reports with a TTL. Entries are grouped by
// scope; bumping a scope's generation orphans every entry written under it.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// Store is implemented by the Redis and in-process backends.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Generation returns the current generation of scope, zero when unset.
	Generation(ctx context.Context, scope string) (int64, error)
	// Bump advances scope's generation.
	Bump(ctx context.Context, scope string) error
	Ping(ctx context.Context) error
}

// defaultLoadTimeout bounds a shared load once it no longer follows any caller's context.
const defaultLoadTimeout = 30 * time.Second

// Loader collapses concurrent misses for the same key into one load.
type Loader struct {
	store       Store
	ttl         time.Duration
	loadTimeout time.Duration
	group       singleflight.Group
}

func NewLoader(store Store, ttl time.Duration) *Loader {
	return &Loader{store: store, ttl: ttl, loadTimeout: defaultLoadTimeout}
}

// Invalidate bumps scope so later loads recompute.
func (l *Loader) Invalidate(ctx context.Context, scope string) error {
	if l == nil || l.store == nil {
		return nil
	}
	return l.store.Bump(ctx, scope)
}

// key builds the storage key for name within scope's current generation.
func (l *Loader) key(ctx context.Context, scope, name string) (string, error) {
	gen, err := l.store.Generation(ctx, scope)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d:%s", scope, gen, name), nil
}

// Load returns the cached value for (scope, name) or computes and stores it.
// Cache failures degrade to calling load directly. hit reports a cache hit.
func Load[T any](ctx context.Context, l *Loader, scope, name string, load func(context.Context) (T, error)) (value T, hit bool, err error) {
	if l == nil || l.store == nil || l.ttl <= 0 {
		value, err = load(ctx)
		return value, false, err
	}

	key, keyErr := l.key(ctx, scope, name)
	if keyErr == nil {
		if raw, ok, getErr := l.store.Get(ctx, key); getErr == nil && ok {
			if jsonErr := json.Unmarshal(raw, &value); jsonErr == nil {
				return value, true, nil
			}
		}
	}

	sfKey := key
	if keyErr != nil {
		sfKey = scope + ":" + name
	}
	timeout := l.loadTimeout
	if timeout <= 0 {
		timeout = defaultLoadTimeout
	}
	// The shared load outlives any single caller; each caller stops waiting on its own ctx.
	results := l.group.DoChan(sfKey, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		fresh, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		if keyErr == nil {
			if raw, marshalErr := json.Marshal(fresh); marshalErr == nil {
				_ = l.store.Set(loadCtx, key, raw, l.ttl)
			}
		}
		return fresh, nil
	})
	select {
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			var zero T
			return zero, false, res.Err
		}
		return res.Val.(T), false, nil
	}
}
