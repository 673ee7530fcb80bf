package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type report struct {
	Total string `json:"total"`
}

func TestLoadCachesUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	loader := NewLoader(NewMemoryStore(), time.Minute)

	var calls int
	load := func(context.Context) (report, error) {
		calls++
		return report{Total: "100"}, nil
	}

	got, hit, err := Load(ctx, loader, "seller:s1", "revenue", load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "100", got.Total)

	_, hit, err = Load(ctx, loader, "seller:s1", "revenue", load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, calls)

	require.NoError(t, loader.Invalidate(ctx, "seller:s1"))
	_, hit, err = Load(ctx, loader, "seller:s1", "revenue", load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, calls)
}

func TestLoadCollapsesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	loader := NewLoader(NewMemoryStore(), time.Minute)

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (report, error) {
		calls.Add(1)
		<-release
		return report{Total: "1"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := Load(ctx, loader, "seller:s1", "dashboard", load)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestLoadSharedMissOutlivesCancelledCaller(t *testing.T) {
	loader := NewLoader(NewMemoryStore(), time.Minute)

	var startOnce sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	load := func(ctx context.Context) (report, error) {
		startOnce.Do(func() { close(started) })
		select {
		case <-release:
			return report{Total: "7"}, nil
		case <-ctx.Done():
			return report{}, ctx.Err()
		}
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := Load(firstCtx, loader, "seller:s1", "profit", load)
		firstErr <- err
	}()
	<-started

	type outcome struct {
		got report
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		got, _, err := Load(context.Background(), loader, "seller:s1", "profit", load)
		second <- outcome{got: got, err: err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, "7", res.got.Total)
}

func TestLoadDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	loader := NewLoader(NewMemoryStore(), time.Minute)
	boom := errors.New("boom")

	_, _, err := Load(ctx, loader, "s", "r", func(context.Context) (report, error) { return report{}, boom })
	require.ErrorIs(t, err, boom)

	got, hit, err := Load(ctx, loader, "s", "r", func(context.Context) (report, error) { return report{Total: "2"}, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "2", got.Total)
}

func TestLoadWithoutTTLBypassesStore(t *testing.T) {
	store := NewMemoryStore()
	loader := NewLoader(store, 0)
	_, hit, err := Load(context.Background(), loader, "s", "r", func(context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Empty(t, store.entries)
}

func TestMemoryStoreExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Second))
	_, ok, _ := store.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, _ = store.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedisStoreLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	loader := NewLoader(NewRedisStore(client, "orders:stats:"), time.Minute)

	mock.ExpectGet("orders:stats:gen:seller:s1").RedisNil()
	mock.ExpectGet("orders:stats:entry:seller:s1:0:revenue").RedisNil()
	mock.ExpectSet("orders:stats:entry:seller:s1:0:revenue", []byte(`{"total":"100"}`), time.Minute).SetVal("OK")

	got, hit, err := Load(ctx, loader, "seller:s1", "revenue", func(context.Context) (report, error) {
		return report{Total: "100"}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "100", got.Total)

	mock.ExpectGet("orders:stats:gen:seller:s1").SetVal("0")
	mock.ExpectGet("orders:stats:entry:seller:s1:0:revenue").SetVal(`{"total":"100"}`)

	got, hit, err = Load(ctx, loader, "seller:s1", "revenue", func(context.Context) (report, error) {
		t.Fatal("load should not run on a hit")
		return report{}, nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "100", got.Total)

	mock.ExpectIncr("orders:stats:gen:seller:s1").SetVal(1)
	require.NoError(t, loader.Invalidate(ctx, "seller:s1"))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreFailureFallsBackToLoad(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	loader := NewLoader(NewRedisStore(client, "p"), time.Minute)

	mock.ExpectGet("p:gen:s").SetErr(errors.New("connection refused"))

	got, hit, err := Load(ctx, loader, "s", "r", func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 7, got)
	require.NoError(t, mock.ExpectationsWereMet())
}
