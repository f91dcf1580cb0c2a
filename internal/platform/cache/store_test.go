package cache

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStore_GetOrLoad_UsesSingleFlight(t *testing.T) {
	t.Parallel()

	store := NewStore(0, time.Minute)
	var calls atomic.Int32

	loader := func(context.Context) ([]byte, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return []byte("page"), nil
	}

	const workers = 32
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)
	errCh := make(chan error, workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			v, _, err := store.GetOrLoad(context.Background(), "lb:group:map-1", loader)
			if err != nil {
				errCh <- err
				return
			}
			if !bytes.Equal(v, []byte("page")) {
				errCh <- errUnexpectedValue
			}
		}()
	}

	close(start)
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("loader called %d times, want 1", got)
	}
}

func TestStore_GetOrLoad_ReportsHitAfterFirstLoad(t *testing.T) {
	t.Parallel()

	store := NewStore(0, time.Minute)
	var calls atomic.Int32

	loader := func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("cached"), nil
	}

	if _, hit, err := store.GetOrLoad(context.Background(), "k", loader); err != nil || hit {
		t.Fatalf("first GetOrLoad hit=%v err=%v", hit, err)
	}
	if _, hit, err := store.GetOrLoad(context.Background(), "k", loader); err != nil || !hit {
		t.Fatalf("second GetOrLoad hit=%v err=%v", hit, err)
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("loader called %d times, want 1", got)
	}
}

func TestStore_GetOrLoad_DoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	store := NewStore(0, time.Minute)
	boom := errors.New("boom")
	if _, _, err := store.GetOrLoad(context.Background(), "k", func(context.Context) ([]byte, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if _, ok := store.Get(context.Background(), "k"); ok {
		t.Fatalf("failed load must not populate the cache")
	}
}

func TestStore_NilIsPassThrough(t *testing.T) {
	t.Parallel()

	var store *Store
	v, hit, err := store.GetOrLoad(context.Background(), "k", func(context.Context) ([]byte, error) {
		return []byte("direct"), nil
	})
	if err != nil || hit || string(v) != "direct" {
		t.Fatalf("unexpected nil store result v=%q hit=%v err=%v", v, hit, err)
	}
}

var errUnexpectedValue = errors.New("unexpected loaded value")
