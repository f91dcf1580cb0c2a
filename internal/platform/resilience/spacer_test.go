package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRequestSpacer_SpacesCalls(t *testing.T) {
	t.Parallel()

	spacer := NewRequestSpacer(40 * time.Millisecond)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := spacer.Wait(context.Background()); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}

	if elapsed := time.Since(start); elapsed < 70*time.Millisecond {
		t.Fatalf("three calls finished in %s, want at least two intervals", elapsed)
	}
}

func TestRequestSpacer_HonoursContext(t *testing.T) {
	t.Parallel()

	spacer := NewRequestSpacer(time.Hour)
	if err := spacer.Wait(context.Background()); err != nil {
		t.Fatalf("first wait must pass: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := spacer.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled wait to fail, got %v", err)
	}
}
