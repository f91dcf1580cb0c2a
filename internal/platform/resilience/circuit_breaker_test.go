package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_BasicTransitions(t *testing.T) {
	b := NewCircuitBreaker(2, 5*time.Second, 1)

	now := time.Date(2026, 2, 11, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	if err := b.Allow(); err != nil {
		t.Fatalf("expected allow in closed state: %v", err)
	}

	b.RecordFailure()
	if state := b.State(); state != CircuitStateClosed {
		t.Fatalf("expected closed after first failure, got %s", state)
	}

	b.RecordFailure()
	if state := b.State(); state != CircuitStateOpen {
		t.Fatalf("expected open after threshold failures, got %s", state)
	}

	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected circuit open error, got %v", err)
	}

	now = now.Add(6 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected half-open probe to pass, got %v", err)
	}
	if state := b.State(); state != CircuitStateHalfOpen {
		t.Fatalf("expected half-open state, got %s", state)
	}

	b.RecordSuccess()
	if state := b.State(); state != CircuitStateClosed {
		t.Fatalf("expected closed after successful half-open probe, got %s", state)
	}
}

func TestCircuitBreaker_ReportsTransitions(t *testing.T) {
	b := NewCircuitBreaker(1, time.Second, 1).Named("leaderboard")
	now := time.Date(2026, 10, 17, 6, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	var got []string
	b.OnStateChange(func(name string, from, to CircuitState) {
		got = append(got, name+":"+string(from)+"->"+string(to))
	})

	b.RecordFailure()
	now = now.Add(2 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected half-open probe to pass, got %v", err)
	}
	b.RecordSuccess()

	want := []string{
		"leaderboard:closed->open",
		"leaderboard:open->half_open",
		"leaderboard:half_open->closed",
	}
	if len(got) != len(want) {
		t.Fatalf("unexpected transitions got=%v want=%v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transition %d got=%s want=%s", i, got[i], want[i])
		}
	}
}

func TestCircuitBreaker_NilAllowsEverything(t *testing.T) {
	var b *CircuitBreaker
	if err := b.Allow(); err != nil {
		t.Fatalf("nil breaker must allow, got %v", err)
	}
	b.RecordFailure()
	if state := b.State(); state != CircuitStateClosed {
		t.Fatalf("nil breaker state got=%s want=closed", state)
	}
	if NewCircuitBreakerFromConfig("x", CircuitBreakerConfig{Enabled: false}) != nil {
		t.Fatalf("disabled config must produce nil breaker")
	}
}
