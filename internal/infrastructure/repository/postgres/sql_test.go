package postgres

import (
	"database/sql"
	"fmt"
	"testing"
	"time"
)

func TestIsNotFound(t *testing.T) {
	if !isNotFound(fmt.Errorf("get history: %w", sql.ErrNoRows)) {
		t.Fatalf("expected wrapped ErrNoRows to match")
	}
	if isNotFound(fmt.Errorf("pq: relation notification_history does not exist")) {
		t.Fatalf("expected unrelated error not to match")
	}
}

func TestOptionalHelpers(t *testing.T) {
	if optionalString("   ") != nil {
		t.Fatalf("expected blank string to be nil")
	}
	if got := optionalString(" x "); got == nil || *got != "x" {
		t.Fatalf("unexpected trimmed value got=%v", got)
	}
	if optionalTime(time.Time{}) != nil {
		t.Fatalf("expected zero time to be nil")
	}
	if !timeOrZero(nil).IsZero() {
		t.Fatalf("expected nil time to be zero")
	}
}
