package memory

import (
	"context"
	"testing"
	"time"

	"github.com/riskibarqy/tm-alerts/internal/domain/history"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestHistoryRepository_BeginOutcomes(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 10, 17, 6, 0, 0, 0, time.UTC)}
	repo := NewHistoryRepository(clock.Now)
	ctx := context.Background()
	entry := history.Entry{UserID: "alice", Username: "Alice", Type: history.TypeMapperAlert, ProcessingDate: "2026-10-17"}

	claimed, outcome, err := repo.Begin(ctx, entry, clock.now.Add(-15*time.Minute))
	if err != nil || outcome != history.BeginClaimed {
		t.Fatalf("first begin outcome=%s err=%v", outcome, err)
	}
	if claimed.Status != history.StatusProcessing || claimed.ID == 0 {
		t.Fatalf("unexpected claimed row got=%+v", claimed)
	}

	_, outcome, _ = repo.Begin(ctx, entry, clock.now.Add(-15*time.Minute))
	if outcome != history.BeginInFlight {
		t.Fatalf("expected in_flight for fresh processing row, got=%s", outcome)
	}

	clock.now = clock.now.Add(20 * time.Minute)
	takeover, outcome, _ := repo.Begin(ctx, entry, clock.now.Add(-15*time.Minute))
	if outcome != history.BeginClaimed || takeover.ID != claimed.ID {
		t.Fatalf("expected stale takeover of id=%d, got outcome=%s id=%d", claimed.ID, outcome, takeover.ID)
	}

	ok, err := repo.Finalize(ctx, entry.Key(), history.StatusSent, "", 3)
	if err != nil || !ok {
		t.Fatalf("finalize ok=%v err=%v", ok, err)
	}
	ok, _ = repo.Finalize(ctx, entry.Key(), history.StatusNoNewTimes, "", 0)
	if ok {
		t.Fatalf("expected second finalize to be rejected")
	}

	final, outcome, _ := repo.Begin(ctx, entry, clock.now)
	if outcome != history.BeginAlreadyTerminal || final.Status != history.StatusSent || final.RecordsFound != 3 {
		t.Fatalf("unexpected terminal begin outcome=%s row=%+v", outcome, final)
	}
}

func TestHistoryRepository_ReleaseAllowsReclaim(t *testing.T) {
	t.Parallel()

	repo := NewHistoryRepository(nil)
	ctx := context.Background()
	entry := history.Entry{UserID: "bob", Type: history.TypeDriverNotification, ProcessingDate: "2026-10-17"}

	if _, _, err := repo.Begin(ctx, entry, time.Time{}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := repo.Release(ctx, entry.Key()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, _ := repo.Get(ctx, entry.Key()); ok {
		t.Fatalf("expected released row to be gone")
	}
	if _, outcome, _ := repo.Begin(ctx, entry, time.Time{}); outcome != history.BeginClaimed {
		t.Fatalf("expected reclaim after release, got=%s", outcome)
	}
}

func TestHistoryRepository_MarkDeliveryFailedOnlyFromSent(t *testing.T) {
	t.Parallel()

	repo := NewHistoryRepository(nil)
	ctx := context.Background()
	sent := history.Entry{UserID: "alice", Type: history.TypeMapperAlert, ProcessingDate: "2026-10-17"}
	quiet := history.Entry{UserID: "alice", Type: history.TypeDriverNotification, ProcessingDate: "2026-10-17"}

	for _, e := range []history.Entry{sent, quiet} {
		if _, _, err := repo.Begin(ctx, e, time.Time{}); err != nil {
			t.Fatalf("begin: %v", err)
		}
	}
	_, _ = repo.Finalize(ctx, sent.Key(), history.StatusSent, "", 2)
	_, _ = repo.Finalize(ctx, quiet.Key(), history.StatusNoNewTimes, "", 0)

	if ok, _ := repo.MarkDeliveryFailed(ctx, sent.Key(), "email delivery failed"); !ok {
		t.Fatalf("expected sent row to move to technical_error")
	}
	if ok, _ := repo.MarkDeliveryFailed(ctx, quiet.Key(), "email delivery failed"); ok {
		t.Fatalf("expected no_new_times row to stay untouched")
	}

	rows, _ := repo.ListByDate(ctx, "2026-10-17")
	if len(rows) != 2 || rows[0].Status != history.StatusTechnicalError || rows[1].Status != history.StatusNoNewTimes {
		t.Fatalf("unexpected rows got=%+v", rows)
	}
}
