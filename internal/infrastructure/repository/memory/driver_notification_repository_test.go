package memory

import (
	"context"
	"testing"
	"time"

	"github.com/riskibarqy/tm-alerts/internal/domain/drivernotification"
	"github.com/riskibarqy/tm-alerts/internal/domain/subscriber"
)

func TestDriverNotificationRepository_InactiveIsMonotonic(t *testing.T) {
	t.Parallel()

	checked := time.Date(2026, 10, 17, 6, 0, 0, 0, time.UTC)
	repo := NewDriverNotificationRepository([]drivernotification.DriverNotification{
		{ID: 7, UserID: "bob", MapUID: "X", CurrentPosition: 3, PersonalBestScore: 45000, Status: drivernotification.StatusActive},
	})
	ctx := context.Background()

	if err := repo.ApplyCheck(ctx, drivernotification.CheckUpdate{ID: 7, Deactivate: true, CheckedAt: checked}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := repo.ApplyCheck(ctx, drivernotification.CheckUpdate{ID: 7, Position: 1, PersonalBestScore: 44000, CheckedAt: checked.Add(-time.Hour)}); err != nil {
		t.Fatalf("update: %v", err)
	}

	n, _ := repo.Get(7)
	if n.Status != drivernotification.StatusInactive {
		t.Fatalf("expected inactive to stick, got=%s", n.Status)
	}
	if n.CurrentPosition != 3 || n.PersonalBestScore != 45000 {
		t.Fatalf("expected inactive row to keep last known rank, got=%+v", n)
	}
	if !n.LastChecked.Equal(checked) {
		t.Fatalf("expected last_checked to stay at the newest check, got=%v", n.LastChecked)
	}

	active, _ := repo.ListActiveByUser(ctx, "bob")
	if len(active) != 0 {
		t.Fatalf("expected no active notifications, got=%d", len(active))
	}
}

func TestSubscriberRepository_IncludesDriverOnlyUsers(t *testing.T) {
	t.Parallel()

	alerts := NewMapperAlertRepository(nil, nil)
	drivers := NewDriverNotificationRepository([]drivernotification.DriverNotification{
		{ID: 1, UserID: "bob", Status: drivernotification.StatusActive},
		{ID: 2, UserID: "carol", Status: drivernotification.StatusInactive},
	})
	repo := NewSubscriberRepository([]subscriber.Subscriber{
		{UserID: "bob", Username: "Bob", Email: "bob@example.com"},
		{UserID: "carol", Username: "Carol", Email: "carol@example.com"},
		{UserID: "dave", Username: "Dave"},
	}, alerts, drivers)

	subs, err := repo.FetchValidatedSubscribers(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(subs) != 1 || subs[0].UserID != "bob" {
		t.Fatalf("unexpected subscribers got=%+v", subs)
	}
}
