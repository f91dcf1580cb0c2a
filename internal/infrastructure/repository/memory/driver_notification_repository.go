package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/riskibarqy/tm-alerts/internal/domain/drivernotification"
)

type DriverNotificationRepository struct {
	mu    sync.RWMutex
	items map[int64]drivernotification.DriverNotification
}

func NewDriverNotificationRepository(items []drivernotification.DriverNotification) *DriverNotificationRepository {
	r := &DriverNotificationRepository{items: make(map[int64]drivernotification.DriverNotification, len(items))}
	for _, n := range items {
		r.items[n.ID] = n
	}
	return r
}

func (r *DriverNotificationRepository) ListActiveByUser(_ context.Context, userID string) ([]drivernotification.DriverNotification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]drivernotification.DriverNotification, 0)
	for _, n := range r.items {
		if n.UserID == userID && n.Active() {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *DriverNotificationRepository) ApplyCheck(_ context.Context, update drivernotification.CheckUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.items[update.ID]
	if !ok {
		return nil
	}
	if update.CheckedAt.After(n.LastChecked) {
		n.LastChecked = update.CheckedAt
	}
	switch {
	case update.Deactivate:
		n.Status = drivernotification.StatusInactive
	case n.Active():
		n.CurrentPosition = update.Position
		n.PersonalBestScore = update.PersonalBestScore
	}
	r.items[update.ID] = n
	return nil
}

// Get returns a notification regardless of status.
func (r *DriverNotificationRepository) Get(id int64) (drivernotification.DriverNotification, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.items[id]
	return n, ok
}

func (r *DriverNotificationRepository) hasActive(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, n := range r.items {
		if n.UserID == userID && n.Active() {
			return true
		}
	}
	return false
}
