package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/riskibarqy/tm-alerts/internal/domain/history"
	"github.com/riskibarqy/tm-alerts/internal/domain/pendingemail"
)

type pendingKey struct {
	userID string
	date   string
}

type PendingEmailRepository struct {
	mu    sync.Mutex
	now   func() time.Time
	items map[pendingKey]pendingemail.PendingEmail
}

func NewPendingEmailRepository(now func() time.Time) *PendingEmailRepository {
	if now == nil {
		now = time.Now
	}
	return &PendingEmailRepository{now: now, items: make(map[pendingKey]pendingemail.PendingEmail)}
}

func (r *PendingEmailRepository) Contribute(_ context.Context, c pendingemail.Contribution) (pendingemail.PendingEmail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	key := pendingKey{userID: c.UserID, date: c.ProcessingDate}
	row, ok := r.items[key]
	if !ok {
		row = pendingemail.PendingEmail{
			UserID:         c.UserID,
			ProcessingDate: c.ProcessingDate,
			CreatedAt:      now,
		}
	}
	if c.Username != "" {
		row.Username = c.Username
	}
	if c.Email != "" {
		row.Email = c.Email
	}
	switch c.Type {
	case history.TypeMapperAlert:
		row.MapperDone = true
		if c.Text != "" {
			row.MapperText = c.Text
		}
	case history.TypeDriverNotification:
		row.DriverDone = true
		if c.Text != "" {
			row.DriverText = c.Text
		}
	}
	row.UpdatedAt = now
	r.items[key] = row
	return row, nil
}

func (r *PendingEmailRepository) Claim(_ context.Context, userID, processingDate string) (pendingemail.PendingEmail, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pendingKey{userID: userID, date: processingDate}
	row, ok := r.items[key]
	if !ok {
		return pendingemail.PendingEmail{}, false, nil
	}
	delete(r.items, key)
	return row, true, nil
}

func (r *PendingEmailRepository) ListCreatedBefore(_ context.Context, cutoff time.Time, limit int) ([]pendingemail.PendingEmail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]pendingemail.PendingEmail, 0)
	for _, row := range r.items {
		if row.CreatedAt.Before(cutoff) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
