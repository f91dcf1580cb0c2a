package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/riskibarqy/tm-alerts/internal/domain/history"
)

type HistoryRepository struct {
	mu     sync.Mutex
	now    func() time.Time
	nextID int64
	items  map[history.Key]history.Entry
}

func NewHistoryRepository(now func() time.Time) *HistoryRepository {
	if now == nil {
		now = time.Now
	}
	return &HistoryRepository{now: now, items: make(map[history.Key]history.Entry)}
}

func (r *HistoryRepository) Begin(_ context.Context, entry history.Entry, staleBefore time.Time) (history.Entry, history.BeginOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := entry.Key()
	now := r.now().UTC()
	if existing, ok := r.items[key]; ok {
		switch {
		case existing.Status.Terminal():
			return existing, history.BeginAlreadyTerminal, nil
		case existing.UpdatedAt.Before(staleBefore):
			existing.Username = entry.Username
			existing.UpdatedAt = now
			r.items[key] = existing
			return existing, history.BeginClaimed, nil
		default:
			return existing, history.BeginInFlight, nil
		}
	}

	r.nextID++
	entry.ID = r.nextID
	entry.Status = history.StatusProcessing
	entry.Message = ""
	entry.RecordsFound = 0
	entry.CreatedAt = now
	entry.UpdatedAt = now
	r.items[key] = entry
	return entry, history.BeginClaimed, nil
}

func (r *HistoryRepository) Finalize(_ context.Context, key history.Key, status history.Status, message string, recordsFound int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.items[key]
	if !ok || existing.Status != history.StatusProcessing {
		return false, nil
	}
	existing.Status = status
	existing.Message = message
	existing.RecordsFound = recordsFound
	existing.UpdatedAt = r.now().UTC()
	r.items[key] = existing
	return true, nil
}

func (r *HistoryRepository) Release(_ context.Context, key history.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.items[key]; ok && existing.Status == history.StatusProcessing {
		delete(r.items, key)
	}
	return nil
}

func (r *HistoryRepository) MarkDeliveryFailed(_ context.Context, key history.Key, message string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.items[key]
	if !ok || existing.Status != history.StatusSent {
		return false, nil
	}
	existing.Status = history.StatusTechnicalError
	existing.Message = message
	existing.UpdatedAt = r.now().UTC()
	r.items[key] = existing
	return true, nil
}

func (r *HistoryRepository) Get(_ context.Context, key history.Key) (history.Entry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.items[key]
	return e, ok, nil
}

func (r *HistoryRepository) ListByDate(_ context.Context, processingDate string) ([]history.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]history.Entry, 0)
	for key, e := range r.items {
		if key.ProcessingDate == processingDate {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
