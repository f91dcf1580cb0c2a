package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/riskibarqy/tm-alerts/internal/domain/jobscheduler"
)

type JobDispatchRepository struct {
	mu    sync.RWMutex
	items map[string]jobscheduler.DispatchEvent
}

func NewJobDispatchRepository() *JobDispatchRepository {
	return &JobDispatchRepository{items: make(map[string]jobscheduler.DispatchEvent)}
}

// UpsertEvent keeps the latest status per dispatch id. A failure message is
// cleared once the job completes.
func (r *JobDispatchRepository) UpsertEvent(_ context.Context, event jobscheduler.DispatchEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Status == jobscheduler.StatusCompleted || event.Status == jobscheduler.StatusSent {
		event.ErrorMessage = ""
	}
	if existing, ok := r.items[event.DispatchID]; ok && len(event.Payload) == 0 {
		event.Payload = existing.Payload
	}
	r.items[event.DispatchID] = event
	return nil
}

func (r *JobDispatchRepository) ListByDate(_ context.Context, processingDate string) ([]jobscheduler.DispatchEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]jobscheduler.DispatchEvent, 0)
	for _, e := range r.items {
		if e.ProcessingDate == processingDate {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Phase != out[j].Phase {
			return out[i].Phase < out[j].Phase
		}
		return out[i].DispatchID < out[j].DispatchID
	})
	return out, nil
}
