package memory

import (
	"context"
	"sync"

	"github.com/riskibarqy/tm-alerts/internal/domain/mapposition"
)

type MapPositionRepository struct {
	mu    sync.RWMutex
	items map[string]mapposition.MapPosition
}

func NewMapPositionRepository() *MapPositionRepository {
	return &MapPositionRepository{items: make(map[string]mapposition.MapPosition)}
}

func (r *MapPositionRepository) Get(_ context.Context, mapUID string) (mapposition.MapPosition, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.items[mapUID]
	return p, ok, nil
}

func (r *MapPositionRepository) Upsert(_ context.Context, position mapposition.MapPosition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[position.MapUID] = position
	return nil
}
