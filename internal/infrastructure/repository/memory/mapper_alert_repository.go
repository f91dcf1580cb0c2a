package memory

import (
	"context"
	"sync"

	"github.com/riskibarqy/tm-alerts/internal/domain/mapperalert"
)

type MapperAlertRepository struct {
	mu     sync.RWMutex
	byUser map[string]mapperalert.MapperAlert
	maps   map[int64][]mapperalert.AlertMap
}

func NewMapperAlertRepository(alerts []mapperalert.MapperAlert, alertMaps []mapperalert.AlertMap) *MapperAlertRepository {
	r := &MapperAlertRepository{
		byUser: make(map[string]mapperalert.MapperAlert, len(alerts)),
		maps:   make(map[int64][]mapperalert.AlertMap),
	}
	for _, a := range alerts {
		r.byUser[a.UserID] = a
	}
	for _, m := range alertMaps {
		r.maps[m.AlertID] = append(r.maps[m.AlertID], m)
	}
	return r
}

func (r *MapperAlertRepository) GetByUser(_ context.Context, userID string) (mapperalert.MapperAlert, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byUser[userID]
	return a, ok, nil
}

func (r *MapperAlertRepository) ListAlertMaps(_ context.Context, alertID int64) ([]mapperalert.AlertMap, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]mapperalert.AlertMap(nil), r.maps[alertID]...), nil
}

func (r *MapperAlertRepository) UpdateAlertType(_ context.Context, alertID int64, alertType mapperalert.AlertType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userID, a := range r.byUser {
		if a.ID == alertID {
			a.AlertType = alertType
			r.byUser[userID] = a
			return nil
		}
	}
	return nil
}

func (r *MapperAlertRepository) hasAlert(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byUser[userID]
	return ok
}
