package cache

import (
	"context"
	"strconv"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/tm-alerts/internal/domain/mapperalert"
	basecache "github.com/riskibarqy/tm-alerts/internal/platform/cache"
)

// MapperAlertRepository caches alert map lists. The list changes only when
// the user edits their alert, so a short TTL is enough.
type MapperAlertRepository struct {
	next  mapperalert.Repository
	cache *basecache.Store
}

func NewMapperAlertRepository(next mapperalert.Repository, cache *basecache.Store) *MapperAlertRepository {
	return &MapperAlertRepository{next: next, cache: cache}
}

func (r *MapperAlertRepository) GetByUser(ctx context.Context, userID string) (mapperalert.MapperAlert, bool, error) {
	return r.next.GetByUser(ctx, userID)
}

func (r *MapperAlertRepository) ListAlertMaps(ctx context.Context, alertID int64) ([]mapperalert.AlertMap, error) {
	key := "alert_maps:" + strconv.FormatInt(alertID, 10)
	raw, _, err := r.cache.GetOrLoad(ctx, key, func(ctx context.Context) ([]byte, error) {
		items, err := r.next.ListAlertMaps(ctx, alertID)
		if err != nil {
			return nil, err
		}
		return sonic.Marshal(items)
	})
	if err != nil {
		return nil, err
	}

	var items []mapperalert.AlertMap
	if err := sonic.Unmarshal(raw, &items); err != nil {
		r.cache.Delete(ctx, key)
		return r.next.ListAlertMaps(ctx, alertID)
	}
	return items, nil
}

func (r *MapperAlertRepository) UpdateAlertType(ctx context.Context, alertID int64, alertType mapperalert.AlertType) error {
	return r.next.UpdateAlertType(ctx, alertID, alertType)
}
