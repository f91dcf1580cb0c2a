package cache

import (
	"context"
	"testing"
	"time"

	"github.com/riskibarqy/tm-alerts/internal/domain/mapperalert"
	basecache "github.com/riskibarqy/tm-alerts/internal/platform/cache"
)

type countingAlertRepo struct {
	listCalls int
}

func (r *countingAlertRepo) GetByUser(context.Context, string) (mapperalert.MapperAlert, bool, error) {
	return mapperalert.MapperAlert{}, false, nil
}

func (r *countingAlertRepo) ListAlertMaps(_ context.Context, alertID int64) ([]mapperalert.AlertMap, error) {
	r.listCalls++
	return []mapperalert.AlertMap{{AlertID: alertID, MapUID: "uid-1", MapName: "Sprint"}}, nil
}

func (r *countingAlertRepo) UpdateAlertType(context.Context, int64, mapperalert.AlertType) error {
	return nil
}

func TestMapperAlertRepository_ListAlertMapsIsCached(t *testing.T) {
	t.Parallel()

	next := &countingAlertRepo{}
	repo := NewMapperAlertRepository(next, basecache.NewStore(1<<20, time.Minute))

	for i := 0; i < 3; i++ {
		maps, err := repo.ListAlertMaps(context.Background(), 9)
		if err != nil {
			t.Fatalf("ListAlertMaps error: %v", err)
		}
		if len(maps) != 1 || maps[0].MapUID != "uid-1" || maps[0].AlertID != 9 {
			t.Fatalf("unexpected maps got=%+v", maps)
		}
	}
	if next.listCalls != 1 {
		t.Fatalf("expected one upstream call, got=%d", next.listCalls)
	}
}

func TestMapperAlertRepository_NilCachePassesThrough(t *testing.T) {
	t.Parallel()

	next := &countingAlertRepo{}
	repo := NewMapperAlertRepository(next, nil)
	_, _ = repo.ListAlertMaps(context.Background(), 1)
	_, _ = repo.ListAlertMaps(context.Background(), 1)
	if next.listCalls != 2 {
		t.Fatalf("expected pass-through calls=2, got=%d", next.listCalls)
	}
}
