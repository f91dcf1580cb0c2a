package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/tm-alerts/internal/domain/mapposition"
	qb "github.com/riskibarqy/tm-alerts/internal/platform/querybuilder"
)

type mapPositionTableModel struct {
	MapUID      string     `db:"map_uid"`
	Position    int        `db:"position"`
	Score       int64      `db:"score"`
	LastChecked time.Time  `db:"last_checked"`
	LastChanged *time.Time `db:"last_changed"`
}

type MapPositionRepository struct {
	db *sqlx.DB
}

func NewMapPositionRepository(db *sqlx.DB) *MapPositionRepository {
	return &MapPositionRepository{db: db}
}

func (r *MapPositionRepository) Get(ctx context.Context, mapUID string) (mapposition.MapPosition, bool, error) {
	query, args, err := qb.Select("*").From("map_positions").Where(qb.Eq("map_uid", mapUID)).ToSQL()
	if err != nil {
		return mapposition.MapPosition{}, false, fmt.Errorf("build get map position query: %w", err)
	}

	var row mapPositionTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return mapposition.MapPosition{}, false, nil
		}
		return mapposition.MapPosition{}, false, fmt.Errorf("get map position map_uid=%s: %w", mapUID, err)
	}

	return mapposition.MapPosition{
		MapUID:      row.MapUID,
		Position:    row.Position,
		Score:       row.Score,
		LastChecked: row.LastChecked.UTC(),
		LastChanged: timeOrZero(row.LastChanged),
	}, true, nil
}

func (r *MapPositionRepository) Upsert(ctx context.Context, position mapposition.MapPosition) error {
	model := mapPositionTableModel{
		MapUID:      position.MapUID,
		Position:    position.Position,
		Score:       position.Score,
		LastChecked: position.LastChecked.UTC(),
		LastChanged: optionalTime(position.LastChanged),
	}
	query, args, err := qb.InsertModel("map_positions", model, `ON CONFLICT (map_uid) DO UPDATE SET
    position = EXCLUDED.position,
    score = EXCLUDED.score,
    last_checked = EXCLUDED.last_checked,
    last_changed = EXCLUDED.last_changed`)
	if err != nil {
		return fmt.Errorf("build upsert map position query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert map position map_uid=%s: %w", position.MapUID, err)
	}
	return nil
}
