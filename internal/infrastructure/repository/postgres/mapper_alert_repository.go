package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/tm-alerts/internal/domain/mapperalert"
	qb "github.com/riskibarqy/tm-alerts/internal/platform/querybuilder"
)

type MapperAlertRepository struct {
	db *sqlx.DB
}

func NewMapperAlertRepository(db *sqlx.DB) *MapperAlertRepository {
	return &MapperAlertRepository{db: db}
}

func (r *MapperAlertRepository) GetByUser(ctx context.Context, userID string) (mapperalert.MapperAlert, bool, error) {
	query, args, err := qb.Select("*").From("mapper_alerts").
		Where(
			qb.Eq("user_id", userID),
			qb.IsNull("deleted_at"),
		).
		Limit(1).
		ToSQL()
	if err != nil {
		return mapperalert.MapperAlert{}, false, fmt.Errorf("build get mapper alert query: %w", err)
	}

	var row mapperAlertTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return mapperalert.MapperAlert{}, false, nil
		}
		return mapperalert.MapperAlert{}, false, fmt.Errorf("get mapper alert user_id=%s: %w", userID, err)
	}

	return mapperalert.MapperAlert{
		ID:                 row.ID,
		UserID:             row.UserID,
		TrackmaniaUsername: row.TrackmaniaUsername,
		Email:              row.Email,
		AlertType:          mapperalert.AlertType(row.AlertType),
		RecordFilter:       mapperalert.RecordFilter(row.RecordFilter),
		MapCount:           row.MapCount,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}, true, nil
}

func (r *MapperAlertRepository) ListAlertMaps(ctx context.Context, alertID int64) ([]mapperalert.AlertMap, error) {
	query, args, err := qb.Select("*").From("alert_maps").
		Where(qb.Eq("alert_id", alertID)).
		OrderBy("id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list alert maps query: %w", err)
	}

	var rows []alertMapTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list alert maps alert_id=%d: %w", alertID, err)
	}

	out := make([]mapperalert.AlertMap, 0, len(rows))
	for _, row := range rows {
		out = append(out, mapperalert.AlertMap{AlertID: row.AlertID, MapUID: row.MapUID, MapName: row.MapName})
	}
	return out, nil
}

func (r *MapperAlertRepository) UpdateAlertType(ctx context.Context, alertID int64, alertType mapperalert.AlertType) error {
	query, args, err := qb.Update("mapper_alerts").
		Set("alert_type", string(alertType)).
		Set("updated_at", time.Now().UTC()).
		Where(qb.Eq("id", alertID)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build update alert type query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update alert type alert_id=%d: %w", alertID, err)
	}
	return nil
}
