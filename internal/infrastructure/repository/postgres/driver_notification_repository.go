package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/tm-alerts/internal/domain/drivernotification"
	qb "github.com/riskibarqy/tm-alerts/internal/platform/querybuilder"
)

type DriverNotificationRepository struct {
	db *sqlx.DB
}

func NewDriverNotificationRepository(db *sqlx.DB) *DriverNotificationRepository {
	return &DriverNotificationRepository{db: db}
}

func (r *DriverNotificationRepository) ListActiveByUser(ctx context.Context, userID string) ([]drivernotification.DriverNotification, error) {
	query, args, err := qb.Select("*").From("driver_notifications").
		Where(
			qb.Eq("user_id", userID),
			qb.Eq("status", string(drivernotification.StatusActive)),
		).
		OrderBy("id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list driver notifications query: %w", err)
	}

	var rows []driverNotificationTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list driver notifications user_id=%s: %w", userID, err)
	}

	out := make([]drivernotification.DriverNotification, 0, len(rows))
	for _, row := range rows {
		out = append(out, drivernotification.DriverNotification{
			ID:                  row.ID,
			UserID:              row.UserID,
			MapUID:              row.MapUID,
			MapName:             row.MapName,
			TrackmaniaAccountID: row.TrackmaniaAccountID,
			CurrentPosition:     row.CurrentPosition,
			PersonalBestScore:   row.PersonalBestScore,
			Status:              drivernotification.Status(row.Status),
			CreatedAt:           row.CreatedAt,
			LastChecked:         timeOrZero(row.LastChecked),
		})
	}
	return out, nil
}

// ApplyCheck never reactivates: rank columns only move while the row is
// active and status only moves to inactive.
func (r *DriverNotificationRepository) ApplyCheck(ctx context.Context, update drivernotification.CheckUpdate) error {
	checkedAt := update.CheckedAt.UTC()
	if checkedAt.IsZero() {
		checkedAt = time.Now().UTC()
	}

	builder := qb.Update("driver_notifications").
		SetExpr("last_checked", "GREATEST(COALESCE(last_checked, ?), ?)", checkedAt, checkedAt)
	if update.Deactivate {
		builder = builder.Set("status", string(drivernotification.StatusInactive))
	} else {
		builder = builder.
			SetExpr("current_position", "CASE WHEN status = 'active' THEN ? ELSE current_position END", update.Position).
			SetExpr("personal_best_score", "CASE WHEN status = 'active' THEN ? ELSE personal_best_score END", update.PersonalBestScore)
	}

	query, args, err := builder.Where(qb.Eq("id", update.ID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build apply driver check query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("apply driver check id=%d: %w", update.ID, err)
	}
	return nil
}
