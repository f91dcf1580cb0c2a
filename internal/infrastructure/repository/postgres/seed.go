package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/tm-alerts/internal/infrastructure/repository/memory"
)

// BootstrapSeed loads the demo dataset into an empty database.
func BootstrapSeed(ctx context.Context, db *sqlx.DB) error {
	var count int
	if err := db.GetContext(ctx, &count, `SELECT COUNT(1) FROM users WHERE deleted_at IS NULL`); err != nil {
		return fmt.Errorf("count users for bootstrap seed: %w", err)
	}
	if count > 0 {
		return nil
	}

	data := memory.SeedDemo()
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, u := range data.Users {
		if _, err := tx.ExecContext(ctx, `INSERT INTO users (id, username, email) VALUES ($1, $2, $3)
ON CONFLICT (id) DO NOTHING`, u.UserID, u.Username, u.Email); err != nil {
			return fmt.Errorf("seed user %s: %w", u.UserID, err)
		}
	}

	alertIDs := make(map[int64]int64, len(data.MapperAlerts))
	for _, a := range data.MapperAlerts {
		var id int64
		if err := tx.QueryRowxContext(ctx, `INSERT INTO mapper_alerts (user_id, trackmania_username, email, alert_type, record_filter, map_count)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`, a.UserID, a.TrackmaniaUsername, a.Email, string(a.AlertType), string(a.RecordFilter), a.MapCount).Scan(&id); err != nil {
			return fmt.Errorf("seed mapper alert user_id=%s: %w", a.UserID, err)
		}
		alertIDs[a.ID] = id
	}

	for _, m := range data.AlertMaps {
		if _, err := tx.ExecContext(ctx, `INSERT INTO alert_maps (alert_id, map_uid, map_name) VALUES ($1, $2, $3)
ON CONFLICT (alert_id, map_uid) DO NOTHING`, alertIDs[m.AlertID], m.MapUID, m.MapName); err != nil {
			return fmt.Errorf("seed alert map %s: %w", m.MapUID, err)
		}
	}

	for _, n := range data.DriverNotifications {
		if _, err := tx.ExecContext(ctx, `INSERT INTO driver_notifications
    (user_id, map_uid, map_name, tm_account_id, current_position, personal_best_score, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_id, map_uid) DO NOTHING`,
			n.UserID, n.MapUID, n.MapName, n.TrackmaniaAccountID, n.CurrentPosition, n.PersonalBestScore, string(n.Status)); err != nil {
			return fmt.Errorf("seed driver notification user_id=%s map_uid=%s: %w", n.UserID, n.MapUID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed tx: %w", err)
	}
	return nil
}
