package postgres

import "time"

type driverNotificationTableModel struct {
	ID                  int64      `db:"id"`
	UserID              string     `db:"user_id"`
	MapUID              string     `db:"map_uid"`
	MapName             string     `db:"map_name"`
	TrackmaniaAccountID string     `db:"tm_account_id"`
	CurrentPosition     int        `db:"current_position"`
	PersonalBestScore   int64      `db:"personal_best_score"`
	Status              string     `db:"status"`
	CreatedAt           time.Time  `db:"created_at"`
	LastChecked         *time.Time `db:"last_checked"`
}
