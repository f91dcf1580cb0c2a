package postgres

import "time"

type mapperAlertTableModel struct {
	ID                 int64      `db:"id"`
	UserID             string     `db:"user_id"`
	TrackmaniaUsername string     `db:"trackmania_username"`
	Email              string     `db:"email"`
	AlertType          string     `db:"alert_type"`
	RecordFilter       string     `db:"record_filter"`
	MapCount           int        `db:"map_count"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
	DeletedAt          *time.Time `db:"deleted_at"`
}

type alertMapTableModel struct {
	ID      int64  `db:"id"`
	AlertID int64  `db:"alert_id"`
	MapUID  string `db:"map_uid"`
	MapName string `db:"map_name"`
}
