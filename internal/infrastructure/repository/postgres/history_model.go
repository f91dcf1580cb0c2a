package postgres

import (
	"time"

	"github.com/riskibarqy/tm-alerts/internal/domain/history"
)

type historyTableModel struct {
	ID               int64     `db:"id"`
	UserID           string    `db:"user_id"`
	Username         string    `db:"username"`
	NotificationType string    `db:"notification_type"`
	Status           string    `db:"status"`
	Message          *string   `db:"message"`
	RecordsFound     int       `db:"records_found"`
	ProcessingDate   time.Time `db:"processing_date"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

type historyInsertModel struct {
	UserID           string `db:"user_id"`
	Username         string `db:"username"`
	NotificationType string `db:"notification_type"`
	Status           string `db:"status"`
	RecordsFound     int    `db:"records_found"`
	ProcessingDate   string `db:"processing_date"`
}

func historyFromRow(row historyTableModel) history.Entry {
	entry := history.Entry{
		ID:             row.ID,
		UserID:         row.UserID,
		Username:       row.Username,
		Type:           history.Type(row.NotificationType),
		Status:         history.Status(row.Status),
		RecordsFound:   row.RecordsFound,
		ProcessingDate: row.ProcessingDate.Format(history.DateLayout),
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	if row.Message != nil {
		entry.Message = *row.Message
	}
	return entry
}
