package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/tm-alerts/internal/domain/history"
	"github.com/riskibarqy/tm-alerts/internal/domain/pendingemail"
	qb "github.com/riskibarqy/tm-alerts/internal/platform/querybuilder"
)

type pendingEmailTableModel struct {
	UserID         string    `db:"user_id"`
	ProcessingDate time.Time `db:"processing_date"`
	Username       string    `db:"username"`
	Email          string    `db:"email"`
	MapperText     string    `db:"mapper_text"`
	DriverText     string    `db:"driver_text"`
	MapperDone     bool      `db:"mapper_done"`
	DriverDone     bool      `db:"driver_done"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

type pendingEmailInsertModel struct {
	UserID         string `db:"user_id"`
	ProcessingDate string `db:"processing_date"`
	Username       string `db:"username"`
	Email          string `db:"email"`
	MapperText     string `db:"mapper_text"`
	DriverText     string `db:"driver_text"`
	MapperDone     bool   `db:"mapper_done"`
	DriverDone     bool   `db:"driver_done"`
}

func pendingEmailFromRow(row pendingEmailTableModel) pendingemail.PendingEmail {
	return pendingemail.PendingEmail{
		UserID:         row.UserID,
		Username:       row.Username,
		Email:          row.Email,
		ProcessingDate: row.ProcessingDate.Format(history.DateLayout),
		MapperText:     row.MapperText,
		DriverText:     row.DriverText,
		MapperDone:     row.MapperDone,
		DriverDone:     row.DriverDone,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}

type PendingEmailRepository struct {
	db *sqlx.DB
}

func NewPendingEmailRepository(db *sqlx.DB) *PendingEmailRepository {
	return &PendingEmailRepository{db: db}
}

func (r *PendingEmailRepository) Contribute(ctx context.Context, c pendingemail.Contribution) (pendingemail.PendingEmail, error) {
	model := pendingEmailInsertModel{
		UserID:         c.UserID,
		ProcessingDate: c.ProcessingDate,
		Username:       c.Username,
		Email:          c.Email,
	}
	switch c.Type {
	case history.TypeMapperAlert:
		model.MapperDone = true
		model.MapperText = c.Text
	case history.TypeDriverNotification:
		model.DriverDone = true
		model.DriverText = c.Text
	default:
		return pendingemail.PendingEmail{}, fmt.Errorf("unknown contribution type %q", c.Type)
	}

	query, args, err := qb.InsertModel("pending_emails", model, `ON CONFLICT (user_id, processing_date)
DO UPDATE SET
    username = COALESCE(NULLIF(EXCLUDED.username, ''), pending_emails.username),
    email = COALESCE(NULLIF(EXCLUDED.email, ''), pending_emails.email),
    mapper_text = CASE WHEN EXCLUDED.mapper_text <> '' THEN EXCLUDED.mapper_text ELSE pending_emails.mapper_text END,
    driver_text = CASE WHEN EXCLUDED.driver_text <> '' THEN EXCLUDED.driver_text ELSE pending_emails.driver_text END,
    mapper_done = pending_emails.mapper_done OR EXCLUDED.mapper_done,
    driver_done = pending_emails.driver_done OR EXCLUDED.driver_done,
    updated_at = NOW()
RETURNING *`)
	if err != nil {
		return pendingemail.PendingEmail{}, fmt.Errorf("build contribute pending email query: %w", err)
	}

	var row pendingEmailTableModel
	if err := r.db.QueryRowxContext(ctx, query, args...).StructScan(&row); err != nil {
		return pendingemail.PendingEmail{}, fmt.Errorf("contribute pending email user_id=%s type=%s: %w", c.UserID, c.Type, err)
	}
	return pendingEmailFromRow(row), nil
}

// Claim deletes the row and returns it. Concurrent claimers race on the
// DELETE and only one sees the row.
func (r *PendingEmailRepository) Claim(ctx context.Context, userID, processingDate string) (pendingemail.PendingEmail, bool, error) {
	var row pendingEmailTableModel
	err := r.db.QueryRowxContext(ctx, `DELETE FROM pending_emails
WHERE user_id = $1 AND processing_date = $2
RETURNING *`, userID, processingDate).StructScan(&row)
	if err != nil {
		if isNotFound(err) {
			return pendingemail.PendingEmail{}, false, nil
		}
		return pendingemail.PendingEmail{}, false, fmt.Errorf("claim pending email user_id=%s: %w", userID, err)
	}
	return pendingEmailFromRow(row), true, nil
}

func (r *PendingEmailRepository) ListCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]pendingemail.PendingEmail, error) {
	builder := qb.Select("*").From("pending_emails").
		Where(qb.Lt("created_at", cutoff.UTC())).
		OrderBy("created_at")
	if limit > 0 {
		builder = builder.Limit(limit)
	}
	query, args, err := builder.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list expired pending emails query: %w", err)
	}

	var rows []pendingEmailTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list expired pending emails: %w", err)
	}

	out := make([]pendingemail.PendingEmail, 0, len(rows))
	for _, row := range rows {
		out = append(out, pendingEmailFromRow(row))
	}
	return out, nil
}
