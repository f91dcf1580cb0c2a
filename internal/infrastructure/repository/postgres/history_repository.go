package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/tm-alerts/internal/domain/history"
	qb "github.com/riskibarqy/tm-alerts/internal/platform/querybuilder"
)

type HistoryRepository struct {
	db *sqlx.DB
}

func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Begin relies on the (user_id, notification_type, processing_date) unique
// key. The conflict branch only fires for stale processing rows, so a
// terminal row is never overwritten.
func (r *HistoryRepository) Begin(ctx context.Context, entry history.Entry, staleBefore time.Time) (history.Entry, history.BeginOutcome, error) {
	model := historyInsertModel{
		UserID:           entry.UserID,
		Username:         entry.Username,
		NotificationType: string(entry.Type),
		Status:           string(history.StatusProcessing),
		ProcessingDate:   entry.ProcessingDate,
	}
	query, args, err := qb.InsertModel("notification_history", model, `ON CONFLICT (user_id, notification_type, processing_date)
DO UPDATE SET
    username = EXCLUDED.username,
    updated_at = NOW()
WHERE notification_history.status = 'processing'
  AND notification_history.updated_at < ?
RETURNING *`, staleBefore.UTC())
	if err != nil {
		return history.Entry{}, "", fmt.Errorf("build begin history query: %w", err)
	}

	var row historyTableModel
	if err := r.db.QueryRowxContext(ctx, query, args...).StructScan(&row); err == nil {
		return historyFromRow(row), history.BeginClaimed, nil
	} else if !isNotFound(err) {
		return history.Entry{}, "", fmt.Errorf("begin history user_id=%s type=%s: %w", entry.UserID, entry.Type, err)
	}

	existing, ok, err := r.Get(ctx, entry.Key())
	if err != nil {
		return history.Entry{}, "", err
	}
	if ok && existing.Status.Terminal() {
		return existing, history.BeginAlreadyTerminal, nil
	}
	return existing, history.BeginInFlight, nil
}

func (r *HistoryRepository) Finalize(ctx context.Context, key history.Key, status history.Status, message string, recordsFound int) (bool, error) {
	query, args, err := qb.Update("notification_history").
		Set("status", string(status)).
		Set("message", optionalString(message)).
		Set("records_found", recordsFound).
		SetExpr("updated_at", "NOW()").
		Where(append(keyConditions(key), qb.Eq("status", string(history.StatusProcessing)))...).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build finalize history query: %w", err)
	}
	return r.execAffected(ctx, "finalize history", key, query, args)
}

func (r *HistoryRepository) Release(ctx context.Context, key history.Key) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM notification_history
WHERE user_id = $1 AND notification_type = $2 AND processing_date = $3 AND status = 'processing'`,
		key.UserID, string(key.Type), key.ProcessingDate)
	if err != nil {
		return fmt.Errorf("release history user_id=%s type=%s: %w", key.UserID, key.Type, err)
	}
	return nil
}

func (r *HistoryRepository) MarkDeliveryFailed(ctx context.Context, key history.Key, message string) (bool, error) {
	query, args, err := qb.Update("notification_history").
		Set("status", string(history.StatusTechnicalError)).
		Set("message", optionalString(message)).
		SetExpr("updated_at", "NOW()").
		Where(append(keyConditions(key), qb.Eq("status", string(history.StatusSent)))...).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build mark delivery failed query: %w", err)
	}
	return r.execAffected(ctx, "mark delivery failed", key, query, args)
}

func (r *HistoryRepository) Get(ctx context.Context, key history.Key) (history.Entry, bool, error) {
	query, args, err := qb.Select("*").From("notification_history").Where(keyConditions(key)...).ToSQL()
	if err != nil {
		return history.Entry{}, false, fmt.Errorf("build get history query: %w", err)
	}

	var row historyTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return history.Entry{}, false, nil
		}
		return history.Entry{}, false, fmt.Errorf("get history user_id=%s type=%s: %w", key.UserID, key.Type, err)
	}
	return historyFromRow(row), true, nil
}

func (r *HistoryRepository) ListByDate(ctx context.Context, processingDate string) ([]history.Entry, error) {
	query, args, err := qb.Select("*").From("notification_history").
		Where(qb.Eq("processing_date", processingDate)).
		OrderBy("id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list history query: %w", err)
	}

	var rows []historyTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list history processing_date=%s: %w", processingDate, err)
	}

	out := make([]history.Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, historyFromRow(row))
	}
	return out, nil
}

func (r *HistoryRepository) execAffected(ctx context.Context, op string, key history.Key, query string, args []any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s user_id=%s type=%s: %w", op, key.UserID, key.Type, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return affected > 0, nil
}

func keyConditions(key history.Key) []qb.Condition {
	return []qb.Condition{
		qb.Eq("user_id", key.UserID),
		qb.Eq("notification_type", string(key.Type)),
		qb.Eq("processing_date", key.ProcessingDate),
	}
}
