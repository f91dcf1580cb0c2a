package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/tm-alerts/internal/domain/subscriber"
	qb "github.com/riskibarqy/tm-alerts/internal/platform/querybuilder"
)

type subscriberRow struct {
	UserID   string `db:"user_id"`
	Username string `db:"username"`
	Email    string `db:"email"`
}

type SubscriberRepository struct {
	db *sqlx.DB
}

func NewSubscriberRepository(db *sqlx.DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

func (r *SubscriberRepository) FetchValidatedSubscribers(ctx context.Context) ([]subscriber.Subscriber, error) {
	query, args, err := qb.Select("u.id AS user_id", "u.username", "u.email").
		From("users u").
		Where(
			qb.IsNull("u.deleted_at"),
			qb.Expr("btrim(u.email) <> ''"),
			qb.Expr("btrim(u.username) <> ''"),
			qb.Expr(`(EXISTS (SELECT 1 FROM mapper_alerts ma WHERE ma.user_id = u.id AND ma.deleted_at IS NULL)
    OR EXISTS (SELECT 1 FROM driver_notifications dn WHERE dn.user_id = u.id AND dn.status = ?))`, "active"),
		).
		OrderBy("u.id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list subscribers query: %w", err)
	}

	var rows []subscriberRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}

	out := make([]subscriber.Subscriber, 0, len(rows))
	for _, row := range rows {
		out = append(out, subscriber.Subscriber{
			UserID:   row.UserID,
			Username: strings.TrimSpace(row.Username),
			Email:    strings.TrimSpace(row.Email),
		})
	}
	return out, nil
}
