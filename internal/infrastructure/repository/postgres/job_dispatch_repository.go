package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	"github.com/riskibarqy/tm-alerts/internal/domain/history"
	"github.com/riskibarqy/tm-alerts/internal/domain/jobscheduler"
	qb "github.com/riskibarqy/tm-alerts/internal/platform/querybuilder"
)

type JobDispatchRepository struct {
	db *sqlx.DB
}

func NewJobDispatchRepository(db *sqlx.DB) *JobDispatchRepository {
	return &JobDispatchRepository{db: db}
}

func (r *JobDispatchRepository) UpsertEvent(ctx context.Context, event jobscheduler.DispatchEvent) error {
	dispatchID := strings.TrimSpace(event.DispatchID)
	if dispatchID == "" {
		return fmt.Errorf("dispatch id is required")
	}

	jobName := strings.TrimSpace(event.JobName)
	if jobName == "" {
		jobName = "unknown"
	}
	jobPath := strings.TrimSpace(event.JobPath)
	if jobPath == "" {
		jobPath = "/unknown"
	}

	occurredAt := event.OccurredAt.UTC()
	if event.OccurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	processingDate := strings.TrimSpace(event.ProcessingDate)
	if processingDate == "" {
		processingDate = history.DateOf(occurredAt)
	}

	payloadJSON, err := marshalPayload(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal job dispatch payload: %w", err)
	}

	model := jobDispatchInsertModel{
		DispatchID:     dispatchID,
		JobName:        jobName,
		JobPath:        jobPath,
		UserID:         strings.TrimSpace(event.UserID),
		Phase:          event.Phase,
		ProcessingDate: processingDate,
		Payload:        payloadJSON,
		Status:         string(event.Status),
		LastError:      optionalString(event.ErrorMessage),
	}

	switch event.Status {
	case jobscheduler.StatusSent:
		model.SentAt = &occurredAt
		model.SentTraceID = optionalString(event.TraceID)
		model.SentSpanID = optionalString(event.SpanID)
		model.LastError = nil
	case jobscheduler.StatusCompleted:
		model.CompletedAt = &occurredAt
		model.CompletedTraceID = optionalString(event.TraceID)
		model.CompletedSpanID = optionalString(event.SpanID)
		model.LastError = nil
	case jobscheduler.StatusFailed, jobscheduler.StatusDeadLettered:
		model.FailedAt = &occurredAt
		model.FailedTraceID = optionalString(event.TraceID)
		model.FailedSpanID = optionalString(event.SpanID)
	}

	query, args, err := qb.InsertModel("job_dispatches", model, `ON CONFLICT (dispatch_id)
DO UPDATE SET
    job_name = EXCLUDED.job_name,
    job_path = EXCLUDED.job_path,
    payload = CASE WHEN EXCLUDED.payload = '{}' THEN job_dispatches.payload ELSE EXCLUDED.payload END,
    status = EXCLUDED.status,
    sent_at = COALESCE(job_dispatches.sent_at, EXCLUDED.sent_at),
    completed_at = CASE
        WHEN EXCLUDED.status = 'completed' THEN EXCLUDED.completed_at
        ELSE job_dispatches.completed_at
    END,
    failed_at = CASE
        WHEN EXCLUDED.status IN ('failed', 'dead_lettered') THEN EXCLUDED.failed_at
        WHEN EXCLUDED.status = 'completed' THEN NULL
        ELSE job_dispatches.failed_at
    END,
    last_error = CASE
        WHEN EXCLUDED.status IN ('failed', 'dead_lettered') THEN EXCLUDED.last_error
        ELSE NULL
    END,
    sent_trace_id = COALESCE(job_dispatches.sent_trace_id, EXCLUDED.sent_trace_id),
    sent_span_id = COALESCE(job_dispatches.sent_span_id, EXCLUDED.sent_span_id),
    completed_trace_id = CASE
        WHEN EXCLUDED.status = 'completed' THEN EXCLUDED.completed_trace_id
        ELSE job_dispatches.completed_trace_id
    END,
    completed_span_id = CASE
        WHEN EXCLUDED.status = 'completed' THEN EXCLUDED.completed_span_id
        ELSE job_dispatches.completed_span_id
    END,
    failed_trace_id = CASE
        WHEN EXCLUDED.status IN ('failed', 'dead_lettered') THEN EXCLUDED.failed_trace_id
        ELSE job_dispatches.failed_trace_id
    END,
    failed_span_id = CASE
        WHEN EXCLUDED.status IN ('failed', 'dead_lettered') THEN EXCLUDED.failed_span_id
        ELSE job_dispatches.failed_span_id
    END,
    updated_at = NOW()`)
	if err != nil {
		return fmt.Errorf("build upsert job dispatch query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert job dispatch dispatch_id=%s status=%s: %w", dispatchID, event.Status, err)
	}

	return nil
}

func (r *JobDispatchRepository) ListByDate(ctx context.Context, processingDate string) ([]jobscheduler.DispatchEvent, error) {
	query, args, err := qb.Select(
		"dispatch_id", "job_name", "job_path", "user_id", "phase", "processing_date",
		"payload::text AS payload", "status", "last_error", "updated_at", "failed_trace_id", "failed_at",
	).
		From("job_dispatches").
		Where(qb.Eq("processing_date", processingDate)).
		OrderBy("phase", "dispatch_id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list job dispatches query: %w", err)
	}

	var rows []jobDispatchTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list job dispatches processing_date=%s: %w", processingDate, err)
	}

	out := make([]jobscheduler.DispatchEvent, 0, len(rows))
	for _, row := range rows {
		event := jobscheduler.DispatchEvent{
			DispatchID:     row.DispatchID,
			JobName:        row.JobName,
			JobPath:        row.JobPath,
			UserID:         row.UserID,
			Phase:          row.Phase,
			ProcessingDate: row.ProcessingDate.Format(history.DateLayout),
			Status:         jobscheduler.DispatchStatus(row.Status),
			OccurredAt:     row.UpdatedAt,
		}
		if row.LastError != nil {
			event.ErrorMessage = *row.LastError
		}
		if row.FailedTraceID != nil {
			event.TraceID = *row.FailedTraceID
		}
		if row.Payload != "" {
			_ = jsoniter.UnmarshalFromString(row.Payload, &event.Payload)
		}
		out = append(out, event)
	}
	return out, nil
}

func marshalPayload(payload map[string]any) (string, error) {
	if len(payload) == 0 {
		return "{}", nil
	}
	raw, err := jsoniter.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
