package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/riskibarqy/tm-alerts/internal/domain/job"
	"github.com/riskibarqy/tm-alerts/internal/domain/jobscheduler"
	"github.com/riskibarqy/tm-alerts/internal/platform/logging"
	"go.opentelemetry.io/otel/trace"
)

const PhaseJobPath = "/v1/internal/jobs/phase"

// dispatchLog writes job lifecycle events. A failed write is only logged.
type dispatchLog struct {
	repo   jobscheduler.Repository
	logger *logging.Logger
	now    func() time.Time
}

func (d dispatchLog) record(ctx context.Context, event jobscheduler.DispatchEvent) {
	if d.repo == nil || strings.TrimSpace(event.DispatchID) == "" {
		return
	}
	traceID, spanID := traceMetaFromContext(ctx)
	event.TraceID = traceID
	event.SpanID = spanID
	if event.OccurredAt.IsZero() {
		event.OccurredAt = d.now().UTC()
	}
	if err := d.repo.UpsertEvent(ctx, event); err != nil {
		d.logger.WarnContext(ctx, "record job dispatch event failed",
			"dispatch_id", event.DispatchID,
			"status", event.Status,
			"error", err,
		)
	}
}

func (d dispatchLog) recordMessage(ctx context.Context, msg job.Message, status jobscheduler.DispatchStatus, errMessage string) {
	d.record(ctx, jobscheduler.DispatchEvent{
		DispatchID:     msg.DedupKey,
		JobName:        string(msg.Type),
		JobPath:        PhaseJobPath,
		UserID:         msg.UserID,
		Phase:          int(msg.Phase),
		ProcessingDate: msg.ProcessingDate,
		Status:         status,
		Payload:        messagePayload(msg),
		ErrorMessage:   errMessage,
	})
}

func messagePayload(msg job.Message) map[string]any {
	return map[string]any{
		"user_id":         msg.UserID,
		"phase":           int(msg.Phase),
		"type":            string(msg.Type),
		"processing_date": msg.ProcessingDate,
		"dedup_key":       msg.DedupKey,
	}
}

func traceMetaFromContext(ctx context.Context) (string, string) {
	spanContext := trace.SpanFromContext(ctx).SpanContext()
	if !spanContext.IsValid() {
		return "", ""
	}
	return spanContext.TraceID().String(), spanContext.SpanID().String()
}
