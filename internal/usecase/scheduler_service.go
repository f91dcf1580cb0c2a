package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/riskibarqy/tm-alerts/internal/domain/history"
	"github.com/riskibarqy/tm-alerts/internal/domain/job"
	"github.com/riskibarqy/tm-alerts/internal/domain/jobscheduler"
	"github.com/riskibarqy/tm-alerts/internal/domain/subscriber"
	"github.com/riskibarqy/tm-alerts/internal/platform/logging"
	"go.opentelemetry.io/otel/attribute"
)

type CycleResult struct {
	ProcessingDate string `json:"processing_date"`
	Subscribers    int    `json:"subscribers"`
	JobsQueued     int    `json:"jobs_queued"`
	JobsFailed     int    `json:"jobs_failed"`
	// UsersQueued counts users whose jobs were all accepted.
	UsersQueued int `json:"users_queued"`
}

type SchedulerService struct {
	source   subscriber.Source
	queue    JobQueue
	dispatch dispatchLog
	metrics  PipelineRecorder
	logger   *logging.Logger
	now      func() time.Time
}

func NewSchedulerService(
	source subscriber.Source,
	queue JobQueue,
	dispatchRepo jobscheduler.Repository,
	metrics PipelineRecorder,
	logger *logging.Logger,
) *SchedulerService {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.Named("scheduler")

	return &SchedulerService{
		source:   source,
		queue:    queue,
		dispatch: dispatchLog{repo: dispatchRepo, logger: logger, now: time.Now},
		metrics:  recorderOrNoop(metrics),
		logger:   logger,
		now:      time.Now,
	}
}

// RunDailyCycle enqueues one job per subscriber and phase. Every phase 1
// job is offered before any phase 2 job. A failed enqueue is logged and
// counted; the cycle carries on with the next job.
func (s *SchedulerService) RunDailyCycle(ctx context.Context) (CycleResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SchedulerService.RunDailyCycle")
	defer span.End()

	now := s.now().UTC()
	date := history.DateOf(now)

	subscribers, err := s.source.FetchValidatedSubscribers(ctx)
	if err != nil {
		return CycleResult{}, fmt.Errorf("fetch subscribers: %w", err)
	}

	result := CycleResult{ProcessingDate: date, Subscribers: len(subscribers)}
	accepted := make(map[string]int, len(subscribers))

	for _, phase := range job.Phases {
		for _, sub := range subscribers {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}

			msg := job.Message{
				UserID:         sub.UserID,
				Username:       sub.Username,
				Email:          sub.Email,
				Type:           phase.Type(),
				Phase:          phase,
				Timestamp:      now,
				ProcessingDate: date,
				DedupKey:       job.DedupKey(sub.UserID, phase, date),
			}
			msg.DispatchID = msg.DedupKey

			if err := s.queue.Enqueue(ctx, PhaseJobPath, msg, 0, msg.DedupKey); err != nil {
				result.JobsFailed++
				s.metrics.JobEnqueued(string(msg.Type), false)
				s.dispatch.recordMessage(ctx, msg, jobscheduler.StatusFailed, err.Error())
				s.logger.ErrorContext(ctx, "enqueue phase job failed",
					"user_id", sub.UserID,
					"phase", phase,
					"dedup_key", msg.DedupKey,
					"error", err,
				)
				continue
			}

			result.JobsQueued++
			accepted[sub.UserID]++
			s.metrics.JobEnqueued(string(msg.Type), true)
			s.dispatch.recordMessage(ctx, msg, jobscheduler.StatusSent, "")
		}
	}

	for _, sub := range subscribers {
		if accepted[sub.UserID] == len(job.Phases) {
			result.UsersQueued++
		}
	}

	span.SetAttributes(
		attribute.String("processing_date", date),
		attribute.Int("subscribers", result.Subscribers),
		attribute.Int("jobs_queued", result.JobsQueued),
		attribute.Int("jobs_failed", result.JobsFailed),
	)
	s.logger.InfoContext(ctx, "daily cycle queued",
		"processing_date", date,
		"subscribers", result.Subscribers,
		"jobs_queued", result.JobsQueued,
		"jobs_failed", result.JobsFailed,
	)
	return result, nil
}
