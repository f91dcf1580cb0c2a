package httpapi

import (
	"context"
	"net/http"

	"github.com/riskibarqy/tm-alerts/internal/domain/job"
	"github.com/riskibarqy/tm-alerts/internal/platform/logging"
	"github.com/riskibarqy/tm-alerts/internal/usecase"
)

const maxJobBodyBytes = 1 << 20

// CycleRunner is satisfied by *usecase.SchedulerService.
type CycleRunner interface {
	RunDailyCycle(ctx context.Context) (usecase.CycleResult, error)
}

// JobConsumer is satisfied by *usecase.JobConsumer.
type JobConsumer interface {
	HandlePhaseJob(ctx context.Context, body []byte) (usecase.JobOutcome, error)
	HandleDeadLetter(ctx context.Context, source string, body []byte, attempts int, lastErr error) error
	ListDeadLetters(ctx context.Context, limit int) ([]job.DeadLetter, error)
}

// ComposeFlusher is satisfied by *usecase.ComposerService.
type ComposeFlusher interface {
	FlushExpired(ctx context.Context) (usecase.FlushResult, error)
}

// HistoryReader is satisfied by *usecase.HistoryService.
type HistoryReader interface {
	DailyOverview(ctx context.Context, processingDate string) (usecase.DailyOverview, error)
}

type Handler struct {
	scheduler CycleRunner
	consumer  JobConsumer
	composer  ComposeFlusher
	history   HistoryReader
	logger    *logging.Logger
}

func NewHandler(
	scheduler CycleRunner,
	consumer JobConsumer,
	composer ComposeFlusher,
	history HistoryReader,
	logger *logging.Logger,
) *Handler {
	if logger == nil {
		logger = logging.Default()
	}

	return &Handler{
		scheduler: scheduler,
		consumer:  consumer,
		composer:  composer,
		history:   history,
		logger:    logger.Named("http"),
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Healthz")
	defer span.End()

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}
