package usecase

import (
	"context"
	"time"

	"github.com/riskibarqy/tm-alerts/internal/config"
	"github.com/riskibarqy/tm-alerts/internal/domain/job"
)

// JobQueue accepts phase jobs. Implementations drop a second enqueue with
// the same deduplicationID.
type JobQueue interface {
	Enqueue(ctx context.Context, path string, payload any, delay time.Duration, deduplicationID string) error
}

// EmailSender is the transport used by the composer.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// DeadLetterArchive keeps jobs that exhausted their deliveries.
type DeadLetterArchive interface {
	Put(ctx context.Context, dl job.DeadLetter) error
	List(ctx context.Context, limit int) ([]job.DeadLetter, error)
}

// TunablesSource returns the current runtime tunables. Callers read it once
// per job so a reload never changes values mid-job.
type TunablesSource interface {
	Current() config.Tunables
}

// PipelineRecorder receives pipeline metrics. *metrics.Recorder satisfies it.
type PipelineRecorder interface {
	JobEnqueued(jobType string, ok bool)
	JobProcessed(jobType, status string, elapsed time.Duration)
	EmailResult(result string)
	DeadLetter(jobType string)
}

type noopRecorder struct{}

func (noopRecorder) JobEnqueued(string, bool) {}
func (noopRecorder) JobProcessed(string, string, time.Duration) {}
func (noopRecorder) EmailResult(string) {}
func (noopRecorder) DeadLetter(string) {}

func recorderOrNoop(r PipelineRecorder) PipelineRecorder {
	if r == nil {
		return noopRecorder{}
	}
	return r
}

func tunablesOrDefault(src TunablesSource) TunablesSource {
	if src == nil {
		return config.StaticTunables(config.DefaultTunables())
	}
	return src
}
