package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/riskibarqy/tm-alerts/internal/domain/history"
	"github.com/riskibarqy/tm-alerts/internal/domain/job"
	"github.com/riskibarqy/tm-alerts/internal/domain/jobscheduler"
	"github.com/riskibarqy/tm-alerts/internal/platform/id"
	"github.com/riskibarqy/tm-alerts/internal/platform/logging"
	"github.com/sourcegraph/conc/panics"
)

type JobConsumerConfig struct {
	// JobTimeout bounds one phase run including its compose attempt.
	JobTimeout time.Duration
}

type JobOutcome struct {
	Phase   PhaseResult    `json:"phase"`
	Compose *ComposeResult `json:"compose,omitempty"`
}

// JobConsumer is the queue-facing entry point. The in-process worker pool
// and the HTTP push endpoint both hand raw bodies to it.
type JobConsumer struct {
	processor *PhaseProcessor
	composer  *ComposerService
	history   history.Repository
	archive   DeadLetterArchive
	dispatch  dispatchLog
	ids       id.Generator
	validate  *validator.Validate
	metrics   PipelineRecorder
	cfg       JobConsumerConfig
	logger    *logging.Logger
	now       func() time.Time
}

func NewJobConsumer(
	processor *PhaseProcessor,
	composer *ComposerService,
	historyRepo history.Repository,
	archive DeadLetterArchive,
	dispatchRepo jobscheduler.Repository,
	metrics PipelineRecorder,
	cfg JobConsumerConfig,
	logger *logging.Logger,
) *JobConsumer {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	logger = logger.Named("job_consumer")

	return &JobConsumer{
		processor: processor,
		composer:  composer,
		history:   historyRepo,
		archive:   archive,
		dispatch:  dispatchLog{repo: dispatchRepo, logger: logger, now: time.Now},
		ids:       id.NewUUIDGenerator(),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		metrics:   recorderOrNoop(metrics),
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// IsPermanent reports whether redelivering the job can never succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// DecodeMessage parses and validates a phase job body.
func (c *JobConsumer) DecodeMessage(ctx context.Context, body []byte) (job.Message, error) {
	var msg job.Message
	if err := sonic.Unmarshal(body, &msg); err != nil {
		return job.Message{}, fmt.Errorf("%w: decode job body: %v", ErrInvalidInput, err)
	}
	if err := c.validate.StructCtx(ctx, msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := msg.CheckConsistency(); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return msg, nil
}

// HandlePhaseJob runs one delivery. A nil error acknowledges the job; a
// non-nil error asks the queue to redeliver unless IsPermanent says not to.
func (c *JobConsumer) HandlePhaseJob(ctx context.Context, body []byte) (JobOutcome, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.JobConsumer.HandlePhaseJob")
	defer span.End()

	msg, err := c.DecodeMessage(ctx, body)
	if err != nil {
		c.rejectMessage(ctx, msg, err)
		return JobOutcome{}, err
	}

	started := c.now()
	jobCtx, cancel := context.WithTimeout(ctx, c.cfg.JobTimeout)
	defer cancel()

	var (
		outcome JobOutcome
		runErr  error
		catcher panics.Catcher
	)
	catcher.Try(func() {
		outcome, runErr = c.run(jobCtx, msg)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		c.processor.Abandon(ctx, msg)
		c.logger.ErrorContext(ctx, "phase job panicked",
			"user_id", msg.UserID,
			"phase", msg.Phase,
			"panic", recovered.String(),
		)
		runErr = fmt.Errorf("phase job panicked: %w", recovered.AsError())
	}

	var status string
	if runErr != nil {
		status = "error"
		c.dispatch.recordMessage(ctx, msg, jobscheduler.StatusFailed, runErr.Error())
	} else {
		status = string(outcome.Phase.Status)
		c.dispatch.recordMessage(ctx, msg, jobscheduler.StatusCompleted, "")
	}
	c.metrics.JobProcessed(string(msg.Type), status, c.now().Sub(started))

	return outcome, runErr
}

func (c *JobConsumer) run(ctx context.Context, msg job.Message) (JobOutcome, error) {
	result, err := c.processor.Process(ctx, msg)
	if err != nil {
		return JobOutcome{}, err
	}
	outcome := JobOutcome{Phase: result}
	if result.Pending == nil {
		return outcome, nil
	}

	composed, err := c.composer.TryCompose(ctx, *result.Pending)
	if err != nil {
		// The phase is already recorded; the flush sweep retries the email.
		c.logger.ErrorContext(ctx, "compose after phase failed",
			"user_id", msg.UserID,
			"phase", msg.Phase,
			"error", err,
		)
		return outcome, nil
	}
	outcome.Compose = &composed
	return outcome, nil
}

// rejectMessage records a technical_error for a job that can never run,
// when the body carried enough to identify its ledger row.
func (c *JobConsumer) rejectMessage(ctx context.Context, msg job.Message, cause error) {
	c.logger.WarnContext(ctx, "rejecting invalid phase job",
		"user_id", msg.UserID,
		"phase", msg.Phase,
		"error", cause,
	)
	c.metrics.JobProcessed(string(msg.Type), string(history.StatusTechnicalError), 0)

	if strings.TrimSpace(msg.UserID) == "" || (msg.Phase != job.PhaseMapperAlert && msg.Phase != job.PhaseDriverNotification) {
		return
	}
	if _, err := time.Parse(history.DateLayout, msg.ProcessingDate); err != nil {
		return
	}

	key := msg.HistoryKey()
	_, outcome, err := c.history.Begin(ctx, history.Entry{
		UserID:         msg.UserID,
		Username:       msg.Username,
		Type:           key.Type,
		ProcessingDate: msg.ProcessingDate,
	}, time.Time{})
	if err != nil || outcome != history.BeginClaimed {
		return
	}
	if _, err := c.history.Finalize(ctx, key, history.StatusTechnicalError, msgInvalidInput, 0); err != nil {
		c.logger.WarnContext(ctx, "record invalid job failed", "user_id", msg.UserID, "error", err)
	}
}

// HandleDeadLetter archives a job that used up its deliveries.
func (c *JobConsumer) HandleDeadLetter(ctx context.Context, source string, body []byte, attempts int, lastErr error) error {
	dlID, err := c.ids.NewID()
	if err != nil {
		return fmt.Errorf("dead letter id: %w", err)
	}
	dl := job.DeadLetter{
		ID:       dlID,
		Source:   source,
		Body:     body,
		Attempts: attempts,
		FailedAt: c.now().UTC(),
	}
	if lastErr != nil {
		dl.LastError = lastErr.Error()
	}

	var msg job.Message
	if err := sonic.Unmarshal(body, &msg); err == nil && msg.DedupKey != "" {
		dl.Message = &msg
		c.dispatch.recordMessage(ctx, msg, jobscheduler.StatusDeadLettered, dl.LastError)
	}
	c.metrics.DeadLetter(string(msg.Type))

	c.logger.ErrorContext(ctx, "job dead lettered",
		"dead_letter_id", dl.ID,
		"source", source,
		"attempts", attempts,
		"user_id", msg.UserID,
		"phase", msg.Phase,
		"error", dl.LastError,
	)
	if c.archive == nil {
		return nil
	}
	if err := c.archive.Put(ctx, dl); err != nil {
		return fmt.Errorf("archive dead letter id=%s: %w", dl.ID, err)
	}
	return nil
}

func (c *JobConsumer) ListDeadLetters(ctx context.Context, limit int) ([]job.DeadLetter, error) {
	if c.archive == nil {
		return []job.DeadLetter{}, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return c.archive.List(ctx, limit)
}
