package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/riskibarqy/tm-alerts/internal/domain/history"
	"github.com/riskibarqy/tm-alerts/internal/domain/pendingemail"
	"github.com/riskibarqy/tm-alerts/internal/platform/logging"
	"go.opentelemetry.io/otel/attribute"
)

const (
	mapperSectionTitle = "New records on your maps"
	driverSectionTitle = "Your leaderboard positions"

	flushBatchSize = 500
)

type ComposeOutcome string

const (
	ComposeWaiting        ComposeOutcome = "waiting"
	ComposeAlreadyClaimed ComposeOutcome = "already_claimed"
	ComposeSent           ComposeOutcome = "sent"
	ComposeSkippedEmpty   ComposeOutcome = "skipped_empty"
	ComposeFailed         ComposeOutcome = "failed"
)

type ComposeResult struct {
	Outcome  ComposeOutcome `json:"outcome"`
	Sections []history.Type `json:"sections,omitempty"`
}

type FlushResult struct {
	Expired int `json:"expired"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// ComposerService merges both phases' sections into one email per user
// and day. It is the only component that talks to the email transport.
type ComposerService struct {
	pending  pendingemail.Repository
	history  history.Repository
	sender   EmailSender
	tunables TunablesSource
	metrics  PipelineRecorder
	logger   *logging.Logger
	now      func() time.Time
}

func NewComposerService(
	pending pendingemail.Repository,
	historyRepo history.Repository,
	sender EmailSender,
	tunables TunablesSource,
	metrics PipelineRecorder,
	logger *logging.Logger,
) *ComposerService {
	if logger == nil {
		logger = logging.Default()
	}

	return &ComposerService{
		pending:  pending,
		history:  historyRepo,
		sender:   sender,
		tunables: tunablesOrDefault(tunables),
		metrics:  recorderOrNoop(metrics),
		logger:   logger.Named("composer"),
		now:      time.Now,
	}
}

// TryCompose sends the email once both phases reported. Until then the row
// stays in place for the other phase or for FlushExpired.
func (s *ComposerService) TryCompose(ctx context.Context, row pendingemail.PendingEmail) (ComposeResult, error) {
	if !row.Ready() {
		return ComposeResult{Outcome: ComposeWaiting}, nil
	}
	return s.claimAndSend(ctx, row.UserID, row.ProcessingDate)
}

// FlushExpired composes rows whose sibling phase never reported within the
// compose timeout, using whatever sections are present.
func (s *ComposerService) FlushExpired(ctx context.Context) (FlushResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ComposerService.FlushExpired")
	defer span.End()

	cutoff := s.now().Add(-s.tunables.Current().ComposeTimeout)
	rows, err := s.pending.ListCreatedBefore(ctx, cutoff, flushBatchSize)
	if err != nil {
		return FlushResult{}, fmt.Errorf("list expired pending emails: %w", err)
	}

	result := FlushResult{Expired: len(rows)}
	for _, row := range rows {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		s.logger.WarnContext(ctx, "composing after timeout",
			"user_id", row.UserID,
			"processing_date", row.ProcessingDate,
			"mapper_done", row.MapperDone,
			"driver_done", row.DriverDone,
		)
		composed, err := s.claimAndSend(ctx, row.UserID, row.ProcessingDate)
		if err != nil {
			s.logger.ErrorContext(ctx, "compose expired row failed",
				"user_id", row.UserID,
				"processing_date", row.ProcessingDate,
				"error", err,
			)
			result.Failed++
			continue
		}
		switch composed.Outcome {
		case ComposeSent:
			result.Sent++
		case ComposeFailed:
			result.Failed++
		case ComposeSkippedEmpty:
			result.Skipped++
		}
	}

	span.SetAttributes(attribute.Int("expired", result.Expired), attribute.Int("sent", result.Sent))
	return result, nil
}

func (s *ComposerService) claimAndSend(ctx context.Context, userID, processingDate string) (ComposeResult, error) {
	row, ok, err := s.pending.Claim(ctx, userID, processingDate)
	if err != nil {
		return ComposeResult{}, fmt.Errorf("claim pending email user_id=%s: %w", userID, err)
	}
	if !ok {
		return ComposeResult{Outcome: ComposeAlreadyClaimed}, nil
	}
	return s.send(ctx, row)
}

type composedSection struct {
	kind  history.Type
	title string
	body  string
}

func (s *ComposerService) send(ctx context.Context, row pendingemail.PendingEmail) (ComposeResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ComposerService.send")
	defer span.End()

	candidates := []composedSection{
		{kind: history.TypeMapperAlert, title: mapperSectionTitle, body: row.MapperText},
		{kind: history.TypeDriverNotification, title: driverSectionTitle, body: row.DriverText},
	}
	sections := make([]composedSection, 0, len(candidates))
	for _, c := range candidates {
		if strings.TrimSpace(c.body) == "" {
			continue
		}
		// A section is only mailed while its ledger row still says sent.
		entry, found, err := s.history.Get(ctx, history.Key{UserID: row.UserID, Type: c.kind, ProcessingDate: row.ProcessingDate})
		if err != nil {
			return ComposeResult{}, fmt.Errorf("get history user_id=%s type=%s: %w", row.UserID, c.kind, err)
		}
		if !found || entry.Status != history.StatusSent {
			s.logger.WarnContext(ctx, "dropping section without sent history",
				"user_id", row.UserID,
				"type", c.kind,
				"found", found,
			)
			continue
		}
		sections = append(sections, c)
	}

	if len(sections) == 0 {
		s.metrics.EmailResult(string(ComposeSkippedEmpty))
		return ComposeResult{Outcome: ComposeSkippedEmpty}, nil
	}

	kinds := make([]history.Type, 0, len(sections))
	view := digestView{Username: row.Username, Date: row.ProcessingDate}
	for _, sec := range sections {
		kinds = append(kinds, sec.kind)
		view.Sections = append(view.Sections, digestSection{Title: sec.title, Body: sec.body})
	}

	to := sanitizeHeader(row.Email)
	if to == "" {
		s.failSections(ctx, row, kinds, msgMissingRecipient)
		s.metrics.EmailResult(string(ComposeFailed))
		return ComposeResult{Outcome: ComposeFailed, Sections: kinds}, nil
	}

	body, err := renderDigest(view)
	if err != nil {
		s.failSections(ctx, row, kinds, msgInternal)
		s.metrics.EmailResult(string(ComposeFailed))
		return ComposeResult{}, fmt.Errorf("render email user_id=%s: %w", row.UserID, err)
	}
	subject := sanitizeHeader(fmt.Sprintf("Trackmania update for %s - %s", row.Username, row.ProcessingDate))

	if err := s.sender.Send(ctx, to, subject, body); err != nil {
		s.logger.ErrorContext(ctx, "email delivery failed",
			"user_id", row.UserID,
			"processing_date", row.ProcessingDate,
			"error", err,
		)
		s.failSections(ctx, row, kinds, msgDeliveryFailed)
		s.metrics.EmailResult(string(ComposeFailed))
		return ComposeResult{Outcome: ComposeFailed, Sections: kinds}, nil
	}

	s.metrics.EmailResult(string(ComposeSent))
	s.logger.InfoContext(ctx, "email sent",
		"user_id", row.UserID,
		"processing_date", row.ProcessingDate,
		"sections", len(kinds),
	)
	return ComposeResult{Outcome: ComposeSent, Sections: kinds}, nil
}

func (s *ComposerService) failSections(ctx context.Context, row pendingemail.PendingEmail, kinds []history.Type, message string) {
	for _, kind := range kinds {
		key := history.Key{UserID: row.UserID, Type: kind, ProcessingDate: row.ProcessingDate}
		if _, err := s.history.MarkDeliveryFailed(ctx, key, message); err != nil {
			s.logger.ErrorContext(ctx, "mark delivery failed",
				"user_id", row.UserID,
				"type", kind,
				"error", err,
			)
		}
	}
}
