package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/riskibarqy/tm-alerts/internal/config"
	"github.com/riskibarqy/tm-alerts/internal/domain/drivernotification"
	"github.com/riskibarqy/tm-alerts/internal/domain/history"
	"github.com/riskibarqy/tm-alerts/internal/domain/job"
	"github.com/riskibarqy/tm-alerts/internal/domain/leaderboard"
	"github.com/riskibarqy/tm-alerts/internal/domain/mapperalert"
	"github.com/riskibarqy/tm-alerts/internal/domain/mapposition"
	"github.com/riskibarqy/tm-alerts/internal/domain/pendingemail"
	"github.com/riskibarqy/tm-alerts/internal/platform/logging"
	"go.opentelemetry.io/otel/attribute"
)

const releaseTimeout = 5 * time.Second

type PhaseProcessorConfig struct {
	// HistoryStaleAfter is how long a processing row may sit untouched
	// before another delivery takes it over.
	HistoryStaleAfter time.Duration
	GroupUID          string
}

// PhaseResult describes what one phase run did.
type PhaseResult struct {
	Status       history.Status `json:"status"`
	RecordsFound int            `json:"records_found"`
	// AlreadyDone is set when the day's row was already terminal.
	AlreadyDone bool `json:"already_done,omitempty"`
	// Superseded is set when another worker finalized the row first.
	Superseded bool `json:"superseded,omitempty"`
	// Pending is the accumulator after this phase contributed, if it did.
	Pending *pendingemail.PendingEmail `json:"-"`
}

type PhaseProcessor struct {
	alerts    mapperalert.Repository
	drivers   drivernotification.Repository
	positions mapposition.Repository
	history   history.Repository
	pending   pendingemail.Repository
	reader    leaderboard.Reader
	tunables  TunablesSource
	cfg       PhaseProcessorConfig
	logger    *logging.Logger
	now       func() time.Time
}

func NewPhaseProcessor(
	alerts mapperalert.Repository,
	drivers drivernotification.Repository,
	positions mapposition.Repository,
	historyRepo history.Repository,
	pending pendingemail.Repository,
	reader leaderboard.Reader,
	tunables TunablesSource,
	cfg PhaseProcessorConfig,
	logger *logging.Logger,
) *PhaseProcessor {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.HistoryStaleAfter <= 0 {
		cfg.HistoryStaleAfter = 15 * time.Minute
	}

	return &PhaseProcessor{
		alerts:    alerts,
		drivers:   drivers,
		positions: positions,
		history:   historyRepo,
		pending:   pending,
		reader:    reader,
		tunables:  tunablesOrDefault(tunables),
		cfg:       cfg,
		logger:    logger.Named("phase_processor"),
		now:       time.Now,
	}
}

// Process runs one (user, phase, day). It returns an error only when the
// job should be redelivered: the History gate could not be written, another
// worker holds the row, or ctx ended before the phase finished. Every other
// outcome ends in a terminal History row.
func (p *PhaseProcessor) Process(ctx context.Context, msg job.Message) (PhaseResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.PhaseProcessor.Process")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", msg.UserID),
		attribute.Int("phase", int(msg.Phase)),
		attribute.String("processing_date", msg.ProcessingDate),
	)

	key := msg.HistoryKey()
	entry := history.Entry{
		UserID:         msg.UserID,
		Username:       msg.Username,
		Type:           key.Type,
		ProcessingDate: msg.ProcessingDate,
	}
	staleBefore := p.now().Add(-p.cfg.HistoryStaleAfter)

	existing, outcome, err := p.history.Begin(ctx, entry, staleBefore)
	if err != nil {
		return PhaseResult{}, fmt.Errorf("begin history user_id=%s type=%s: %w", msg.UserID, key.Type, err)
	}

	switch outcome {
	case history.BeginInFlight:
		return PhaseResult{}, fmt.Errorf("%w: user_id=%s type=%s", ErrPhaseInFlight, msg.UserID, key.Type)
	case history.BeginAlreadyTerminal:
		p.logger.InfoContext(ctx, "phase already finished today",
			"user_id", msg.UserID,
			"phase", msg.Phase,
			"status", existing.Status,
		)
		pending, err := p.contribute(ctx, msg, "")
		if err != nil {
			return PhaseResult{}, err
		}
		return PhaseResult{Status: existing.Status, RecordsFound: existing.RecordsFound, AlreadyDone: true, Pending: &pending}, nil
	}

	tunables := p.tunables.Current()
	var (
		text    string
		records int
		runErr  error
	)
	switch msg.Phase {
	case job.PhaseMapperAlert:
		text, records, runErr = p.runMapper(ctx, msg, tunables)
	case job.PhaseDriverNotification:
		text, records, runErr = p.runDriver(ctx, msg, tunables)
	default:
		runErr = fmt.Errorf("%w: unknown phase %d", ErrInvalidInput, msg.Phase)
	}

	if ctx.Err() != nil {
		p.release(ctx, key)
		return PhaseResult{}, fmt.Errorf("phase abandoned user_id=%s type=%s: %w", msg.UserID, key.Type, ctx.Err())
	}

	status := history.StatusNoNewTimes
	message := ""
	switch {
	case runErr != nil:
		status = history.StatusTechnicalError
		message = failureMessage(runErr)
		text = ""
		p.logger.ErrorContext(ctx, "phase failed",
			"user_id", msg.UserID,
			"phase", msg.Phase,
			"error", runErr,
		)
	case text != "":
		status = history.StatusSent
	}

	finalized, err := p.history.Finalize(ctx, key, status, message, records)
	if err != nil {
		return PhaseResult{}, fmt.Errorf("finalize history user_id=%s type=%s: %w", msg.UserID, key.Type, err)
	}
	if !finalized {
		p.logger.WarnContext(ctx, "history row was taken over before finalize",
			"user_id", msg.UserID,
			"phase", msg.Phase,
		)
		return PhaseResult{Status: status, RecordsFound: records, Superseded: true}, nil
	}

	pending, err := p.contribute(ctx, msg, text)
	if err != nil {
		return PhaseResult{}, err
	}

	span.SetAttributes(attribute.String("status", string(status)), attribute.Int("records_found", records))
	return PhaseResult{Status: status, RecordsFound: records, Pending: &pending}, nil
}

// Abandon releases the day's processing row after a crash inside Process.
func (p *PhaseProcessor) Abandon(ctx context.Context, msg job.Message) {
	p.release(ctx, msg.HistoryKey())
}

func (p *PhaseProcessor) release(ctx context.Context, key history.Key) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := p.history.Release(releaseCtx, key); err != nil {
		p.logger.WarnContext(ctx, "release history row failed",
			"user_id", key.UserID,
			"type", key.Type,
			"error", err,
		)
	}
}

func (p *PhaseProcessor) contribute(ctx context.Context, msg job.Message, text string) (pendingemail.PendingEmail, error) {
	row, err := p.pending.Contribute(ctx, pendingemail.Contribution{
		UserID:         msg.UserID,
		Username:       msg.Username,
		Email:          msg.Email,
		ProcessingDate: msg.ProcessingDate,
		Type:           msg.Phase.HistoryType(),
		Text:           text,
	})
	if err != nil {
		return pendingemail.PendingEmail{}, fmt.Errorf("contribute pending email user_id=%s: %w", msg.UserID, err)
	}
	return row, nil
}

type mapRecords struct {
	mapName string
	records []leaderboard.Entry
}

func (p *PhaseProcessor) runMapper(ctx context.Context, msg job.Message, t config.Tunables) (string, int, error) {
	alert, ok, err := p.alerts.GetByUser(ctx, msg.UserID)
	if err != nil {
		return "", 0, fmt.Errorf("get mapper alert: %w", err)
	}
	if !ok {
		return "", 0, nil
	}
	if !alert.RecordFilter.Valid() {
		return "", 0, fmt.Errorf("%w: record filter %q", ErrInvalidInput, alert.RecordFilter)
	}

	mode := alert.ModeFor(t.InaccurateModeThreshold)
	if mode != alert.AlertType {
		if err := p.alerts.UpdateAlertType(ctx, alert.ID, mode); err != nil {
			p.logger.WarnContext(ctx, "persist alert mode failed", "alert_id", alert.ID, "mode", mode, "error", err)
		}
	}

	maps, err := p.alerts.ListAlertMaps(ctx, alert.ID)
	if err != nil {
		return "", 0, fmt.Errorf("list alert maps: %w", err)
	}
	if len(maps) == 0 {
		return "", 0, nil
	}

	now := p.now()
	cutoff := now.Add(-t.NewRecordWindow)
	window := alert.RecordFilter.Window()

	var (
		found    []mapRecords
		failures int
		lastErr  error
	)
	for _, m := range maps {
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}

		if mode == mapperalert.AlertTypeInaccurate {
			fetch, err := p.shouldFetch(ctx, m.MapUID, window, t, cutoff, now)
			if err != nil {
				if errors.Is(err, ErrUnauthorized) {
					return "", 0, err
				}
				failures++
				lastErr = err
				p.logger.WarnContext(ctx, "probe failed, skipping map", "map_uid", m.MapUID, "error", err)
				continue
			}
			if !fetch {
				continue
			}
		}

		entries, err := p.reader.GetLeaderboard(ctx, leaderboard.Query{MapUID: m.MapUID, Group: p.cfg.GroupUID, Length: window})
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				return "", 0, err
			}
			failures++
			lastErr = err
			p.logger.WarnContext(ctx, "leaderboard fetch failed, skipping map", "map_uid", m.MapUID, "error", err)
			continue
		}

		fresh := newRecords(entries, cutoff, window)
		if len(fresh) > 0 {
			found = append(found, mapRecords{mapName: mapLabel(m.MapName, m.MapUID), records: fresh})
		}
	}

	if failures == len(maps) {
		return "", 0, fmt.Errorf("%s: %w", msgAllMapsFailed, lastErr)
	}
	if len(found) == 0 {
		return "", 0, nil
	}

	p.attachDisplayNames(ctx, found)

	blocks := make([]string, 0, len(found))
	total := 0
	for _, f := range found {
		total += len(f.records)
		blocks = append(blocks, formatMapperBlock(f.mapName, f.records, t.TruncationCap))
	}
	return strings.Join(blocks, "\n\n"), total, nil
}

// shouldFetch probes the Nth entry of a map and compares it with the shared
// snapshot. A map is fetched when the probe moved, when there is no
// snapshot yet, or when an earlier watcher saw it move inside the window.
func (p *PhaseProcessor) shouldFetch(ctx context.Context, mapUID string, window int, t config.Tunables, cutoff, now time.Time) (bool, error) {
	probeAt := window
	if probeAt <= 0 {
		probeAt = t.ProbePositionAll
	}

	probe, err := p.reader.GetLeaderboard(ctx, leaderboard.Query{MapUID: mapUID, Group: p.cfg.GroupUID, Offset: probeAt - 1, Length: 1})
	if err != nil {
		return false, err
	}
	if len(probe) == 0 {
		// Fewer than probeAt entries: the snapshot has nothing to compare.
		return true, nil
	}
	current := probe[0]

	snapshot, ok, err := p.positions.Get(ctx, mapUID)
	if err != nil {
		p.logger.WarnContext(ctx, "read map position failed, fetching map", "map_uid", mapUID, "error", err)
		return true, nil
	}

	changed := !ok || snapshot.Changed(current.Position, current.Score)
	next := mapposition.MapPosition{
		MapUID:      mapUID,
		Position:    current.Position,
		Score:       current.Score,
		LastChecked: now,
		LastChanged: snapshot.LastChanged,
	}
	if changed {
		next.LastChanged = now
	}
	if err := p.positions.Upsert(ctx, next); err != nil {
		p.logger.WarnContext(ctx, "store map position failed", "map_uid", mapUID, "error", err)
	}

	recentlyChanged := !snapshot.LastChanged.IsZero() && !snapshot.LastChanged.Before(cutoff)
	return changed || recentlyChanged, nil
}

func (p *PhaseProcessor) attachDisplayNames(ctx context.Context, found []mapRecords) {
	ids := make([]string, 0)
	for _, f := range found {
		for _, r := range f.records {
			ids = append(ids, r.AccountID)
		}
	}
	names := p.reader.ResolveDisplayNames(ctx, ids)
	for i := range found {
		for j := range found[i].records {
			if name, ok := names[found[i].records[j].AccountID]; ok {
				found[i].records[j].DisplayName = name
			}
		}
	}
}

// newRecords keeps entries set at or after cutoff inside the window.
func newRecords(entries []leaderboard.Entry, cutoff time.Time, window int) []leaderboard.Entry {
	out := make([]leaderboard.Entry, 0)
	for _, e := range entries {
		if window > 0 && e.Position > window {
			continue
		}
		if e.Timestamp.IsZero() || e.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (p *PhaseProcessor) runDriver(ctx context.Context, msg job.Message, t config.Tunables) (string, int, error) {
	notifications, err := p.drivers.ListActiveByUser(ctx, msg.UserID)
	if err != nil {
		return "", 0, fmt.Errorf("list driver notifications: %w", err)
	}
	if len(notifications) == 0 {
		return "", 0, nil
	}

	mapUIDs := make([]string, 0, len(notifications))
	seen := make(map[string]struct{}, len(notifications))
	for _, n := range notifications {
		if _, ok := seen[n.MapUID]; ok {
			continue
		}
		seen[n.MapUID] = struct{}{}
		mapUIDs = append(mapUIDs, n.MapUID)
	}
	tops := p.reader.GetTopN(ctx, mapUIDs, p.cfg.GroupUID, t.TopN)

	now := p.now()
	var (
		lines    []string
		failures int
		lastErr  error
	)
	for _, n := range notifications {
		top, ok := tops[n.MapUID]
		if !ok {
			top = leaderboard.TopN{Err: fmt.Errorf("%w: no result for map %s", ErrDependencyUnavailable, n.MapUID)}
		}
		if top.Err != nil {
			failures++
			lastErr = top.Err
			p.logger.WarnContext(ctx, "top window unavailable, skipping notification",
				"notification_id", n.ID,
				"map_uid", n.MapUID,
				"error", top.Err,
			)
			continue
		}

		result := leaderboard.Diff(leaderboard.Watch{
			AccountID: n.TrackmaniaAccountID,
			Position:  n.CurrentPosition,
			Score:     n.PersonalBestScore,
		}, top.Entries, t.TopN)

		update := drivernotification.CheckUpdate{ID: n.ID, CheckedAt: now}
		switch result.Outcome {
		case leaderboard.OutcomeDroppedOut:
			update.Deactivate = true
		default:
			update.Position = result.NewPosition
			update.PersonalBestScore = result.NewScore
		}
		if err := p.drivers.ApplyCheck(ctx, update); err != nil {
			p.logger.ErrorContext(ctx, "update driver notification failed",
				"notification_id", n.ID,
				"outcome", result.Outcome,
				"error", err,
			)
		}

		if line := formatDriverLine(n, result, t.TopN); line != "" {
			lines = append(lines, line)
		}
	}

	if failures == len(notifications) {
		return "", 0, lastErr
	}
	return strings.Join(lines, "\n"), len(lines), nil
}
