package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/riskibarqy/tm-alerts/internal/domain/drivernotification"
	"github.com/riskibarqy/tm-alerts/internal/domain/leaderboard"
)

// Operator-safe History messages. Raw error text is only logged.
const (
	msgAuthFailed       = "leaderboard authentication failed"
	msgRateLimited      = "leaderboard rate limited"
	msgUnavailable      = "leaderboard temporarily unavailable"
	msgInvalidInput     = "invalid job input"
	msgNotFound         = "requested resource not found"
	msgTimedOut         = "processing timed out"
	msgInternal         = "internal processing error"
	msgDeliveryFailed   = "email delivery failed"
	msgAllMapsFailed    = "no map could be checked"
	msgMissingRecipient = "no email address on file"
)

// failureMessage maps err onto one of a fixed set of messages.
func failureMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return msgAuthFailed
	case errors.Is(err, ErrRateLimited):
		return msgRateLimited
	case errors.Is(err, ErrDependencyUnavailable):
		return msgUnavailable
	case errors.Is(err, ErrInvalidInput):
		return msgInvalidInput
	case errors.Is(err, ErrNotFound):
		return msgNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return msgTimedOut
	default:
		return msgInternal
	}
}

// formatRaceTime renders milliseconds as m:ss.mmm.
func formatRaceTime(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	minutes := ms / 60000
	seconds := (ms % 60000) / 1000
	millis := ms % 1000
	return fmt.Sprintf("%d:%02d.%03d", minutes, seconds, millis)
}

// formatMapperBlock lists a map's new records, at most limit of them, with
// a "+N more" line for the rest.
func formatMapperBlock(mapName string, records []leaderboard.Entry, limit int) string {
	var b strings.Builder
	noun := "records"
	if len(records) == 1 {
		noun = "record"
	}
	fmt.Fprintf(&b, "%s: %d new %s", mapName, len(records), noun)

	shown := records
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, r := range shown {
		fmt.Fprintf(&b, "\n  #%d %s %s", r.Position, playerLabel(r), formatRaceTime(r.Score))
	}
	if hidden := len(records) - len(shown); hidden > 0 {
		fmt.Fprintf(&b, "\n  +%d more", hidden)
	}
	return b.String()
}

func playerLabel(e leaderboard.Entry) string {
	if name := strings.TrimSpace(e.DisplayName); name != "" {
		return name
	}
	if len(e.AccountID) > 8 {
		return e.AccountID[:8]
	}
	return e.AccountID
}

func formatDriverLine(n drivernotification.DriverNotification, result leaderboard.DiffResult, topN int) string {
	name := mapLabel(n.MapName, n.MapUID)
	switch result.Outcome {
	case leaderboard.OutcomeDroppedOut:
		return fmt.Sprintf("%s: dropped out of the top %d (was #%d)", name, topN, n.CurrentPosition)
	case leaderboard.OutcomePositionChanged:
		return fmt.Sprintf("%s: position changed from #%d to #%d (%s)", name, n.CurrentPosition, result.NewPosition, formatRaceTime(result.NewScore))
	default:
		return ""
	}
}

func mapLabel(name, uid string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	return uid
}
