package leaderboard

// Outcome is the semantic change for a watched account on one map.
type Outcome string

const (
	OutcomeUnchanged       Outcome = "unchanged"
	OutcomePositionChanged Outcome = "position_changed"
	OutcomeDroppedOut      Outcome = "dropped_out"
)

// Watch is the stored state of a watched account.
type Watch struct {
	AccountID string
	Position  int
	Score     int64
}

// DiffResult carries the outcome. NewPosition and NewScore are set for
// unchanged and position_changed.
type DiffResult struct {
	Outcome     Outcome
	NewPosition int
	NewScore    int64
}

// Diff compares a watch against the current top window. Entries ranked
// beyond n are ignored when n > 0. Ranks from the API are authoritative and
// the score never triggers a change.
func Diff(w Watch, current []Entry, n int) DiffResult {
	for _, e := range current {
		if e.AccountID != w.AccountID {
			continue
		}
		if n > 0 && e.Position > n {
			break
		}
		if e.Position == w.Position {
			return DiffResult{Outcome: OutcomeUnchanged, NewPosition: e.Position, NewScore: e.Score}
		}
		return DiffResult{Outcome: OutcomePositionChanged, NewPosition: e.Position, NewScore: e.Score}
	}
	return DiffResult{Outcome: OutcomeDroppedOut}
}
