package pendingemail

import (
	"context"
	"time"

	"github.com/riskibarqy/tm-alerts/internal/domain/history"
)

// PendingEmail accumulates both phases' output for one user and day until
// the composer claims it.
type PendingEmail struct {
	UserID         string
	Username       string
	Email          string
	ProcessingDate string
	MapperText     string
	DriverText     string
	MapperDone     bool
	DriverDone     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Ready reports whether both phases have reported.
func (p PendingEmail) Ready() bool {
	return p.MapperDone && p.DriverDone
}

func (p PendingEmail) Empty() bool {
	return p.MapperText == "" && p.DriverText == ""
}

// Contribution is one phase's report. Text may be empty; the phase is
// still marked done.
type Contribution struct {
	UserID         string
	Username       string
	Email          string
	ProcessingDate string
	Type           history.Type
	Text           string
}

// Repository stores accumulators keyed by (user, date).
type Repository interface {
	// Contribute creates the row if needed, marks the phase done and sets
	// its section when Text is non-empty.
	Contribute(ctx context.Context, c Contribution) (PendingEmail, error)
	// Claim removes and returns the row. Only one caller gets ok=true.
	Claim(ctx context.Context, userID, processingDate string) (PendingEmail, bool, error)
	// ListCreatedBefore returns unclaimed rows older than cutoff.
	ListCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]PendingEmail, error)
}
