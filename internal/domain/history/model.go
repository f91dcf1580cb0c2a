package history

import "time"

// DateLayout is the calendar-day key used across the pipeline (UTC).
const DateLayout = "2006-01-02"

type Type string

const (
	TypeMapperAlert        Type = "mapper_alert"
	TypeDriverNotification Type = "driver_notification"
)

type Status string

const (
	StatusProcessing     Status = "processing"
	StatusSent           Status = "sent"
	StatusNoNewTimes     Status = "no_new_times"
	StatusTechnicalError Status = "technical_error"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusSent, StatusNoNewTimes, StatusTechnicalError:
		return true
	default:
		return false
	}
}

// Key identifies the single logical row per user, type and day.
type Key struct {
	UserID         string
	Type           Type
	ProcessingDate string
}

type Entry struct {
	ID             int64
	UserID         string
	Username       string
	Type           Type
	Status         Status
	Message        string
	RecordsFound   int
	ProcessingDate string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (e Entry) Key() Key {
	return Key{UserID: e.UserID, Type: e.Type, ProcessingDate: e.ProcessingDate}
}

// BeginOutcome is the result of trying to claim a key for processing.
type BeginOutcome string

const (
	// BeginClaimed: the caller owns a processing row and must finalize or
	// release it.
	BeginClaimed BeginOutcome = "claimed"
	// BeginAlreadyTerminal: the key was finished earlier that day.
	BeginAlreadyTerminal BeginOutcome = "already_terminal"
	// BeginInFlight: another worker holds a fresh processing row.
	BeginInFlight BeginOutcome = "in_flight"
)

// DateOf formats t as a processing date.
func DateOf(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
