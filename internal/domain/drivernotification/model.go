package drivernotification

import "time"

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// DriverNotification watches one user's rank on one map. At most one exists
// per (user, map). Once inactive it stays inactive until the user creates a
// new one.
type DriverNotification struct {
	ID                  int64
	UserID              string
	MapUID              string
	MapName             string
	TrackmaniaAccountID string
	CurrentPosition     int
	PersonalBestScore   int64
	Status              Status
	CreatedAt           time.Time
	LastChecked         time.Time
}

func (n DriverNotification) Active() bool {
	return n.Status == StatusActive
}

// CheckUpdate is the result of one check written back to the row.
type CheckUpdate struct {
	ID                int64
	Deactivate        bool
	Position          int
	PersonalBestScore int64
	CheckedAt         time.Time
}
