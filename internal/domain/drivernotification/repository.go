package drivernotification

import "context"

// Repository exposes driver notification persistence.
//
// ApplyCheck always advances last_checked (never backwards). With Deactivate
// set it moves the row to inactive and leaves position/score untouched;
// otherwise it overwrites position/score. It never reactivates a row.
type Repository interface {
	ListActiveByUser(ctx context.Context, userID string) ([]DriverNotification, error)
	ApplyCheck(ctx context.Context, update CheckUpdate) error
}
