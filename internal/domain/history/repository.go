package history

import (
	"context"
	"time"
)

// Repository is the notification history ledger.
type Repository interface {
	// Begin inserts a processing row for entry's key. A processing row last
	// touched before staleBefore is taken over. Terminal rows are never
	// touched.
	Begin(ctx context.Context, entry Entry, staleBefore time.Time) (Entry, BeginOutcome, error)
	// Finalize moves a processing row to a terminal status. It reports false
	// when no processing row existed for key.
	Finalize(ctx context.Context, key Key, status Status, message string, recordsFound int) (bool, error)
	// Release deletes a processing row so a redelivery can claim it again.
	Release(ctx context.Context, key Key) error
	// MarkDeliveryFailed moves a sent row to technical_error.
	MarkDeliveryFailed(ctx context.Context, key Key, message string) (bool, error)
	Get(ctx context.Context, key Key) (Entry, bool, error)
	ListByDate(ctx context.Context, processingDate string) ([]Entry, error)
}
