package jobscheduler

import "context"

type Repository interface {
	UpsertEvent(ctx context.Context, event DispatchEvent) error
	ListByDate(ctx context.Context, processingDate string) ([]DispatchEvent, error)
}
