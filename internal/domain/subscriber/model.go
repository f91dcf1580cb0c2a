package subscriber

import "context"

// Subscriber is a user with at least one mapper alert or active driver
// notification.
type Subscriber struct {
	UserID   string
	Username string
	Email    string
}

// Source lists the users the daily cycle fans out to. Rows without an email
// or username are excluded by the source.
type Source interface {
	FetchValidatedSubscribers(ctx context.Context) ([]Subscriber, error)
}
