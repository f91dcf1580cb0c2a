package resilience

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RequestSpacer admits at most one call per interval across all callers.
// A nil *RequestSpacer never waits.
type RequestSpacer struct {
	limiter *rate.Limiter
}

func NewRequestSpacer(interval time.Duration) *RequestSpacer {
	if interval <= 0 {
		return nil
	}
	return &RequestSpacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next slot or until ctx is done.
func (s *RequestSpacer) Wait(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}
