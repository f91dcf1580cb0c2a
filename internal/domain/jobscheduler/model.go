package jobscheduler

import "time"

type DispatchStatus string

const (
	StatusSent         DispatchStatus = "sent"
	StatusCompleted    DispatchStatus = "completed"
	StatusFailed       DispatchStatus = "failed"
	StatusDeadLettered DispatchStatus = "dead_lettered"
)

// DispatchEvent is one step in a queued job's life, keyed by DispatchID
// (the job's dedup key).
type DispatchEvent struct {
	DispatchID     string
	JobName        string
	JobPath        string
	UserID         string
	Phase          int
	ProcessingDate string
	Status         DispatchStatus
	Payload        map[string]any
	ErrorMessage   string
	OccurredAt     time.Time
	TraceID        string
	SpanID         string
}
