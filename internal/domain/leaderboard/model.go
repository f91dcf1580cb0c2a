package leaderboard

import (
	"context"
	"time"
)

// Entry is one ranked record. Score is a race time in milliseconds.
type Entry struct {
	AccountID   string
	Position    int
	Score       int64
	Timestamp   time.Time
	Zone        string
	DisplayName string
}

// Query selects a slice of one map's leaderboard. Length 0 drains the whole
// leaderboard up to the client's page cap.
type Query struct {
	MapUID string
	Group  string
	Offset int
	Length int
}

// TopN is one map's top window or the error that prevented fetching it.
type TopN struct {
	Entries []Entry
	Err     error
}

// Reader is the leaderboard API as seen by the pipeline.
type Reader interface {
	GetLeaderboard(ctx context.Context, q Query) ([]Entry, error)
	GetTopN(ctx context.Context, mapUIDs []string, group string, n int) map[string]TopN
	ResolveDisplayNames(ctx context.Context, accountIDs []string) map[string]string
}
