package mapposition

import (
	"context"
	"time"
)

// MapPosition is the shared snapshot of the Nth-place entry on a map. Every
// watcher of the map compares against it before paying for a full fetch.
type MapPosition struct {
	MapUID      string
	Position    int
	Score       int64
	LastChecked time.Time
	// LastChanged is when Score last moved. Later watchers in the same
	// cycle use it to see that a change was already observed.
	LastChanged time.Time
}

// Changed reports whether a freshly probed score differs from the snapshot.
func (p MapPosition) Changed(position int, score int64) bool {
	return p.Position != position || p.Score != score
}

// Repository stores snapshots with last-writer-wins upserts.
type Repository interface {
	Get(ctx context.Context, mapUID string) (MapPosition, bool, error)
	Upsert(ctx context.Context, position MapPosition) error
}
