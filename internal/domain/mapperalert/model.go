package mapperalert

import "time"

type AlertType string

const (
	AlertTypeAccurate   AlertType = "accurate"
	AlertTypeInaccurate AlertType = "inaccurate"
)

type RecordFilter string

const (
	RecordFilterTop5 RecordFilter = "top5"
	RecordFilterWR   RecordFilter = "wr"
	RecordFilterAll  RecordFilter = "all"
)

func (f RecordFilter) Valid() bool {
	switch f {
	case RecordFilterTop5, RecordFilterWR, RecordFilterAll:
		return true
	default:
		return false
	}
}

// Window is the number of leaderboard rows the filter looks at. Zero means
// the whole leaderboard.
func (f RecordFilter) Window() int {
	switch f {
	case RecordFilterWR:
		return 1
	case RecordFilterTop5:
		return 5
	default:
		return 0
	}
}

// MapperAlert is a map author's subscription to new times on their maps.
type MapperAlert struct {
	ID                 int64
	UserID             string
	TrackmaniaUsername string
	Email              string
	AlertType          AlertType
	RecordFilter       RecordFilter
	MapCount           int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ModeFor picks the fetch strategy: alerts watching more maps than
// threshold use the shared MapPosition cache.
func (a MapperAlert) ModeFor(threshold int) AlertType {
	if a.MapCount > threshold {
		return AlertTypeInaccurate
	}
	return AlertTypeAccurate
}

type AlertMap struct {
	AlertID int64
	MapUID  string
	MapName string
}
