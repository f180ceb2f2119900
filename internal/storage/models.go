package storage

import "time"

// Observation is one persisted balance reading. DateTime is unique across
// the table and is the observation identity; CreatedAt records insert time.
type Observation struct {
	ID                  int64
	RemainingPercentage int
	RemainingDataMB     int
	DateTime            time.Time
	CreatedAt           time.Time
}
