package storage

import (
	"time"

	"github.com/google/uuid"
)

// Session describes one persisted fetch session.
type Session struct {
	ID           uuid.UUID
	Network      string
	WindowStart  time.Time
	WindowEnd    time.Time
	Cursor       int64
	SnapshotRows int
	RateRows     int
	CreatedAt    time.Time
}
