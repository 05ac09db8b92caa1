package device

import (
	"context"
	"time"
)

// State history sources.
const (
	StateHistorySourceBridge = "bridge"
	StateHistorySourceSeed   = "seed"
)

// StateHistoryEntry is one recorded light state change.
type StateHistoryEntry struct {
	ID       int64  `json:"id"`
	DeviceID string `json:"device_id"`

	// State is the full state snapshot after the change.
	State State `json:"state"`

	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// StateHistoryRepository stores light state changes. Implementations must
// be safe for concurrent use.
type StateHistoryRepository interface {
	RecordStateChange(ctx context.Context, deviceID string, state State, source string) error

	// GetHistory returns at most limit entries, newest first.
	GetHistory(ctx context.Context, deviceID string, limit int) ([]StateHistoryEntry, error)
}
