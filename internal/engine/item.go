package engine

import (
	"time"

	"github.com/mdouchement/writersync/pkg/libsync"
)

// A Status is the synchronization state of a local item.
type Status string

// Local item statuses.
const (
	StatusPending  Status = "pending"
	StatusSynced   Status = "synced"
	StatusConflict Status = "conflict"
)

type (
	// An Item is a local record that can be synchronized.
	// Payload holds the plaintext fields; it is encrypted as a whole before leaving the device.
	Item struct {
		LocalID   int64
		RemoteID  string
		Type      string
		Payload   map[string]any
		CreatedAt time.Time
		UpdatedAt time.Time
		Status    Status
		Deleted   bool
	}

	// A Snapshot is one side of a conflict.
	Snapshot struct {
		ID        string         `json:"id,omitempty"`
		Data      map[string]any `json:"data"`
		UpdatedAt string         `json:"updated_at"`
	}

	// A Conflict is an optimistic concurrency failure waiting for a manual resolution.
	Conflict struct {
		ItemType   string
		LocalID    int64
		Local      Snapshot
		Server     Snapshot
		DetectedAt int64 // Unix milliseconds
	}
)

// Empty returns true if the snapshot carries no data.
func (s Snapshot) Empty() bool {
	return len(s.Data) == 0
}

// DetectedTime returns the detection date of the conflict.
func (c Conflict) DetectedTime() time.Time {
	return libsync.FromUnixMillisecond(c.DetectedAt)
}

// String returns the payload value for key, or an empty string.
func (i Item) String(key string) string {
	return stringOf(i.Payload, key)
}

func stringOf(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func copyPayload(m map[string]any) map[string]any {
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
