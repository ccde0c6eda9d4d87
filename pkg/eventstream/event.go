// Package eventstream defines the transport-neutral events the sync engine
// emits and the Publisher interface backends implement.
package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeCommitted is emitted after an item is durably committed.
	EventTypeCommitted = "strata.memory.committed"

	// EventTypeSuperseded is emitted when a sync task is discarded because the
	// durable tier already held a newer version.
	EventTypeSuperseded = "strata.memory.superseded"

	// EventTypeDeadLettered is emitted when a sync task exhausts its retries.
	EventTypeDeadLettered = "strata.memory.deadlettered"
)

// MemoryEvent is a transport-neutral event payload for a sync outcome.
type MemoryEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	Item          ItemMeta    `json:"item"`
	Sync          SyncMeta    `json:"sync"`
}

// EventSource identifies the process that emitted the event.
type EventSource struct {
	Instance string `json:"instance,omitempty"`
	Hostname string `json:"hostname,omitempty"`
}

// ItemMeta identifies the memory item. Payloads are never published.
type ItemMeta struct {
	Key       string `json:"key"`
	Namespace string `json:"namespace"`
	Version   uint64 `json:"version"`
	Checksum  string `json:"checksum"`
}

// SyncMeta captures the sync attempt that produced the event.
type SyncMeta struct {
	Attempts       int    `json:"attempts"`
	DurableVersion uint64 `json:"durable_version,omitempty"`
	RawBytes       int    `json:"raw_bytes,omitempty"`
	StoredBytes    int    `json:"stored_bytes,omitempty"`
	Error          string `json:"error,omitempty"`
}

// NewEvent stamps a new event of the given type.
func NewEvent(eventType string, source EventSource, item ItemMeta, sync SyncMeta) *MemoryEvent {
	return &MemoryEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		Item:          item,
		Sync:          sync,
	}
}
