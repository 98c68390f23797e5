// Package journal provides a durable diagnostic record of posted events.
//
// The journal is an audit trail, not a delivery mechanism: attaching a
// Recorder to a channel persists every posted event, but nothing is ever
// replayed or redelivered from it. The bounded in-memory event log on each
// channel answers "what just happened"; the journal answers "what happened
// yesterday".
package journal

import (
	"context"
	"errors"
	"time"
)

// Record is one journaled event.
type Record struct {
	// EventID is the process-wide event id of the posted event.
	EventID int64 `json:"event_id"`

	// Channel is the name of the channel the event was posted on.
	Channel string `json:"channel"`

	// Name is the event name.
	Name string `json:"name"`

	// Payload is the event payload serialized as JSON.
	Payload []byte `json:"payload"`

	// Time is the event creation timestamp.
	Time time.Time `json:"time"`
}

// Filter selects records to list.
type Filter struct {
	// Name filters by event name. Empty matches all.
	Name string

	// Limit is the maximum number of records. 0 means unlimited.
	Limit int
}

// Store persists journal records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append persists one record.
	Append(ctx context.Context, rec *Record) error

	// List returns records matching the filter, oldest first.
	List(ctx context.Context, filter Filter) ([]*Record, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Close releases the store's resources.
	Close() error
}

// ErrStoreClosed is returned for operations on a closed store.
var ErrStoreClosed = errors.New("journal store closed")
