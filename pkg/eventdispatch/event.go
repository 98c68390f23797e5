package eventdispatch

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// eventID is the process-wide event id counter. Ids are never reused and
// never decrease; the atomic increment is the only serialization point.
var eventID atomic.Int64

// Name is a namespaced event identifier. Its canonical string form is
// "<namespace>.<value>", or the bare value when no namespace is set.
// The dispatch boundary itself works on plain strings; Name exists so
// consumers can declare their event names as typed constants.
//
//	var StepDone = eventdispatch.Name{Namespace: "worker", Value: "step_done"}
//	d.Post(StepDone.String(), nil)
type Name struct {
	Namespace string
	Value     string
}

// String renders the canonical dotted form.
func (n Name) String() string {
	if n.Namespace == "" {
		return n.Value
	}
	return n.Namespace + "." + n.Value
}

// Administrative event names emitted by the dispatch and correlation engines.
var (
	// HandlerRegistered is posted after a net registration change.
	HandlerRegistered = Name{Namespace: "event_dispatch", Value: "handler_registered"}

	// HandlerUnregistered is posted after a net unregistration change.
	HandlerUnregistered = Name{Namespace: "event_dispatch", Value: "handler_unregistered"}

	// MappingCreated is posted when a new event map is stored.
	MappingCreated = Name{Namespace: "event_map", Value: "mapping_created"}

	// MappingTriggered is posted when an event map's watch set empties.
	MappingTriggered = Name{Namespace: "event_map", Value: "mapping_triggered"}

	// MappingRemoved is posted when an event map is removed from its manager.
	MappingRemoved = Name{Namespace: "event_map", Value: "mapping_removed"}
)

// Event is an immutable record of a posted occurrence. Two events are the
// same occurrence exactly when their ids are equal.
type Event struct {
	id      int64
	time    time.Time
	name    string
	payload map[string]any
}

// NewEvent creates an event with a fresh id and timestamp.
// Fails with ErrInvalidEvent if name is empty. A nil payload is normalized
// to an empty map; the payload is shallow-copied so later mutation of the
// caller's map does not leak into the event.
func NewEvent(name string, payload map[string]any) (*Event, error) {
	if name == "" {
		return nil, newInvalidEventError(nil, []string{name})
	}
	return newEvent(name, payload), nil
}

// newEvent constructs an event from an already-validated name.
func newEvent(name string, payload map[string]any) *Event {
	copied := make(map[string]any, len(payload))
	for k, v := range payload {
		copied[k] = v
	}
	return &Event{
		id:      eventID.Add(1),
		time:    time.Now(),
		name:    name,
		payload: copied,
	}
}

// FromMap reconstructs an event from its serialized form (name + payload).
// The result receives a new id and timestamp; identity is never preserved
// across serialization.
func FromMap(m map[string]any) (*Event, error) {
	name, _ := m["name"].(string)
	payload, _ := m["payload"].(map[string]any)
	return NewEvent(name, payload)
}

// ID returns the process-wide monotonic event id.
func (e *Event) ID() int64 { return e.id }

// Time returns the creation timestamp.
func (e *Event) Time() time.Time { return e.time }

// Name returns the canonical event name.
func (e *Event) Name() string { return e.name }

// Payload returns the event payload.
// The returned map must not be modified.
func (e *Event) Payload() map[string]any { return e.payload }

// Equal reports whether other is the same occurrence, by id.
func (e *Event) Equal(other *Event) bool {
	return other != nil && e.id == other.id
}

// Map returns the serialized form of the event.
func (e *Event) Map() map[string]any {
	return map[string]any{
		"id":      e.id,
		"time":    e.time,
		"name":    e.name,
		"payload": e.payload,
	}
}

// MarshalJSON implements json.Marshaler using the serialized form.
func (e *Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Map())
}
