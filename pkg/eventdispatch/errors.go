package eventdispatch

import (
	"errors"
	"fmt"
)

// Sentinel errors for the notifiable error taxonomy. Use errors.Is to test
// the kind of a returned error.
var (
	// ErrInvalidData indicates a Data container was built from a nil map.
	ErrInvalidData = errors.New("invalid data")

	// ErrMissingKey indicates a lookup by key found no entry.
	ErrMissingKey = errors.New("missing key")

	// ErrInvalidEvent indicates an empty event name, or a registration naming
	// the all-events sentinel or an empty name explicitly.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrInvalidMappingEvents indicates event-map creation with an empty
	// watch list or no event to post.
	ErrInvalidMappingEvents = errors.New("invalid mapping events")

	// ErrDuplicateMapping indicates a correlation key collision.
	ErrDuplicateMapping = errors.New("duplicate mapping")

	// ErrMappingNotFound indicates removal or lookup by an unknown
	// correlation key.
	ErrMappingNotFound = errors.New("mapping not found")
)

// Error kind strings. Each doubles as the name of the event posted when the
// error is constructed.
const (
	kindInvalidData          = "invalid_data"
	kindMissingKey           = "missing_key"
	kindInvalidEvent         = "invalid_event"
	kindInvalidMappingEvents = "invalid_mapping_events"
	kindDuplicateMapping     = "duplicate_mapping"
	kindMappingNotFound      = "mapping_not_found"
)

// poster is the slice of Dispatch that notifiable errors need.
type poster interface {
	Post(name string, payload map[string]any, opts ...PostOption) error
}

// NotifiableError is an error whose construction also posts an event named
// after the error kind. The event payload contains at least "error" (the
// kind) and, when available, a human-readable "message". Posting is a side
// effect in addition to returning the error to the caller, never instead
// of it.
type NotifiableError struct {
	// Kind is the machine-readable error kind, e.g. "duplicate_mapping".
	Kind string

	// Message is the human-readable description, may be empty.
	Message string

	// Payload is the event payload that was posted.
	Payload map[string]any

	sentinel error
}

// Error implements the error interface.
func (e *NotifiableError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Kind
}

// Unwrap returns the kind sentinel for errors.Is support.
func (e *NotifiableError) Unwrap() error {
	return e.sentinel
}

// newNotifiableError builds the error and posts its event on p, falling back
// to the default channel when p is nil. The post is fire-and-forget; a
// failure to notify never masks the original error.
func newNotifiableError(p poster, sentinel error, kind, message string, payload map[string]any) *NotifiableError {
	if payload == nil {
		payload = make(map[string]any)
	}
	if _, ok := payload["error"]; !ok {
		payload["error"] = kind
	}
	if message != "" {
		payload["message"] = message
	}

	if p == nil {
		p = Default().Default()
	}
	_ = p.Post(kind, payload)

	return &NotifiableError{
		Kind:     kind,
		Message:  message,
		Payload:  payload,
		sentinel: sentinel,
	}
}

func newInvalidDataError(p poster) *NotifiableError {
	return newNotifiableError(p, ErrInvalidData, kindInvalidData,
		"cannot create data object from nil input", nil)
}

func newMissingKeyError(p poster, key string, data map[string]any) *NotifiableError {
	return newNotifiableError(p, ErrMissingKey, kindMissingKey,
		fmt.Sprintf("could not find key %q within data", key),
		map[string]any{
			"key":  key,
			"data": data,
		})
}

func newInvalidEventError(p poster, names []string) *NotifiableError {
	return newNotifiableError(p, ErrInvalidEvent, kindInvalidEvent,
		"invalid event name(s)",
		map[string]any{
			"events": names,
		})
}

func newInvalidMappingEventsError(p poster, eventsToMap []*Event, eventToPost *Event) *NotifiableError {
	return newNotifiableError(p, ErrInvalidMappingEvents, kindInvalidMappingEvents,
		"invalid events provided for event mapping",
		mappingPayload(eventsToMap, eventToPost))
}

func newDuplicateMappingError(p poster, eventsToMap []*Event, eventToPost *Event) *NotifiableError {
	return newNotifiableError(p, ErrDuplicateMapping, kindDuplicateMapping,
		"mapping for events provided already exists",
		mappingPayload(eventsToMap, eventToPost))
}

func newMappingNotFoundError(p poster, key string) *NotifiableError {
	return newNotifiableError(p, ErrMappingNotFound, kindMappingNotFound,
		fmt.Sprintf("mapping not found for key %q", key),
		map[string]any{
			"key": key,
		})
}
