// Package properties provides a process-wide key/value store with per-key
// mutability flags. Failed operations are notifiable: constructing the error
// also posts an event describing it through the store's bound poster.
package properties

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/randalmurphal/eventdispatch/pkg/eventdispatch"
)

// Sentinel errors. Use errors.Is to test the kind of a returned error.
var (
	// ErrPropertyNotSet indicates a lookup of a property that was never set.
	ErrPropertyNotSet = errors.New("property not set")

	// ErrImmutableProperty indicates an attempt to modify a property that was
	// set without the mutable flag.
	ErrImmutableProperty = errors.New("immutable property modification")
)

// Event names posted when property operations fail.
const (
	propertyNotSetEvent        = "property_not_set"
	immutableModificationEvent = "immutable_property_modification"
)

// Poster receives the error events the store emits. *eventdispatch.Dispatch
// satisfies it.
type Poster interface {
	Post(name string, payload map[string]any, opts ...eventdispatch.PostOption) error
}

type property struct {
	value   any
	mutable bool
}

// Store holds named values with per-key mutability. Construct one per
// process and pass it where configuration is needed.
type Store struct {
	poster Poster

	mu    sync.RWMutex
	props map[string]property
}

// NewStore creates a store that posts error events through p.
// A nil poster disables the notification side effect.
func NewStore(p Poster) *Store {
	return &Store{
		poster: p,
		props:  make(map[string]property),
	}
}

// SetOption configures a Set call.
type SetOption func(*setOptions)

type setOptions struct {
	mutable      bool
	skipIfExists bool
}

// Mutable marks the property as modifiable by later Set calls.
func Mutable() SetOption {
	return func(o *setOptions) {
		o.mutable = true
	}
}

// SkipIfExists makes Set a silent no-op when the property already exists.
func SkipIfExists() SetOption {
	return func(o *setOptions) {
		o.skipIfExists = true
	}
}

// Set stores value under name. Properties default to immutable: overwriting
// one that was not set with Mutable fails with ErrImmutableProperty.
func (s *Store) Set(name string, value any, opts ...SetOption) error {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	existing, exists := s.props[name]
	if exists {
		if o.skipIfExists {
			s.mu.Unlock()
			return nil
		}
		if !existing.mutable {
			s.mu.Unlock()
			return s.immutableError(name, existing.value, value)
		}
		existing.value = value
		s.props[name] = existing
		s.mu.Unlock()
		return nil
	}
	s.props[name] = property{value: value, mutable: o.mutable}
	s.mu.Unlock()
	return nil
}

// Get returns the value stored under name.
// Fails with ErrPropertyNotSet when absent.
func (s *Store) Get(name string) (any, error) {
	s.mu.RLock()
	p, ok := s.props[name]
	s.mu.RUnlock()

	if !ok {
		return nil, s.notSetError(name)
	}
	return p.value, nil
}

// Has reports whether the property exists.
func (s *Store) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.props[name]
	return ok
}

// List returns the sorted names of all stored properties.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.props))
	for name := range s.props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Store) notSetError(name string) error {
	s.post(propertyNotSetEvent, map[string]any{
		"error":    propertyNotSetEvent,
		"message":  fmt.Sprintf("property %q has not been set", name),
		"property": name,
	})
	return fmt.Errorf("property %q: %w", name, ErrPropertyNotSet)
}

func (s *Store) immutableError(name string, current, attempted any) error {
	s.post(immutableModificationEvent, map[string]any{
		"error":           immutableModificationEvent,
		"message":         fmt.Sprintf("attempting to modify immutable property %q", name),
		"property":        name,
		"value":           current,
		"attempted_value": attempted,
	})
	return fmt.Errorf("property %q: %w", name, ErrImmutableProperty)
}

func (s *Store) post(name string, payload map[string]any) {
	if s.poster == nil {
		return
	}
	_ = s.poster.Post(name, payload)
}
