package eventdispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/randalmurphal/eventdispatch/pkg/eventdispatch/observability"
)

// EventMap is one pending correlation: a shrinking watch set of event names
// (each with an optional expected payload subset) and a single composite
// event to post once every watched event has occurred.
//
// Lifecycle: Active (watch set non-empty) -> Satisfied (watch set empty,
// composite posted, self-unregistered). Satisfied is terminal.
type EventMap struct {
	d           *Dispatch
	key         string
	eventsToMap []*Event
	eventToPost *Event
	mappedNames []string

	mu        sync.Mutex
	watch     map[string]map[string]any
	satisfied bool

	reg *Registration
}

// newEventMap validates inputs, builds the watch set and registers a handler
// for exactly the watched names.
func newEventMap(d *Dispatch, eventsToMap []*Event, eventToPost *Event, key string) (*EventMap, error) {
	if len(eventsToMap) == 0 || eventToPost == nil || anyNilEvent(eventsToMap) {
		return nil, newInvalidMappingEventsError(d, eventsToMap, eventToPost)
	}

	m := &EventMap{
		d:           d,
		key:         key,
		eventsToMap: eventsToMap,
		eventToPost: eventToPost,
		watch:       make(map[string]map[string]any, len(eventsToMap)),
	}
	for _, evt := range eventsToMap {
		m.watch[evt.Name()] = evt.Payload()
		m.mappedNames = append(m.mappedNames, evt.Name())
	}

	reg, err := d.Register(HandlerFunc(m.onEvent), m.mappedNames...)
	if err != nil {
		return nil, err
	}
	m.reg = reg

	return m, nil
}

// Key returns the correlation key this map is stored under.
func (m *EventMap) Key() string { return m.key }

// EventsToMap returns the watched events as supplied at construction.
func (m *EventMap) EventsToMap() []*Event { return m.eventsToMap }

// EventToPost returns the composite event posted when the map fires.
func (m *EventMap) EventToPost() *Event { return m.eventToPost }

// Watch returns a copy of the still-unmatched watch set: watched event name
// to the expected payload subset for it.
func (m *EventMap) Watch() map[string]map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := make(map[string]map[string]any, len(m.watch))
	for name, expected := range m.watch {
		view[name] = expected
	}
	return view
}

// Satisfied reports whether the map has fired.
func (m *EventMap) Satisfied() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.satisfied
}

// onEvent consumes one posted event. A name not in the watch set is ignored,
// covering both "never watched" and "already matched". Payload matching is
// contains-at-least: every expected key must be present in the incoming
// payload with an equal value; extra keys are irrelevant; any mismatch
// leaves the watch set untouched. A match removes the name permanently.
func (m *EventMap) onEvent(_ context.Context, evt *Event) error {
	m.mu.Lock()
	expected, ok := m.watch[evt.Name()]
	if !ok {
		m.mu.Unlock()
		return nil
	}

	payload := evt.Payload()
	for k, want := range expected {
		got, present := payload[k]
		if !present || !reflect.DeepEqual(got, want) {
			m.mu.Unlock()
			return nil
		}
	}

	delete(m.watch, evt.Name())
	fired := len(m.watch) == 0
	if fired {
		m.satisfied = true
	}
	m.mu.Unlock()

	if fired {
		// Post the composite exactly as specified at construction; incoming
		// payloads are never merged in.
		_ = m.d.Post(m.eventToPost.Name(), m.eventToPost.Payload())
		m.stop()
	}
	return nil
}

// stop unregisters the map's handler from every originally watched name and
// announces mapping_triggered so the owning manager drops the map.
func (m *EventMap) stop() {
	_ = m.d.Unregister(m.reg, m.mappedNames...)
	_ = m.d.Post(MappingTriggered.String(), map[string]any{"key": m.key})
	observability.LogMappingTriggered(m.d.cfg.Logger, m.d.name, m.key)
}

// EventMapManager owns the live event maps of one channel, keyed by
// correlation key. It registers itself for mapping_triggered and
// garbage-collects a map once it fires.
type EventMapManager struct {
	d *Dispatch

	mu   sync.Mutex
	maps map[string]*EventMap

	reg *Registration
}

// NewEventMapManager creates a manager bound to d and registers it for the
// mapping_triggered administrative event.
func NewEventMapManager(d *Dispatch) *EventMapManager {
	mm := &EventMapManager{
		d:    d,
		maps: make(map[string]*EventMap),
	}
	mm.reg, _ = d.Register(HandlerFunc(mm.onEvent), MappingTriggered.String())
	return mm
}

// MapEvents creates an event map that posts eventToPost once every event in
// eventsToMap has occurred, and returns its correlation key.
//
// The key is derived from the watched events only, independent of the order
// they are supplied in. If a map with the same key already exists the call
// fails with ErrDuplicateMapping; with ignoreIfExists it instead returns the
// existing key untouched (no new map, no event posted).
func (mm *EventMapManager) MapEvents(eventsToMap []*Event, eventToPost *Event, ignoreIfExists bool) (string, error) {
	if len(eventsToMap) == 0 || eventToPost == nil {
		return "", newInvalidMappingEventsError(mm.d, eventsToMap, eventToPost)
	}

	key := BuildKey(eventsToMap)

	mm.mu.Lock()
	if _, exists := mm.maps[key]; exists {
		mm.mu.Unlock()
		if ignoreIfExists {
			observability.LogMappingIgnored(mm.d.cfg.Logger, mm.d.name, key)
			return key, nil
		}
		return "", newDuplicateMappingError(mm.d, eventsToMap, eventToPost)
	}

	em, err := newEventMap(mm.d, eventsToMap, eventToPost, key)
	if err != nil {
		mm.mu.Unlock()
		return "", err
	}
	mm.maps[key] = em
	count := len(mm.maps)
	mm.mu.Unlock()

	_ = mm.d.Post(MappingCreated.String(), mappingPayload(eventsToMap, eventToPost))
	mm.d.cfg.Metrics.RecordActiveMaps(context.Background(), mm.d.name, count)
	observability.LogMappingCreated(mm.d.cfg.Logger, mm.d.name, key, em.mappedNames)

	return key, nil
}

// RemoveByKey removes the map stored under key and posts mapping_removed
// with the sanitized mapping payload. Fails with ErrMappingNotFound when the
// key is absent.
func (mm *EventMapManager) RemoveByKey(key string) error {
	mm.mu.Lock()
	em, ok := mm.maps[key]
	if !ok {
		mm.mu.Unlock()
		return newMappingNotFoundError(mm.d, key)
	}
	delete(mm.maps, key)
	count := len(mm.maps)
	mm.mu.Unlock()

	_ = mm.d.Post(MappingRemoved.String(), mappingPayload(em.eventsToMap, em.eventToPost))
	mm.d.cfg.Metrics.RecordActiveMaps(context.Background(), mm.d.name, count)
	observability.LogMappingRemoved(mm.d.cfg.Logger, mm.d.name, key)
	return nil
}

// EventMaps returns a snapshot of the live maps by correlation key.
func (mm *EventMapManager) EventMaps() map[string]*EventMap {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	view := make(map[string]*EventMap, len(mm.maps))
	for key, em := range mm.maps {
		view[key] = em
	}
	return view
}

// onEvent reacts to mapping_triggered: the satisfied map is dropped from the
// table. Unlike direct RemoveByKey calls, absence is tolerated here, since
// the map may already have been removed explicitly.
func (mm *EventMapManager) onEvent(_ context.Context, evt *Event) error {
	if evt.Name() != MappingTriggered.String() {
		return nil
	}
	key, _ := evt.Payload()["key"].(string)
	if err := mm.RemoveByKey(key); err != nil && !errors.Is(err, ErrMappingNotFound) {
		return err
	}
	return nil
}

// Unregister detaches the manager from mapping_triggered. Used when a
// channel replaces its manager.
func (mm *EventMapManager) Unregister() {
	_ = mm.d.Unregister(mm.reg, MappingTriggered.String())
}

// BuildKey computes the deterministic correlation key for a set of watched
// events: sort the events by name (stable lexicographic), comma-join the
// sorted names, comma-join each event's payload serialized as canonical JSON
// (map keys sorted), concatenate both strings and return the lowercase hex
// SHA-256 of the UTF-8 bytes. The key is invariant to watch-list order and
// sensitive to payload content and key set.
func BuildKey(eventsToMap []*Event) string {
	sorted := append([]*Event(nil), eventsToMap...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name() < sorted[j].Name()
	})

	names := make([]string, len(sorted))
	payloads := make([]string, len(sorted))
	for i, evt := range sorted {
		names[i] = evt.Name()
		// encoding/json sorts map keys, which is exactly the canonical form
		// the key needs.
		b, _ := json.Marshal(evt.Payload())
		payloads[i] = string(b)
	}

	sum := sha256.Sum256([]byte(strings.Join(names, ",") + strings.Join(payloads, ",")))
	return hex.EncodeToString(sum[:])
}

// mappingPayload builds the sanitized mapping view used by administrative
// events and mapping errors: name + payload only, identity and time
// stripped.
func mappingPayload(eventsToMap []*Event, eventToPost *Event) map[string]any {
	var watched []map[string]any
	for _, evt := range eventsToMap {
		if evt == nil {
			continue
		}
		watched = append(watched, map[string]any{
			"name":    evt.Name(),
			"payload": evt.Payload(),
		})
	}

	var post map[string]any
	if eventToPost != nil {
		post = map[string]any{
			"name":    eventToPost.Name(),
			"payload": eventToPost.Payload(),
		}
	}

	return map[string]any{
		"events_to_map": watched,
		"event_to_post": post,
	}
}

func anyNilEvent(events []*Event) bool {
	for _, evt := range events {
		if evt == nil {
			return true
		}
	}
	return false
}
