package eventdispatch

import (
	"sort"
	"sync"

	"github.com/randalmurphal/eventdispatch/pkg/eventdispatch/config"
)

// ManagerConfig configures a Manager and the channels it creates.
type ManagerConfig struct {
	// Dispatch is applied to every channel the manager creates.
	Dispatch DispatchConfig
}

// Manager owns a set of independently dispatching named channels. The
// default channel (empty name) always exists and is created eagerly; other
// channels are added and removed explicitly by unique name. There is no
// cross-channel delivery.
//
// Construct one Manager per process and pass it where dispatching is needed;
// the package-level Default manager exists for code that wants the
// conventional single instance.
type Manager struct {
	cfg ManagerConfig

	mu       sync.RWMutex
	channels map[string]*Dispatch
}

// NewManager creates a manager with its default channel already running.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		cfg:      cfg,
		channels: make(map[string]*Dispatch),
	}
	m.channels[""] = NewDispatch("", cfg.Dispatch)
	return m
}

// NewManagerFromConfig builds a manager from file-backed configuration.
// Recognized keys: event_log_size, max_concurrent_deliveries, log_events,
// log_events_without_handlers, channels (list of extra channel names).
func NewManagerFromConfig(cfg config.Config) *Manager {
	m := NewManager(ManagerConfig{
		Dispatch: DispatchConfig{
			EventLogSize:  cfg.Int("event_log_size", DefaultEventLogSize),
			MaxConcurrent: cfg.Int("max_concurrent_deliveries", 0),
		},
	})

	if cfg.Bool("log_events", false) {
		m.Default().ToggleEventLogging(true)
	}
	if cfg.Bool("log_events_without_handlers", false) {
		m.Default().SetLogEventIfNoHandlers(true)
	}
	for _, name := range cfg.StringSlice("channels", nil) {
		m.AddChannel(name)
	}
	return m
}

// Default returns the default channel.
func (m *Manager) Default() *Dispatch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.channels[""]
}

// Channel returns the channel with the given name.
func (m *Manager) Channel(name string) (*Dispatch, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.channels[name]
	return d, ok
}

// AddChannel creates a channel under name. Returns false, without error,
// when the name is already taken.
func (m *Manager) AddChannel(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.channels[name]; exists {
		return false
	}
	m.channels[name] = NewDispatch(name, m.cfg.Dispatch)
	return true
}

// RemoveChannel closes and removes the named channel. Returns false when the
// name is unknown. The default channel cannot be removed.
func (m *Manager) RemoveChannel(name string) bool {
	if name == "" {
		return false
	}

	m.mu.Lock()
	d, exists := m.channels[name]
	if exists {
		delete(m.channels, name)
	}
	m.mu.Unlock()

	if exists {
		d.Close()
	}
	return exists
}

// Channels returns the sorted names of all live channels. The default
// channel appears as the empty string.
func (m *Manager) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// defaultManager is the process-wide manager behind the package-level
// helpers, created lazily on first use.
var (
	defaultManager     *Manager
	defaultManagerOnce sync.Once
)

// Default returns the package-level manager, creating it on first access.
func Default() *Manager {
	defaultManagerOnce.Do(func() {
		defaultManager = NewManager(ManagerConfig{})
	})
	return defaultManager
}

// RegisterForEvents registers h on the default channel for the given names,
// or for all events when no names are given.
func RegisterForEvents(h Handler, names ...string) (*Registration, error) {
	return Default().Default().Register(h, names...)
}

// UnregisterFromEvents removes the registration from the given names on the
// default channel.
func UnregisterFromEvents(reg *Registration, names ...string) error {
	return Default().Default().Unregister(reg, names...)
}

// PostEvent posts an event on the default channel.
func PostEvent(name string, payload map[string]any, opts ...PostOption) error {
	return Default().Default().Post(name, payload, opts...)
}

// MapEvents maps a set of events on the default channel: eventToPost is
// posted once every event in eventsToMap has occurred.
func MapEvents(eventsToMap []*Event, eventToPost *Event, ignoreIfExists bool) (string, error) {
	return Default().Default().MapEvents(eventsToMap, eventToPost, ignoreIfExists)
}
