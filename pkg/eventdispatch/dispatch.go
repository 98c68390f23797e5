package eventdispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/eventdispatch/pkg/eventdispatch/observability"
)

// AllEvents is the reserved registration target meaning "invoke for every
// posted event". It cannot be used as an event name or passed to Register
// explicitly; registering with no names selects it.
const AllEvents = "*"

// DefaultEventLogSize is the capacity of the diagnostic ring buffer of
// recently posted events.
const DefaultEventLogSize = 5

// ErrDispatchClosed is returned for operations on a closed channel.
var ErrDispatchClosed = errors.New("dispatch closed")

// Handler processes delivered events. Implementations run concurrently with
// the poster and with each other; an error return is logged and swallowed at
// the delivery boundary, it never reaches the poster.
type Handler interface {
	OnEvent(ctx context.Context, evt *Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt *Event) error

// OnEvent implements Handler.
func (f HandlerFunc) OnEvent(ctx context.Context, evt *Event) error {
	return f(ctx, evt)
}

// Registration is the opaque identity of one registered handler. The handle,
// not the handler value, is what deduplication, exclusion and unregistration
// compare, so the same function can safely back multiple registrations.
type Registration struct {
	id      string
	handler Handler
}

// ID returns the registration's opaque identifier. It appears in
// administrative event payloads in place of the handler itself.
func (r *Registration) ID() string { return r.id }

// DispatchConfig configures a single channel.
type DispatchConfig struct {
	// EventLogSize caps the diagnostic ring buffer.
	// Default: DefaultEventLogSize.
	EventLogSize int

	// MaxConcurrent limits in-flight deliveries. Deliveries are still started
	// strictly in enqueue order; the limit only gates how many run at once.
	// Default: 0 (unlimited).
	MaxConcurrent int

	// Logger receives dispatch diagnostics. Nil disables logging.
	Logger *slog.Logger

	// Metrics records dispatch metrics. Nil means no-op.
	Metrics observability.MetricsRecorder

	// Spans traces posts and deliveries. Nil means no-op.
	Spans observability.SpanManager
}

// delivery is one unit of work on the notification queue.
type delivery struct {
	reg *Registration
	evt *Event
}

// Dispatch is one independent channel: a registration table plus an
// asynchronous notification engine. The zero value is not usable; create
// instances with NewDispatch or through a Manager.
//
// All registry reads and writes and the resolution of "which handlers get
// this post" happen under one mutex, so concurrent register/unregister/post
// calls cannot lose updates, and posts enqueue atomically, so successive
// deliveries to one handler start in post order.
type Dispatch struct {
	name string
	cfg  DispatchConfig

	mu       sync.Mutex
	notEmpty *sync.Cond
	handlers map[string][]*Registration
	queue    []delivery
	closed   bool

	// Diagnostic ring buffer of recent posts.
	eventLog        []*Event
	logEvents       bool
	logIfNoHandlers bool

	// sem gates concurrent deliveries when MaxConcurrent > 0.
	sem chan struct{}

	mapMu  sync.Mutex
	mapper *EventMapManager
}

// NewDispatch creates a channel and starts its dispatcher goroutine.
// An empty name denotes the default channel.
func NewDispatch(name string, cfg DispatchConfig) *Dispatch {
	if cfg.EventLogSize <= 0 {
		cfg.EventLogSize = DefaultEventLogSize
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	if cfg.Spans == nil {
		cfg.Spans = observability.NoopSpanManager{}
	}

	d := &Dispatch{
		name:     name,
		cfg:      cfg,
		handlers: make(map[string][]*Registration),
	}
	d.notEmpty = sync.NewCond(&d.mu)
	if cfg.MaxConcurrent > 0 {
		d.sem = make(chan struct{}, cfg.MaxConcurrent)
	}

	go d.run()

	return d
}

// Name returns the channel name. The default channel's name is empty.
func (d *Dispatch) Name() string { return d.name }

// Register creates a registration for h under the given names, or under
// AllEvents when no names are given. Fails with ErrInvalidEvent if any name
// is empty or names the sentinel explicitly. On success a
// handler_registered administrative event is posted with the names added and
// the registration id.
func (d *Dispatch) Register(h Handler, names ...string) (*Registration, error) {
	if h == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if err := validateNames(d, names); err != nil {
		return nil, err
	}

	reg := &Registration{id: uuid.NewString(), handler: h}
	added := d.attach(reg, names)
	if len(added) > 0 {
		d.postRegistrationEvent(reg, added, true)
	}
	return reg, nil
}

// Attach registers an existing registration for additional names (or for
// AllEvents when no names are given). Re-attaching a name already held is a
// silent no-op for that name.
func (d *Dispatch) Attach(reg *Registration, names ...string) error {
	if reg == nil {
		return fmt.Errorf("registration is required")
	}
	if err := validateNames(d, names); err != nil {
		return err
	}

	added := d.attach(reg, names)
	if len(added) > 0 {
		d.postRegistrationEvent(reg, added, true)
	}
	return nil
}

// Unregister removes the registration from the given names (or from
// AllEvents when no names are given). Removing a name not held is a silent
// no-op for that name. On any net change a handler_unregistered
// administrative event is posted.
func (d *Dispatch) Unregister(reg *Registration, names ...string) error {
	if reg == nil {
		return fmt.Errorf("registration is required")
	}
	if err := validateNames(d, names); err != nil {
		return err
	}

	removed := d.detach(reg, names)
	if len(removed) > 0 {
		d.postRegistrationEvent(reg, removed, false)
	}
	return nil
}

// attach adds reg under each name and reports the names actually added.
func (d *Dispatch) attach(reg *Registration, names []string) []string {
	if len(names) == 0 {
		names = []string{AllEvents}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var added []string
	for _, name := range names {
		if containsRegistration(d.handlers[name], reg) {
			continue
		}
		d.handlers[name] = append(d.handlers[name], reg)
		added = append(added, name)
	}
	return added
}

// detach removes reg from each name and reports the names actually removed.
func (d *Dispatch) detach(reg *Registration, names []string) []string {
	if len(names) == 0 {
		names = []string{AllEvents}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var removed []string
	for _, name := range names {
		regs := d.handlers[name]
		for i, r := range regs {
			if r == reg {
				d.handlers[name] = append(regs[:i:i], regs[i+1:]...)
				if len(d.handlers[name]) == 0 {
					delete(d.handlers, name)
				}
				removed = append(removed, name)
				break
			}
		}
	}
	return removed
}

// PostOption configures a single post.
type PostOption func(*postOptions)

type postOptions struct {
	exclude *Registration
}

// Excluding omits one registration from delivery of this post. Typical use
// is a handler reposting an event without notifying itself.
func Excluding(reg *Registration) PostOption {
	return func(o *postOptions) {
		o.exclude = reg
	}
}

// Post constructs an Event and fans it out to every handler registered for
// name or for AllEvents, deduplicated, minus an excluded registration.
// Posting with no matching handlers delivers nothing and is not an error.
// Delivery is fire-and-forget: Post returns once the work units are
// enqueued.
func (d *Dispatch) Post(name string, payload map[string]any, opts ...PostOption) error {
	if name == "" {
		return newInvalidEventError(d, []string{name})
	}

	var o postOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx := context.Background()
	_, span := d.cfg.Spans.StartPostSpan(ctx, d.name, name)

	evt := newEvent(name, payload)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.cfg.Spans.EndSpanWithError(span, ErrDispatchClosed)
		return ErrDispatchClosed
	}

	regs := d.effectiveSet(name, o.exclude)

	if d.logEvents && (len(regs) > 0 || d.logIfNoHandlers) {
		d.appendEventLog(evt)
	}

	if len(regs) == 0 {
		d.mu.Unlock()
		d.cfg.Spans.EndSpanWithError(span, nil)
		observability.LogNoHandlers(d.cfg.Logger, d.name, name)
		return nil
	}

	for _, reg := range regs {
		d.queue = append(d.queue, delivery{reg: reg, evt: evt})
	}
	depth := len(d.queue)
	d.notEmpty.Signal()
	d.mu.Unlock()

	d.cfg.Spans.EndSpanWithError(span, nil)
	d.cfg.Metrics.RecordEventPosted(ctx, d.name, name)
	d.cfg.Metrics.RecordQueueDepth(ctx, d.name, depth)
	observability.LogEventPosted(d.cfg.Logger, d.name, name, evt.ID(), depth)
	return nil
}

// effectiveSet resolves the handlers for one post. Callers must hold d.mu.
func (d *Dispatch) effectiveSet(name string, exclude *Registration) []*Registration {
	specific := d.handlers[name]
	wildcard := d.handlers[AllEvents]

	regs := make([]*Registration, 0, len(specific)+len(wildcard))
	for _, reg := range specific {
		if reg != exclude {
			regs = append(regs, reg)
		}
	}
	for _, reg := range wildcard {
		if reg != exclude && !containsRegistration(regs, reg) {
			regs = append(regs, reg)
		}
	}
	return regs
}

// appendEventLog appends to the diagnostic ring buffer, dropping the oldest
// entry beyond capacity. Callers must hold d.mu.
func (d *Dispatch) appendEventLog(evt *Event) {
	if len(d.eventLog) >= d.cfg.EventLogSize {
		d.eventLog = append(d.eventLog[1:], evt)
		return
	}
	d.eventLog = append(d.eventLog, evt)
}

// run is the dispatcher loop. It starts queued deliveries strictly in
// enqueue order; each delivery then runs in its own goroutine. The loop
// drains the queue before exiting on close, so an enqueued delivery always
// eventually runs.
func (d *Dispatch) run() {
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.notEmpty.Wait()
		}
		if len(d.queue) == 0 && d.closed {
			d.mu.Unlock()
			return
		}
		unit := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		if d.sem != nil {
			d.sem <- struct{}{}
		}
		go func(u delivery) {
			if d.sem != nil {
				defer func() { <-d.sem }()
			}
			d.deliver(u.reg, u.evt)
		}(unit)
	}
}

// deliver invokes one handler. Panics and errors stop here: they are
// recorded and logged, never propagated.
func (d *Dispatch) deliver(reg *Registration, evt *Event) {
	ctx := context.Background()
	ctx, span := d.cfg.Spans.StartDeliverySpan(ctx, d.name, evt.Name(), reg.id)

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panic: %v", r)
			}
		}()
		return reg.handler.OnEvent(ctx, evt)
	}()

	d.cfg.Spans.EndSpanWithError(span, err)
	d.cfg.Metrics.RecordDelivery(ctx, d.name, evt.Name(), time.Since(start), err)
	if err != nil {
		observability.LogDeliveryError(d.cfg.Logger, d.name, evt.Name(), reg.id, err)
		return
	}
	observability.LogDelivered(d.cfg.Logger, d.name, evt.Name(), reg.id,
		float64(time.Since(start).Milliseconds()))
}

// postRegistrationEvent announces a net registration change. The sentinel is
// reported as an empty name list, matching how callers expressed it.
func (d *Dispatch) postRegistrationEvent(reg *Registration, names []string, registered bool) {
	events := names
	if len(names) == 1 && names[0] == AllEvents {
		events = []string{}
	}

	name := HandlerUnregistered
	if registered {
		name = HandlerRegistered
	}
	_ = d.Post(name.String(), map[string]any{
		"events":  events,
		"handler": reg.id,
	})

	if registered {
		observability.LogRegistered(d.cfg.Logger, d.name, reg.id, events)
	} else {
		observability.LogUnregistered(d.cfg.Logger, d.name, reg.id, events)
	}
}

// MapEvents delegates to this channel's event map manager, creating it on
// first use.
func (d *Dispatch) MapEvents(eventsToMap []*Event, eventToPost *Event, ignoreIfExists bool) (string, error) {
	return d.EventMapManager().MapEvents(eventsToMap, eventToPost, ignoreIfExists)
}

// EventMapManager returns this channel's event map manager, creating and
// registering it on first use.
func (d *Dispatch) EventMapManager() *EventMapManager {
	d.mapMu.Lock()
	defer d.mapMu.Unlock()
	if d.mapper == nil {
		d.mapper = NewEventMapManager(d)
	}
	return d.mapper
}

// QueueDepth returns the number of pending deliveries. The queue is
// unbounded; sustained growth means handlers are not keeping up.
func (d *Dispatch) QueueDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Close stops the dispatcher after draining already-enqueued deliveries.
// Subsequent posts fail with ErrDispatchClosed.
func (d *Dispatch) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.notEmpty.Broadcast()
}

// ToggleEventLogging enables or disables the diagnostic event log.
func (d *Dispatch) ToggleEventLogging(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logEvents = enabled
}

// SetLogEventIfNoHandlers controls whether posts with no matching handlers
// still land in the diagnostic event log.
func (d *Dispatch) SetLogEventIfNoHandlers(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logIfNoHandlers = v
}

// LogEventIfNoHandlers reports the log-even-without-handlers flag.
func (d *Dispatch) LogEventIfNoHandlers() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.logIfNoHandlers
}

// EventLog returns a copy of the diagnostic ring buffer, oldest first.
func (d *Dispatch) EventLog() []*Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Event(nil), d.eventLog...)
}

// ClearEventLog empties the diagnostic ring buffer.
func (d *Dispatch) ClearEventLog() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.eventLog = nil
}

// Handlers returns a view of the registration table: event name to the
// ordered registration ids held for it.
func (d *Dispatch) Handlers() map[string][]string {
	d.mu.Lock()
	defer d.mu.Unlock()

	view := make(map[string][]string, len(d.handlers))
	for name, regs := range d.handlers {
		ids := make([]string, len(regs))
		for i, reg := range regs {
			ids[i] = reg.id
		}
		view[name] = ids
	}
	return view
}

// ClearRegistrations drops every registration on this channel.
func (d *Dispatch) ClearRegistrations() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = make(map[string][]*Registration)
}

// validateNames rejects empty names and explicit use of the sentinel.
func validateNames(p poster, names []string) error {
	var invalid []string
	for _, name := range names {
		if name == "" || name == AllEvents {
			invalid = append(invalid, name)
		}
	}
	if len(invalid) > 0 {
		return newInvalidEventError(p, invalid)
	}
	return nil
}

func containsRegistration(regs []*Registration, reg *Registration) bool {
	for _, r := range regs {
		if r == reg {
			return true
		}
	}
	return false
}
