package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/randalmurphal/eventdispatch/pkg/eventdispatch"
)

// Recorder journals every event delivered to it. Attach it as a wildcard
// handler to persist a channel's full event stream.
type Recorder struct {
	channel string
	store   Store
	reg     *eventdispatch.Registration
	d       *eventdispatch.Dispatch
}

// Compile-time interface check.
var _ eventdispatch.Handler = (*Recorder)(nil)

// Attach registers a Recorder for all events on d.
func Attach(d *eventdispatch.Dispatch, store Store) (*Recorder, error) {
	r := &Recorder{
		channel: d.Name(),
		store:   store,
		d:       d,
	}
	reg, err := d.Register(r)
	if err != nil {
		return nil, fmt.Errorf("register recorder: %w", err)
	}
	r.reg = reg
	return r, nil
}

// OnEvent implements eventdispatch.Handler by appending the event to the
// store.
func (r *Recorder) OnEvent(ctx context.Context, evt *eventdispatch.Event) error {
	payload, err := json.Marshal(evt.Payload())
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	return r.store.Append(ctx, &Record{
		EventID: evt.ID(),
		Channel: r.channel,
		Name:    evt.Name(),
		Payload: payload,
		Time:    evt.Time(),
	})
}

// Detach unregisters the recorder from its channel. The store is left open.
func (r *Recorder) Detach() error {
	return r.d.Unregister(r.reg)
}
