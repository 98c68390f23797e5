// Package eventdispatch provides an in-process publish/subscribe event bus
// with multi-event correlation.
//
// # Overview
//
// Producers post named events with an optional structured payload; consumers
// register handlers for specific names or for every event. The core pieces:
//
//   - Event: immutable occurrence with a process-wide monotonic id
//   - Dispatch: one channel (registration table + async notification engine)
//   - Manager: named channels plus the always-present default channel
//   - EventMap / EventMapManager: wait for a set of events, then post one
//     composite event
//
// # Dispatch
//
// Register returns an opaque *Registration handle; the handle is the identity
// used for deduplication, exclusion, and unregistration. Posting never blocks
// on handler execution: deliveries are enqueued on a FIFO queue and started
// strictly in enqueue order by a dispatcher goroutine, then run concurrently.
// Handler errors and panics are logged and swallowed at the delivery boundary.
//
//	d := eventdispatch.Default().Default()
//	reg, _ := d.Register(eventdispatch.HandlerFunc(onEvent), "job.done")
//	_ = d.Post("job.done", map[string]any{"id": 42})
//
// # Event maps
//
// An event map watches a set of event names, each with an optional expected
// payload subset. Matching is contains-at-least: every expected key must be
// present with an equal value; extra payload keys are ignored. When the last
// watched event arrives the map posts its composite event exactly once, then
// unregisters itself and announces event_map.mapping_triggered so the manager
// can drop it.
//
// # Administrative events
//
// The engine describes its own state changes on the same channel:
// event_dispatch.handler_registered, event_dispatch.handler_unregistered,
// event_map.mapping_created, event_map.mapping_triggered and
// event_map.mapping_removed. They are ordinary events and can be consumed
// like any other.
package eventdispatch
