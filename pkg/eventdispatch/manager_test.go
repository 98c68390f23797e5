package eventdispatch_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/randalmurphal/eventdispatch/pkg/eventdispatch"
	"github.com/randalmurphal/eventdispatch/pkg/eventdispatch/config"
)

func TestManager(t *testing.T) {
	m := eventdispatch.NewManager(eventdispatch.ManagerConfig{})

	// The default channel always exists
	d := m.Default()
	if d == nil {
		t.Fatal("expected default channel")
	}
	if d.Name() != "" {
		t.Errorf("expected empty default channel name, got %q", d.Name())
	}
	defer d.Close()

	if !m.AddChannel("audio") {
		t.Error("expected channel addition to succeed")
	}
	if m.AddChannel("audio") {
		t.Error("expected duplicate channel addition to fail")
	}

	audio, ok := m.Channel("audio")
	if !ok || audio == nil {
		t.Fatal("expected audio channel")
	}
	if audio.Name() != "audio" {
		t.Errorf("expected channel name audio, got %q", audio.Name())
	}

	names := m.Channels()
	if len(names) != 2 || names[0] != "" || names[1] != "audio" {
		t.Errorf("expected sorted channels [\"\" audio], got %v", names)
	}
}

func TestManagerChannelsIndependent(t *testing.T) {
	m := eventdispatch.NewManager(eventdispatch.ManagerConfig{})
	defer m.Default().Close()

	m.AddChannel("other")
	other, _ := m.Channel("other")
	defer other.Close()

	var received atomic.Int32

	m.Default().Register(eventdispatch.HandlerFunc(func(ctx context.Context, evt *eventdispatch.Event) error {
		received.Add(1)
		return nil
	}), "test.event")

	// A post on one channel never crosses to another
	other.Post("test.event", nil)

	time.Sleep(50 * time.Millisecond)

	if received.Load() != 0 {
		t.Errorf("expected no cross-channel delivery, got %d", received.Load())
	}
}

func TestManagerRemoveChannel(t *testing.T) {
	m := eventdispatch.NewManager(eventdispatch.ManagerConfig{})
	defer m.Default().Close()

	m.AddChannel("temp")
	temp, _ := m.Channel("temp")

	if !m.RemoveChannel("temp") {
		t.Error("expected removal to succeed")
	}
	if _, ok := m.Channel("temp"); ok {
		t.Error("expected channel gone after removal")
	}

	// Removal closes the channel
	if err := temp.Post("test.event", nil); !errors.Is(err, eventdispatch.ErrDispatchClosed) {
		t.Errorf("expected ErrDispatchClosed after removal, got %v", err)
	}

	if m.RemoveChannel("temp") {
		t.Error("expected removal of unknown channel to fail")
	}
	if m.RemoveChannel("") {
		t.Error("expected default channel to be irremovable")
	}
}

func TestManagerFromConfig(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
event_log_size: 10
max_concurrent_deliveries: 1
log_events: true
log_events_without_handlers: true
channels:
  - audio
  - video
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m := eventdispatch.NewManagerFromConfig(cfg)
	defer m.Default().Close()

	if !m.Default().LogEventIfNoHandlers() {
		t.Error("expected log-without-handlers enabled from config")
	}
	if _, ok := m.Channel("audio"); !ok {
		t.Error("expected audio channel from config")
	}
	if _, ok := m.Channel("video"); !ok {
		t.Error("expected video channel from config")
	}

	// Logging is on, so a handled post lands in the event log
	m.Default().Post("test.event", nil)
	if len(m.Default().EventLog()) != 1 {
		t.Errorf("expected 1 logged event, got %d", len(m.Default().EventLog()))
	}
}

func TestPackageLevelHelpers(t *testing.T) {
	var received atomic.Int32

	reg, err := eventdispatch.RegisterForEvents(eventdispatch.HandlerFunc(func(ctx context.Context, evt *eventdispatch.Event) error {
		received.Add(1)
		return nil
	}), "helper.event")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer eventdispatch.UnregisterFromEvents(reg, "helper.event")

	if err := eventdispatch.PostEvent("helper.event", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if received.Load() != 1 {
		t.Errorf("expected 1 delivery via package helpers, got %d", received.Load())
	}
}

func TestPackageLevelMapEvents(t *testing.T) {
	var received atomic.Int32

	reg, err := eventdispatch.RegisterForEvents(eventdispatch.HandlerFunc(func(ctx context.Context, evt *eventdispatch.Event) error {
		received.Add(1)
		return nil
	}), "helper.composite")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer eventdispatch.UnregisterFromEvents(reg, "helper.composite")

	watched, _ := eventdispatch.NewEvent("helper.watched", nil)
	composite, _ := eventdispatch.NewEvent("helper.composite", nil)

	if _, err := eventdispatch.MapEvents([]*eventdispatch.Event{watched}, composite, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	eventdispatch.PostEvent("helper.watched", nil)

	time.Sleep(50 * time.Millisecond)

	if received.Load() != 1 {
		t.Errorf("expected 1 composite delivery, got %d", received.Load())
	}
}
