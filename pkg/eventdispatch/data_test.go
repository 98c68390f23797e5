package eventdispatch_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/randalmurphal/eventdispatch/pkg/eventdispatch"
)

func TestData(t *testing.T) {
	d, err := eventdispatch.NewData(map[string]any{"name": "worker-1", "count": 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v, err := d.Get("name")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "worker-1" {
		t.Errorf("expected worker-1, got %v", v)
	}
}

func TestDataNilInput(t *testing.T) {
	_, err := eventdispatch.NewData(nil)
	if !errors.Is(err, eventdispatch.ErrInvalidData) {
		t.Errorf("expected ErrInvalidData, got %v", err)
	}
}

func TestDataEmptyInput(t *testing.T) {
	// Empty is valid, only nil is rejected
	d, err := eventdispatch.NewData(map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.Map()) != 0 {
		t.Errorf("expected empty map, got %v", d.Map())
	}
}

func TestDataMissingKey(t *testing.T) {
	d, _ := eventdispatch.NewData(map[string]any{"present": 1})

	_, err := d.Get("absent")
	if !errors.Is(err, eventdispatch.ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}

	// The error carries the key and the searched data
	var nerr *eventdispatch.NotifiableError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NotifiableError, got %T", err)
	}
	if nerr.Payload["key"] != "absent" {
		t.Errorf("expected key in error payload, got %v", nerr.Payload["key"])
	}
	if nerr.Payload["data"] == nil {
		t.Error("expected searched data in error payload")
	}
}

func TestDataJSON(t *testing.T) {
	d, _ := eventdispatch.NewData(map[string]any{"k": "v"})

	b, err := d.JSON()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m["k"] != "v" {
		t.Errorf("expected k=v after round trip, got %v", m)
	}
}
