package properties_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventdispatch/pkg/eventdispatch"
	"github.com/randalmurphal/eventdispatch/pkg/eventdispatch/properties"
)

func TestStore(t *testing.T) {
	s := properties.NewStore(nil)

	require.NoError(t, s.Set("app.name", "worker-demo"))

	v, err := s.Get("app.name")
	require.NoError(t, err)
	assert.Equal(t, "worker-demo", v)

	assert.True(t, s.Has("app.name"))
	assert.False(t, s.Has("app.missing"))
}

func TestStoreNotSet(t *testing.T) {
	s := properties.NewStore(nil)

	_, err := s.Get("app.missing")
	assert.ErrorIs(t, err, properties.ErrPropertyNotSet)
}

func TestStoreImmutableByDefault(t *testing.T) {
	s := properties.NewStore(nil)

	require.NoError(t, s.Set("app.name", "first"))

	err := s.Set("app.name", "second")
	assert.ErrorIs(t, err, properties.ErrImmutableProperty)

	// The original value survives
	v, err := s.Get("app.name")
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}

func TestStoreMutable(t *testing.T) {
	s := properties.NewStore(nil)

	require.NoError(t, s.Set("app.retries", 3, properties.Mutable()))
	require.NoError(t, s.Set("app.retries", 5))

	v, err := s.Get("app.retries")
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestStoreSkipIfExists(t *testing.T) {
	s := properties.NewStore(nil)

	require.NoError(t, s.Set("app.name", "first"))
	require.NoError(t, s.Set("app.name", "second", properties.SkipIfExists()))

	v, err := s.Get("app.name")
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}

func TestStoreList(t *testing.T) {
	s := properties.NewStore(nil)

	require.NoError(t, s.Set("b", 2))
	require.NoError(t, s.Set("a", 1))
	require.NoError(t, s.Set("c", 3))

	assert.Equal(t, []string{"a", "b", "c"}, s.List())
}

func TestStorePostsErrorEvents(t *testing.T) {
	// Sequential delivery keeps the observed event order deterministic
	d := eventdispatch.NewDispatch("", eventdispatch.DispatchConfig{MaxConcurrent: 1})
	defer d.Close()

	var mu sync.Mutex
	var names []string
	var payloads []map[string]any

	_, err := d.Register(eventdispatch.HandlerFunc(func(ctx context.Context, evt *eventdispatch.Event) error {
		mu.Lock()
		names = append(names, evt.Name())
		payloads = append(payloads, evt.Payload())
		mu.Unlock()
		return nil
	}), "property_not_set", "immutable_property_modification")
	require.NoError(t, err)

	s := properties.NewStore(d)

	_, err = s.Get("app.missing")
	assert.ErrorIs(t, err, properties.ErrPropertyNotSet)

	require.NoError(t, s.Set("app.name", "first"))
	err = s.Set("app.name", "second")
	assert.ErrorIs(t, err, properties.ErrImmutableProperty)

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, names, 2)
	assert.Equal(t, "property_not_set", names[0])
	assert.Equal(t, "immutable_property_modification", names[1])
	assert.Equal(t, "app.missing", payloads[0]["property"])
	assert.Equal(t, "first", payloads[1]["value"])
	assert.Equal(t, "second", payloads[1]["attempted_value"])
}
