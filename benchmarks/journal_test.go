package benchmarks

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/randalmurphal/eventdispatch/pkg/eventdispatch/journal"
)

func benchRecord(i int) *journal.Record {
	return &journal.Record{
		EventID: int64(i),
		Channel: "",
		Name:    "bench.event",
		Payload: []byte(`{"k":"v","n":42}`),
		Time:    time.Now(),
	}
}

// BenchmarkMemoryStore_Append measures in-memory journal append.
func BenchmarkMemoryStore_Append(b *testing.B) {
	store := journal.NewMemoryStore()
	defer store.Close()

	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := store.Append(ctx, benchRecord(i)); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkMemoryStore_List measures listing with a name filter over 1000
// records.
func BenchmarkMemoryStore_List(b *testing.B) {
	store := journal.NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		if err := store.Append(ctx, benchRecord(i)); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := store.List(ctx, journal.Filter{Name: "bench.event", Limit: 100}); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSQLiteStore_Append measures durable journal append.
func BenchmarkSQLiteStore_Append(b *testing.B) {
	store, err := journal.NewSQLiteStore(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := store.Append(ctx, benchRecord(i)); err != nil {
			b.Fatal(err)
		}
	}
}
