package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/sdsverify/internal/schema"
	"github.com/roach88/sdsverify/internal/sds"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestType returns the event type under the given id.
func createTestType(t *testing.T, id string) sds.Type {
	t.Helper()
	typ, err := schema.EventType(id)
	if err != nil {
		t.Fatalf("EventType() failed: %v", err)
	}
	return typ
}

// createTestEvents returns n valued events one second apart, newest first.
func createTestEvents(n int) []sds.Event {
	events := make([]sds.Event, n)
	for i := range events {
		events[i] = sds.NewValuedEvent(testNow.Add(-time.Duration(i)*time.Second), float64(i), sds.Quality{})
	}
	return events
}
