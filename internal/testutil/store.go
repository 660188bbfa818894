package testutil

import (
	"testing"

	"go.uber.org/zap"

	"github.com/nfraser/mail-triage/internal/adapters/store"
)

// NewTestStore creates an in-memory SQLite store with the schema
// applied. It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// NewMemoryStore creates a map-backed store for tests that do not
// need SQL semantics.
func NewMemoryStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	return store.NewMemoryStore(zap.NewNop())
}
