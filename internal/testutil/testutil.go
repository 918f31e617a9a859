// Package testutil provides shared test helpers for setting up record stores.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/starford/bitacora/internal/records"
	"github.com/starford/bitacora/internal/store"
)

// TestStore creates a temporary record store at the latest schema
// version that is automatically cleaned up.
func TestStore(t *testing.T) *store.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "bitacora-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		os.Remove(dbFile.Name())
		os.Remove(dbFile.Name() + "-wal")
		os.Remove(dbFile.Name() + "-shm")
	})

	s, err := store.Open(context.Background(), dbFile.Name(), records.Migrations)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Clock returns a fixed time source.
func Clock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
