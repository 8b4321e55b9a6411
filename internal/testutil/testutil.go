// Package testutil provides shared test helpers for temporary stores and
// seeded tenants.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/tenantdesk/internal/models"
	"github.com/starford/tenantdesk/internal/storage"
)

// Object ids and names of the seeded catalog.
const (
	DraftsObjectID  = "obj-drafts"
	ClientsObjectID = "obj-clients"
	DraftsTable     = "drafts__a"
	ClientsTable    = "clients__a"
)

// TestStore creates a temporary SQLite store that is automatically cleaned up.
func TestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	dbFile, err := os.CreateTemp("", "tenantdesk-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		os.Remove(dbFile.Name())
		os.Remove(dbFile.Name() + "-wal")
		os.Remove(dbFile.Name() + "-shm")
	})

	store, err := storage.OpenSQLite(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// SeedCatalog registers the drafts and clients objects for tenantID.
func SeedCatalog(t *testing.T, store *storage.SQLite, tenantID string) {
	t.Helper()
	ctx := context.Background()
	if err := store.CreateObject(ctx, tenantID, DraftsObjectID, DraftsTable); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateObject(ctx, tenantID, ClientsObjectID, ClientsTable); err != nil {
		t.Fatal(err)
	}
}

// Insert adds one record and fails the test on error.
func Insert(t *testing.T, store *storage.SQLite, tenantID, objectID, recordID string, data models.Fields) {
	t.Helper()
	if _, err := store.InsertRecord(context.Background(), tenantID, objectID, recordID, data); err != nil {
		t.Fatal(err)
	}
}

// Fetch returns the payload of one record, or nil.
func Fetch(t *testing.T, store storage.Provider, tenantID, objectID, recordID string) models.Fields {
	t.Helper()
	recs, err := store.FetchObjectRecords(context.Background(), tenantID, objectID, 1000, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range recs {
		if r.ID == recordID {
			return r.Data
		}
	}
	return nil
}

// Logger returns a logger that discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
