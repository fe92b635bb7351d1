package testsupport

import (
	"context"
	"testing"

	"bookshelf/internal/config"
	"bookshelf/internal/library"
)

// MustOpenStore opens a library.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *library.Store {
	t.Helper()

	store, err := library.Open(cfg)
	if err != nil {
		t.Fatalf("library.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// AddItem registers a metadata-scanned item for tests using the provided store.
func AddItem(t testing.TB, store *library.Store, path, title string) *library.Item {
	t.Helper()

	item, _, err := store.Add(context.Background(), path, &library.Metadata{Title: title})
	if err != nil {
		t.Fatalf("store.Add: %v", err)
	}
	return item
}

// SetContent writes a scan outcome onto an existing item.
func SetContent(t testing.TB, store *library.Store, path, tags, summary string) {
	t.Helper()

	if err := store.UpdateContent(context.Background(), path, tags, summary); err != nil {
		t.Fatalf("store.UpdateContent: %v", err)
	}
}
