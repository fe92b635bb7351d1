package tagging_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"bookshelf/internal/tagging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRulesFileReadAndSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "tagging_rules.md")
	rules := tagging.NewRulesFile(path, nil)

	content, err := rules.Rules()
	if err != nil || content != "" {
		t.Fatalf("missing file should read as empty, got %q (%v)", content, err)
	}
	if rules.Exists() {
		t.Fatal("file should not exist yet")
	}
	if err := rules.Save("- If a book is about `Robots`, ensures `Science-Fiction`."); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(path, []byte("edited on disk"), 0o644); err != nil {
		t.Fatal(err)
	}
	content, err = rules.Rules()
	if err != nil || content != "edited on disk" {
		t.Fatalf("unwatched reads must go to disk, got %q (%v)", content, err)
	}
}

func TestRulesFileWatchPicksUpEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tagging_rules.md")
	rules := tagging.NewRulesFile(path, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rules.Watch(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := os.WriteFile(path, []byte("new rules"), 0o644); err != nil {
			t.Fatal(err)
		}
		content, err := rules.Rules()
		if err != nil {
			t.Fatalf("Rules: %v", err)
		}
		if content == "new rules" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("watcher never observed the edit, last content %q", content)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
