package logging_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"bookshelf/internal/logging"
)

func writeAged(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	stamp := time.Now().Add(-age)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("chtimes %s: %v", name, err)
	}
	return path
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestCleanupOldLogsRemovesExpiredMatches(t *testing.T) {
	dir := t.TempDir()
	day := 24 * time.Hour
	old := writeAged(t, dir, "bookshelf-1.log", 10*day)
	fresh := writeAged(t, dir, "bookshelf-2.log", time.Hour)
	current := writeAged(t, dir, "bookshelf-3.log", 20*day)
	other := writeAged(t, dir, "notes.txt", 30*day)

	removed := logging.CleanupOldLogs(logging.NewNop(), 7, logging.RetentionTarget{
		Dir:     dir,
		Pattern: "bookshelf-*.log",
		Exclude: []string{current},
	})

	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if exists(old) {
		t.Fatal("expected expired log to be removed")
	}
	for _, path := range []string{fresh, current, other} {
		if !exists(path) {
			t.Fatalf("expected %s to survive", filepath.Base(path))
		}
	}
}

func TestCleanupOldLogsKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	day := 24 * time.Hour
	newest := writeAged(t, dir, "scan_errors_3.txt", 8*day)
	middle := writeAged(t, dir, "scan_errors_2.txt", 9*day)
	oldest := writeAged(t, dir, "scan_errors_1.txt", 10*day)

	removed := logging.CleanupOldLogs(nil, 7, logging.RetentionTarget{Dir: dir, Pattern: "scan_errors_*.txt", Keep: 2})

	if removed != 1 || exists(oldest) {
		t.Fatalf("expected only the oldest report removed, removed=%d", removed)
	}
	if !exists(newest) || !exists(middle) {
		t.Fatal("expected the two newest reports to be kept")
	}
}

func TestCleanupOldLogsDisabled(t *testing.T) {
	dir := t.TempDir()
	path := writeAged(t, dir, "bookshelf-1.log", 365*24*time.Hour)
	if removed := logging.CleanupOldLogs(nil, 0, logging.RetentionTarget{Dir: dir}); removed != 0 || !exists(path) {
		t.Fatalf("expected retention 0 to disable pruning, removed=%d", removed)
	}
}
