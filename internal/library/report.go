package library

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const reportSeparator = "----------------------------------------"

// WriteErrorReport writes the failed items to scan_errors_<unix-ms>.txt inside
// dir and returns the report path. An empty item list writes nothing.
func WriteErrorReport(items []FailedItem, dir string, now time.Time) (string, error) {
	if len(items) == 0 {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}

	entries := make([]string, 0, len(items))
	for _, item := range items {
		entries = append(entries, fmt.Sprintf("[%s] %s\nReason: %s\nPath: %s\n%s",
			item.Tags, filepath.Base(item.Path), item.Summary, item.Path, reportSeparator))
	}

	var b strings.Builder
	b.WriteString("BOOKSHELF - SCAN ERROR REPORT\n")
	fmt.Fprintf(&b, "Generated: %s\n", now.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Total Issues: %d\n\n", len(items))
	b.WriteString(strings.Join(entries, "\n\n"))

	path := filepath.Join(dir, fmt.Sprintf("scan_errors_%d.txt", now.UnixMilli()))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write error report: %w", err)
	}
	return path, nil
}
