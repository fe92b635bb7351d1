package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// RetentionTarget names a directory and glob whose files expire. Keep spares
// the newest matches regardless of age; Exclude spares specific paths, such
// as the log file of the running daemon.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Keep    int
	Exclude []string
}

type retentionCandidate struct {
	path    string
	modTime time.Time
}

// CleanupOldLogs deletes files older than retentionDays from each target and
// returns how many were removed. retentionDays <= 0 disables pruning.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	removed := 0
	for _, target := range targets {
		candidates := target.candidates()
		// newest first, so Keep protects the most recent files
		slices.SortFunc(candidates, func(a, b retentionCandidate) int {
			return b.modTime.Compare(a.modTime)
		})
		for i, candidate := range candidates {
			if i < target.Keep || !candidate.modTime.Before(cutoff) {
				continue
			}
			if err := os.Remove(candidate.path); err != nil {
				WarnWithContext(logger, "retention remove failed; file remains", "log_retention_failed",
					String("path", candidate.path),
					Error(err),
					String(FieldErrorHint, "check file permissions and log_dir ownership"),
					String(FieldImpact, "expired file stays on disk"),
				)
				continue
			}
			removed++
			logger.Debug("expired file removed",
				String("path", candidate.path),
				String(FieldEventType, "log_pruned"),
			)
		}
	}
	return removed
}

func (t RetentionTarget) candidates() []retentionCandidate {
	dir := strings.TrimSpace(t.Dir)
	if dir == "" {
		return nil
	}
	pattern := strings.TrimSpace(t.Pattern)
	if pattern == "" {
		pattern = "*"
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil
	}
	excluded := make(map[string]bool, len(t.Exclude))
	for _, path := range t.Exclude {
		if path = strings.TrimSpace(path); path != "" {
			excluded[absPath(path)] = true
		}
	}

	out := make([]retentionCandidate, 0, len(matches))
	for _, match := range matches {
		path := absPath(match)
		if excluded[path] {
			continue
		}
		info, err := os.Lstat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		out = append(out, retentionCandidate{path: path, modTime: info.ModTime()})
	}
	return out
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
