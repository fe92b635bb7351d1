package tagging

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"bookshelf/internal/fileutil"
	"bookshelf/internal/logging"
)

// RulesFile is the user-authored tagging_rules.md. Reads are served from a
// cache while Watch is running; otherwise every read goes to disk.
type RulesFile struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	content  string
	cached   bool
	watching bool
}

// NewRulesFile returns a handle for the rules stored at path.
func NewRulesFile(path string, logger *slog.Logger) *RulesFile {
	return &RulesFile{
		path:   path,
		logger: logging.NewComponentLogger(logger, "rules"),
	}
}

// Path returns the file location.
func (r *RulesFile) Path() string {
	return r.path
}

// Rules returns the current rule text. A missing file yields "".
func (r *RulesFile) Rules() (string, error) {
	r.mu.RLock()
	if r.watching && r.cached {
		content := r.content
		r.mu.RUnlock()
		return content, nil
	}
	r.mu.RUnlock()
	return r.reload()
}

// Exists reports whether the rules file is present.
func (r *RulesFile) Exists() bool {
	_, err := os.Stat(r.path)
	return err == nil
}

func (r *RulesFile) reload() (string, error) {
	data, err := os.ReadFile(r.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("read tagging rules: %w", err)
	}
	content := string(data)
	r.mu.Lock()
	r.content = content
	r.cached = true
	r.mu.Unlock()
	return content, nil
}

// Save replaces the rule text atomically.
func (r *RulesFile) Save(content string) error {
	if err := fileutil.WriteFileAtomic(r.path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("save tagging rules: %w", err)
	}
	r.mu.Lock()
	r.content = content
	r.cached = true
	r.mu.Unlock()
	return nil
}

// Watch keeps the cache in sync with edits made outside the process until ctx
// is cancelled. The parent directory is watched so editors that replace the
// file by rename are picked up.
func (r *RulesFile) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create rules watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create rules directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	if _, err := r.reload(); err != nil {
		return err
	}

	r.mu.Lock()
	r.watching = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.watching = false
		r.mu.Unlock()
	}()

	name := filepath.Clean(r.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if _, err := r.reload(); err != nil {
				r.logger.Warn("reload tagging rules", logging.Error(err))
				continue
			}
			r.logger.Debug("tagging rules reloaded", logging.String("op", event.Op.String()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("rules watcher error", logging.Error(err))
		}
	}
}
