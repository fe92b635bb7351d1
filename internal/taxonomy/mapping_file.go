package taxonomy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"bookshelf/internal/fileutil"
)

// MappingFile persists a Mapping as a flat JSON object. Writes take an
// advisory file lock so a CLI invocation and the daemon never interleave.
type MappingFile struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
}

// NewMappingFile returns a handle for the mapping stored at path.
func NewMappingFile(path string) *MappingFile {
	return &MappingFile{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the file location.
func (f *MappingFile) Path() string {
	return f.path
}

// Load reads the mapping. A missing file is an empty mapping.
func (f *MappingFile) Load() (Mapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readLocked()
}

// Merge adds entries to the stored mapping and rewrites the file. Existing
// keys are overwritten by entries but never removed.
func (f *MappingFile) Merge(entries Mapping) (Mapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return nil, fmt.Errorf("create taxonomy directory: %w", err)
	}
	if err := f.lock.Lock(); err != nil {
		return nil, fmt.Errorf("lock taxonomy mapping: %w", err)
	}
	defer func() { _ = f.lock.Unlock() }()

	current, err := f.readLocked()
	if err != nil {
		return nil, err
	}
	for k, v := range entries {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		current[k] = v
	}
	if err := f.writeLocked(current); err != nil {
		return nil, err
	}
	return current, nil
}

func (f *MappingFile) readLocked() (Mapping, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Mapping{}, nil
		}
		return nil, fmt.Errorf("read taxonomy mapping: %w", err)
	}
	mapping := Mapping{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return mapping, nil
	}
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("decode taxonomy mapping %s: %w", f.path, err)
	}
	return mapping, nil
}

func (f *MappingFile) writeLocked(mapping Mapping) error {
	if err := fileutil.WriteJSONAtomic(f.path, mapping); err != nil {
		return fmt.Errorf("write taxonomy mapping: %w", err)
	}
	return nil
}
