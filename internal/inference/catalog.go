package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"bookshelf/internal/config"
	"bookshelf/internal/fileutil"
)

// ModelInfo describes a GGUF file found on disk.
type ModelInfo struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Folder    string `json:"folder"`
	SizeBytes int64  `json:"size_bytes"`
	Size      string `json:"size"`
	Active    bool   `json:"active"`
}

// catalogState is the on-disk shape of llm_config.json.
type catalogState struct {
	ModelsDir        string   `json:"models_dir"`
	ModelSearchPaths []string `json:"model_search_paths"`
	ActiveModel      string   `json:"active_model"`
}

// Catalog discovers local models and persists the active selection.
type Catalog struct {
	path     string
	defaults catalogState
	mu       sync.Mutex
}

// NewCatalog returns a catalog persisted at cfg.ModelStatePath(). Config
// values seed the state until a selection is saved.
func NewCatalog(cfg *config.Config) *Catalog {
	return &Catalog{
		path: cfg.ModelStatePath(),
		defaults: catalogState{
			ModelsDir:        cfg.Inference.ModelsDir,
			ModelSearchPaths: append([]string(nil), cfg.Inference.ModelSearchPaths...),
			ActiveModel:      cfg.Inference.ActiveModel,
		},
	}
}

func (c *Catalog) load() (catalogState, error) {
	state := c.defaults
	state.ModelSearchPaths = append([]string(nil), c.defaults.ModelSearchPaths...)

	data, err := os.ReadFile(c.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return state, fmt.Errorf("read model state: %w", err)
	}
	if err == nil && len(strings.TrimSpace(string(data))) > 0 {
		var stored catalogState
		if err := json.Unmarshal(data, &stored); err != nil {
			return state, fmt.Errorf("decode model state %s: %w", c.path, err)
		}
		if stored.ModelsDir != "" {
			state.ModelsDir = stored.ModelsDir
		}
		if len(stored.ModelSearchPaths) > 0 {
			state.ModelSearchPaths = stored.ModelSearchPaths
		}
		if stored.ActiveModel != "" {
			state.ActiveModel = stored.ActiveModel
		}
	}
	if state.ModelsDir != "" && !containsPath(state.ModelSearchPaths, state.ModelsDir) {
		state.ModelSearchPaths = append(state.ModelSearchPaths, state.ModelsDir)
	}
	return state, nil
}

func containsPath(paths []string, target string) bool {
	for _, p := range paths {
		if filepath.Clean(p) == filepath.Clean(target) {
			return true
		}
	}
	return false
}

// Scan lists .gguf files across the search paths. Missing folders are skipped.
func (c *Catalog) Scan() ([]ModelInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.load()
	if err != nil {
		return nil, err
	}

	var models []ModelInfo
	seen := make(map[string]struct{}, len(state.ModelSearchPaths))
	for _, dir := range state.ModelSearchPaths {
		dir = filepath.Clean(dir)
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}

		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("scan model folder %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".gguf") {
				continue
			}
			full := filepath.Join(dir, entry.Name())
			info := ModelInfo{
				Name:   entry.Name(),
				Path:   full,
				Folder: dir,
				Size:   "Unknown",
				Active: full == state.ActiveModel,
			}
			if stat, err := entry.Info(); err == nil {
				info.SizeBytes = stat.Size()
				info.Size = humanize.Bytes(uint64(stat.Size()))
			}
			models = append(models, info)
		}
	}
	sort.SliceStable(models, func(i, j int) bool { return models[i].Path < models[j].Path })
	return models, nil
}

// Select validates path and persists it as the active model.
func (c *Catalog) Select(path string) (string, error) {
	expanded, err := config.ExpandPath(strings.TrimSpace(path))
	if err != nil {
		return "", err
	}
	if err := ValidateModelFile(expanded); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	state, err := c.load()
	if err != nil {
		return "", err
	}
	state.ActiveModel = expanded
	if err := fileutil.WriteJSONAtomic(c.path, state); err != nil {
		return "", fmt.Errorf("save model state: %w", err)
	}
	return expanded, nil
}

// ActiveModel returns the selected model path or ErrModelNotSelected.
func (c *Catalog) ActiveModel() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, err := c.load()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(state.ActiveModel) == "" {
		return "", ErrModelNotSelected
	}
	return state.ActiveModel, nil
}
