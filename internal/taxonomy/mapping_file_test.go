package taxonomy_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bookshelf/internal/taxonomy"
)

func TestMappingFileMergeNeverRemoves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "taxonomy.json")
	file := taxonomy.NewMappingFile(path)

	empty, err := file.Load()
	require.NoError(t, err)
	require.Empty(t, empty)

	_, err = file.Merge(taxonomy.Mapping{"Space-Opera": "Science-Fiction", "Dragons": "Fantasy"})
	require.NoError(t, err)
	merged, err := file.Merge(taxonomy.Mapping{"Dragons": "Fiction", "Robotics": "Computer-Science", " ": "History"})
	require.NoError(t, err)

	want := taxonomy.Mapping{
		"Space-Opera": "Science-Fiction",
		"Dragons":     "Fiction",
		"Robotics":    "Computer-Science",
	}
	require.Equal(t, want, merged)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]string
	require.NoError(t, json.Unmarshal(data, &onDisk))
	require.Equal(t, map[string]string(want), onDisk)

	reloaded, err := taxonomy.NewMappingFile(path).Load()
	require.NoError(t, err)
	require.Equal(t, want, reloaded)
}

func TestMappingFileRejectsCorruptJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := taxonomy.NewMappingFile(path).Load()
	require.Error(t, err)
}
