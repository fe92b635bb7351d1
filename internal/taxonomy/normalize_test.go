package taxonomy_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"bookshelf/internal/taxonomy"
)

func TestNormalizeTag(t *testing.T) {
	cases := map[string]string{
		"Space Opera":      "space-opera",
		" ML_Ops ":         "ml-ops",
		"C++ Programming!": "c-programming",
		"--Node.js--":      "node.js",
		"World War  II":    "world-war-ii",
		"":                 "",
	}
	for in, want := range cases {
		require.Equal(t, want, taxonomy.NormalizeTag(in), "NormalizeTag(%q)", in)
	}
}

func TestFormatTag(t *testing.T) {
	cases := map[string]string{
		"space opera":       "Space-Opera",
		"MACHINE_learning":  "Machine-Learning",
		"  world--war ii  ": "World-War-Ii",
		"science-fiction":   "Science-Fiction",
		" _ - ":             "",
		"ai/ml":             "Ai/ml",
		"node.JS tips":      "Node.js-Tips",
		"o'reilly guides":   "O'reilly-Guides",
	}
	for in, want := range cases {
		require.Equal(t, want, taxonomy.FormatTag(in), "FormatTag(%q)", in)
	}
}

func TestSplitAndJoinTags(t *testing.T) {
	require.Equal(t, []string{"A", "B", "C"}, taxonomy.SplitTags(" A, ,B,C ,"))
	require.Nil(t, taxonomy.SplitTags("   "))
	require.Equal(t, "A, B", taxonomy.JoinTags([]string{"A", "B"}))
	require.Equal(t, "sciencefiction", taxonomy.CompactTag("Science-Fiction"))
}

func TestClassifyTag(t *testing.T) {
	cases := []struct {
		tag      string
		category string
	}{
		{"1990s", "History"},
		{"1066-Norman-Conquest", "History"},
		{"19th-Century", "History"},
		{"World-War-II", "History"},
		{"Science-Fiction", "Science-Fiction"},
		{"Philosophy", "Philosophy"},
		{"computer science", "Computer-Science"},
		// rules run before the vocabulary self-match
		{"non fiction", "Fiction"},
		{"Non-Fiction", "Fiction"},
		{"Artificial-Intelligence", "Arts-Design"},
		{"Biography-Memoir", "History"},
		{"Python3", "Computer-Science"},
		{"JavaScript", "Computer-Science"},
		{"Coding-Interviews", "Programming"},
		{"Machine-Learning", "Computer-Science"},
		{"Election-Campaigns", "Politics-Society"},
		{"Buddhism", "Religion-Spirituality"},
		{"Film-Theory", "Arts-Design"},
		{"Leadership", "Business-Economics"},
		{"Investing", "Finance"},
		{"Hard-Science-Fiction", "Science-Fiction"},
		{"Literary-Fiction", "Fiction"},
		{"Epic-Fantasy", "Fantasy"},
		{"Psychological-Thriller", "Mystery-Thriller"},
		{"Cookbook", "Cooking-Food"},
	}
	for _, tc := range cases {
		got, ok := taxonomy.ClassifyTag(tc.tag)
		require.True(t, ok, "ClassifyTag(%q) should match", tc.tag)
		require.Equal(t, tc.category, got, "ClassifyTag(%q)", tc.tag)
	}

	for _, tag := range []string{"Space-Opera", "Robotics", "", "---"} {
		_, ok := taxonomy.ClassifyTag(tag)
		require.False(t, ok, "ClassifyTag(%q) should not match", tag)
	}
}

func TestCanonicalCategory(t *testing.T) {
	got, ok := taxonomy.CanonicalCategory("computer science")
	require.True(t, ok)
	require.Equal(t, "Computer-Science", got)

	_, ok = taxonomy.CanonicalCategory("Sci-Fi")
	require.False(t, ok)
	require.Len(t, taxonomy.Categories, 25)
}
