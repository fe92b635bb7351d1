package taxonomy_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"bookshelf/internal/taxonomy"
)

func TestParseImplications(t *testing.T) {
	text := "# Rules\n" +
		"- If a book is about `Robots`, it ensures it is also tagged with `Science-Fiction`.\n" +
		"- if tagged `Dragons` this ENSURES `Fantasy`\r\n" +
		"- Always tag `Cooking` as `Food` (no keyword)\n" +
		"- If `Lonely` but nothing else\n"

	got := taxonomy.ParseImplications(text)
	require.Equal(t, []taxonomy.Implication{
		{Child: "Robots", Parent: "Science-Fiction"},
		{Child: "Dragons", Parent: "Fantasy"},
	}, got)
	require.Empty(t, taxonomy.ParseImplications(""))
}
