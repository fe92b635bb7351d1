package taxonomy

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

// Dump formats.
const (
	FormatMarkdown = "markdown"
	FormatYAML     = "yaml"
	FormatTable    = "table"
)

// Dump writes mapping sorted by tag in the requested format.
func Dump(mapping Mapping, format string, w io.Writer) error {
	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatMarkdown:
		return dumpMarkdown(mapping, keys, w)
	case FormatYAML:
		return dumpYAML(mapping, keys, w)
	case FormatTable:
		return dumpTable(mapping, keys, w)
	default:
		return fmt.Errorf("unsupported dump format %q (want markdown, yaml or table)", format)
	}
}

func dumpMarkdown(mapping Mapping, keys []string, w io.Writer) error {
	var b strings.Builder
	b.WriteString("# Taxonomy Dump\n\n| Sub-Tag | Master Category |\n| :--- | :--- |\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "| %s | %s |\n", k, mapping[k])
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// dumpYAML groups tags under their category so the output reads as a tree.
func dumpYAML(mapping Mapping, keys []string, w io.Writer) error {
	grouped := make(map[string][]string)
	for _, k := range keys {
		grouped[mapping[k]] = append(grouped[mapping[k]], k)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(grouped); err != nil {
		return fmt.Errorf("encode taxonomy yaml: %w", err)
	}
	return enc.Close()
}

func dumpTable(mapping Mapping, keys []string, w io.Writer) error {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Sub-Tag", "Master Category"})
	for _, k := range keys {
		tw.AppendRow(table.Row{k, mapping[k]})
	}
	tw.AppendFooter(table.Row{fmt.Sprintf("%d tags", len(keys)), ""})
	_, err := io.WriteString(w, tw.Render()+"\n")
	return err
}
