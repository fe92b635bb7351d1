package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"bookshelf/internal/metrics"
)

func TestNewRegistryIsIndependent(t *testing.T) {
	first, err := metrics.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, err := metrics.NewRegistry(); err != nil {
		t.Fatalf("second registry: %v", err)
	}

	before := testutil.ToFloat64(metrics.TaxonomyTagsLearned.WithLabelValues(metrics.SourceRule))
	metrics.TaxonomyTagsLearned.WithLabelValues(metrics.SourceRule).Add(3)
	after := testutil.ToFloat64(metrics.TaxonomyTagsLearned.WithLabelValues(metrics.SourceRule))
	if after-before != 3 {
		t.Fatalf("expected counter to advance by 3, got %v", after-before)
	}

	families, err := first.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "bookshelf_taxonomy_tags_learned_total" {
			found = true
		}
	}
	if !found {
		t.Fatal("registry does not expose the taxonomy counter")
	}
}
