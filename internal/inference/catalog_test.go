package inference_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"bookshelf/internal/inference"
	"bookshelf/internal/testsupport"
)

func TestCatalogScanSelectAndPersist(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	extra := filepath.Join(testsupport.BaseDir(cfg), "more-models")
	cfg.Inference.ModelSearchPaths = append(cfg.Inference.ModelSearchPaths, extra, filepath.Join(testsupport.BaseDir(cfg), "absent"))

	testsupport.WriteText(t, filepath.Join(cfg.Inference.ModelsDir, "a.gguf"), "GGUF-A")
	secondary := testsupport.WriteText(t, filepath.Join(extra, "b.GGUF"), "GGUF-B")
	testsupport.WriteText(t, filepath.Join(extra, "notes.txt"), "ignore me")

	catalog := inference.NewCatalog(cfg)
	if _, err := catalog.ActiveModel(); !errors.Is(err, inference.ErrModelNotSelected) {
		t.Fatalf("expected ErrModelNotSelected, got %v", err)
	}

	models, err := catalog.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %+v", models)
	}
	for _, model := range models {
		if model.Active {
			t.Fatalf("nothing should be active yet: %+v", model)
		}
		if model.SizeBytes != 6 || model.Size != "6 B" {
			t.Fatalf("unexpected size for %s: %d %q", model.Name, model.SizeBytes, model.Size)
		}
	}

	selected, err := catalog.Select(secondary)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if selected != secondary {
		t.Fatalf("unexpected selection %q", selected)
	}
	if _, err := os.Stat(cfg.ModelStatePath()); err != nil {
		t.Fatalf("expected persisted state: %v", err)
	}

	reopened := inference.NewCatalog(cfg)
	active, err := reopened.ActiveModel()
	if err != nil || active != secondary {
		t.Fatalf("expected persisted active model %q, got %q (%v)", secondary, active, err)
	}
	models, err = reopened.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	for _, model := range models {
		if model.Active != (model.Path == secondary) {
			t.Fatalf("unexpected active flag on %+v", model)
		}
	}

	if _, err := catalog.Select(filepath.Join(extra, "nope.gguf")); err == nil {
		t.Fatal("expected selecting a missing file to fail")
	}
	active, _ = catalog.ActiveModel()
	if active != secondary {
		t.Fatalf("failed selection must not change active model, got %q", active)
	}
}

func TestServiceRequiresSelection(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	service := inference.NewService(inference.NewGateway(&testsupport.FakeBackend{}, cfg.Inference.ContextSizes, nil), inference.NewCatalog(cfg))
	if _, err := service.Complete(t.Context(), inference.Request{System: "s", User: "u"}); !errors.Is(err, inference.ErrModelNotSelected) {
		t.Fatalf("expected ErrModelNotSelected, got %v", err)
	}

	model := testsupport.WriteText(t, filepath.Join(cfg.Inference.ModelsDir, "m.gguf"), "GGUF")
	if _, err := service.Catalog().Select(model); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if _, err := service.Complete(t.Context(), inference.Request{System: "s", User: "u"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if service.Gateway().ActiveModel() != model {
		t.Fatalf("expected gateway to load %q", model)
	}
}
