package services_test

import (
	"context"
	"testing"

	"bookshelf/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithItemID(ctx, 42)
	ctx = services.WithJob(ctx, "scan")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.ItemIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected item id: %v %v", id, ok)
	}
	if job, ok := services.JobFromContext(ctx); !ok || job != "scan" {
		t.Fatalf("unexpected job: %v %v", job, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankJobPreservesContext(t *testing.T) {
	ctx := services.WithJob(context.Background(), "")
	if _, ok := services.JobFromContext(ctx); ok {
		t.Fatal("expected no job value")
	}
	if _, ok := services.ItemIDFromContext(context.Background()); ok {
		t.Fatal("expected no item id on empty context")
	}
}
