package api_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"bookshelf/internal/api"
	"bookshelf/internal/inference"
	"bookshelf/internal/jobs"
	"bookshelf/internal/library"
)

func TestFromItem(t *testing.T) {
	year := 1965
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	item := library.Item{
		ID:              7,
		Path:            "/books/dune.epub",
		Title:           "Dune",
		Author:          "Frank Herbert",
		PublicationYear: &year,
		Tags:            "Space-Opera, Desert",
		MasterTags:      "Fiction, Science-Fiction",
		MetadataScanned: true,
		ContentScanned:  true,
		CreatedAt:       created,
	}

	got := api.FromItem(item)
	want := api.Book{
		ID:              7,
		Filepath:        "/books/dune.epub",
		Title:           "Dune",
		Author:          "Frank Herbert",
		PublicationYear: &year,
		Tags:            "Space-Opera, Desert",
		MasterTags:      "Fiction, Science-Fiction",
		MetadataScanned: true,
		ContentScanned:  true,
		LockedFields:    []string{},
		CreatedAt:       "2026-03-01T12:00:00.000Z",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("FromItem mismatch (-want +got):\n%s", diff)
	}

	if books := api.FromItems([]*library.Item{nil, &item}); len(books) != 1 {
		t.Fatalf("expected nil entries to be skipped, got %d books", len(books))
	}
}

func TestFromSnapshot(t *testing.T) {
	idle := api.FromSnapshot(jobs.Snapshot{})
	if idle.CurrentFile != nil || idle.StartTime != nil {
		t.Fatalf("idle snapshot should have null file and start time: %+v", idle)
	}

	started := time.UnixMilli(1_700_000_000_000)
	running := api.FromSnapshot(jobs.Snapshot{
		Active:      true,
		RunID:       "run-1",
		Processed:   3,
		Total:       10,
		CurrentFile: "dune.epub",
		StartTime:   started,
		TotalTokens: 420,
	})
	if running.CurrentFile == nil || *running.CurrentFile != "dune.epub" {
		t.Fatalf("unexpected current file: %v", running.CurrentFile)
	}
	if running.StartTime == nil || *running.StartTime != 1_700_000_000_000 {
		t.Fatalf("unexpected start time: %v", running.StartTime)
	}
	if !running.Active || running.Processed != 3 || running.Total != 10 || running.TotalTokens != 420 {
		t.Fatalf("unexpected status: %+v", running)
	}
}

func TestFromModels(t *testing.T) {
	got := api.FromModels([]inference.ModelInfo{{
		Name: "m.gguf", Path: "/models/m.gguf", Folder: "/models", SizeBytes: 2048, Size: "2.0 kB", Active: true,
	}})
	want := []api.Model{{
		Name: "m.gguf", Path: "/models/m.gguf", Folder: "/models", SizeBytes: 2048, Size: "2.0 kB", Active: true,
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("FromModels mismatch (-want +got):\n%s", diff)
	}
}

func TestScanRequestTargets(t *testing.T) {
	cases := []struct {
		name string
		body string
		want []string
	}{
		{name: "absent", body: `{}`, want: nil},
		{name: "null", body: `{"targetFilepaths":null}`, want: nil},
		{name: "empty list", body: `{"targetFilepaths":[]}`, want: []string{}},
		{name: "both fields", body: `{"targetFilepaths":["/a.epub"],"targetKeys":["/b.pdf"]}`, want: []string{"/a.epub", "/b.pdf"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req api.ScanRequest
			if err := json.Unmarshal([]byte(tc.body), &req); err != nil {
				t.Fatalf("decode: %v", err)
			}
			got := req.Targets()
			if (got == nil) != (tc.want == nil) {
				t.Fatalf("Targets() nil = %v, want nil = %v", got == nil, tc.want == nil)
			}
			if diff := cmp.Diff(tc.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Fatalf("Targets mismatch (-want +got):\n%s", diff)
			}
		})
	}

	// An empty list survives the client's encoding.
	encoded, err := json.Marshal(api.ScanRequest{TargetFilepaths: []string{}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(encoded) != `{"targetFilepaths":[]}` {
		t.Fatalf("unexpected encoding %s", encoded)
	}
}
