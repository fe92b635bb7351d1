package extract

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bookshelf/internal/testsupport"
)

func TestExtractEPUBReadsSpineSections(t *testing.T) {
	dir := t.TempDir()
	path := testsupport.WriteEPUB(t, filepath.Join(dir, "book.epub"),
		"<h1>Chapter One</h1><p>The ship drifted.</p><script>var x = 1;</script>",
		"<style>p { color: red }</style><p>Second   section.</p>",
		"<p>Third section.</p>",
	)

	e := New(Options{EpubSections: 2, MaxChars: 5000, Timeout: 5 * time.Second})
	text, err := e.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := "Chapter One The ship drifted. Second section."
	if text != want {
		t.Fatalf("unexpected text:\n got %q\nwant %q", text, want)
	}
}

func TestExtractEPUBStopsAtCharacterCap(t *testing.T) {
	dir := t.TempDir()
	long := "<p>" + strings.Repeat("word ", 50) + "</p>"
	path := testsupport.WriteEPUB(t, filepath.Join(dir, "long.epub"), long, long, long)

	text, err := New(Options{MaxChars: 30}).Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len([]rune(text)) != 30 {
		t.Fatalf("expected 30 characters, got %d: %q", len([]rune(text)), text)
	}
}

func TestExtractTextTruncatesOnRuneBoundary(t *testing.T) {
	path := testsupport.WriteText(t, filepath.Join(t.TempDir(), "notes.md"), "héllo wörld")
	text, err := New(Options{MaxChars: 7}).Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text != "héllo w" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractFailures(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name   string
		path   string
		target error
	}{
		{name: "unsupported", path: testsupport.WriteText(t, filepath.Join(dir, "image.png"), "x"), target: ErrUnsupported},
		{name: "missing text", path: filepath.Join(dir, "missing.txt")},
		{name: "not a zip", path: testsupport.WriteText(t, filepath.Join(dir, "broken.epub"), "plain")},
		{name: "no container", path: testsupport.WriteZip(t, filepath.Join(dir, "empty.epub"), [][2]string{{"mimetype", "application/epub+zip"}})},
		{name: "not a pdf", path: testsupport.WriteText(t, filepath.Join(dir, "broken.pdf"), "plain")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Options{}).Extract(context.Background(), tt.path)
			var extractErr *Error
			if !errors.As(err, &extractErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if !strings.HasPrefix(err.Error(), "Extraction Failed: ") {
				t.Fatalf("unexpected message %q", err.Error())
			}
			if extractErr.Path != tt.path {
				t.Fatalf("unexpected path %q", extractErr.Path)
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Fatalf("expected %v, got %v", tt.target, err)
			}
		})
	}
}

func TestRaceTimesOut(t *testing.T) {
	e := New(Options{Timeout: 20 * time.Millisecond})
	released := make(chan struct{})
	_, err := e.race(context.Background(), func(ctx context.Context) (string, error) {
		<-ctx.Done()
		close(released)
		return "", ctx.Err()
	})
	if !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("worker was not cancelled after the timeout")
	}
}

func TestRaceRecoversParserPanic(t *testing.T) {
	e := New(Options{Timeout: time.Second})
	_, err := e.race(context.Background(), func(context.Context) (string, error) {
		panic("bad xref table")
	})
	if err == nil || !strings.Contains(err.Error(), "bad xref table") {
		t.Fatalf("expected recovered panic, got %v", err)
	}
}

func TestSupported(t *testing.T) {
	for path, want := range map[string]bool{"a.EPUB": true, "b.pdf": true, "c.txt": true, "d.md": true, "e.mobi": false} {
		if Supported(path) != want {
			t.Fatalf("Supported(%q) != %v", path, want)
		}
	}
}
