package testsupport

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// WriteText writes content to path, creating parent directories.
func WriteText(t testing.TB, path, content string) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteZip writes a zip archive holding the named entries in order.
func WriteZip(t testing.TB, path string, entries [][2]string) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, entry := range entries {
		w, err := zw.Create(entry[0])
		if err != nil {
			t.Fatalf("zip entry %s: %v", entry[0], err)
		}
		if _, err := w.Write([]byte(entry[1])); err != nil {
			t.Fatalf("zip write %s: %v", entry[0], err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return path
}

// WriteEPUB writes a minimal EPUB whose spine lists the given XHTML bodies in order.
func WriteEPUB(t testing.TB, path string, sections ...string) string {
	t.Helper()

	entries := [][2]string{
		{"mimetype", "application/epub+zip"},
		{"META-INF/container.xml", `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`},
	}

	manifest := ""
	spine := ""
	for i, body := range sections {
		id := "s" + strconv.Itoa(i)
		href := "text/" + id + ".xhtml"
		manifest += `<item id="` + id + `" href="` + href + `" media-type="application/xhtml+xml"/>`
		spine += `<itemref idref="` + id + `"/>`
		entries = append(entries, [2]string{"OEBPS/" + href,
			`<html xmlns="http://www.w3.org/1999/xhtml"><head><title>x</title></head><body>` + body + `</body></html>`})
	}
	entries = append(entries, [2]string{"OEBPS/content.opf", `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <manifest>` + manifest + `</manifest>
  <spine>` + spine + `</spine>
</package>`})

	return WriteZip(t, path, entries)
}

