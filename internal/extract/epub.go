package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const containerPath = "META-INF/container.xml"

type epubContainer struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type epubPackage struct {
	Manifest []struct {
		ID   string `xml:"id,attr"`
		Href string `xml:"href,attr"`
	} `xml:"manifest>item"`
	Spine []struct {
		IDRef string `xml:"idref,attr"`
	} `xml:"spine>itemref"`
}

func readEPUB(ctx context.Context, filePath string, sections, maxChars int) (string, error) {
	archive, err := zip.OpenReader(filePath)
	if err != nil {
		return "", fmt.Errorf("open epub: %w", err)
	}
	defer archive.Close()

	files := make(map[string]*zip.File, len(archive.File))
	for _, f := range archive.File {
		files[f.Name] = f
	}

	var container epubContainer
	if err := decodeXMLEntry(files, containerPath, &container); err != nil {
		return "", err
	}
	if len(container.Rootfiles) == 0 || container.Rootfiles[0].FullPath == "" {
		return "", errors.New("epub container lists no rootfile")
	}
	opfPath := container.Rootfiles[0].FullPath

	var pkg epubPackage
	if err := decodeXMLEntry(files, opfPath, &pkg); err != nil {
		return "", err
	}
	hrefs := make(map[string]string, len(pkg.Manifest))
	for _, item := range pkg.Manifest {
		hrefs[item.ID] = item.Href
	}

	var b strings.Builder
	base := path.Dir(opfPath)
	for i, ref := range pkg.Spine {
		if i >= sections {
			break
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		href, ok := hrefs[ref.IDRef]
		if !ok {
			continue
		}
		if unescaped, err := url.PathUnescape(href); err == nil {
			href = unescaped
		}
		// Unreadable sections are skipped rather than failing the book.
		text, err := sectionText(files, path.Join(base, href))
		if err != nil || text == "" {
			continue
		}
		b.WriteString(text)
		b.WriteByte(' ')
		if utf8.RuneCountInString(b.String()) > maxChars {
			break
		}
	}
	return truncate(strings.TrimSpace(b.String()), maxChars), nil
}

func openEntry(files map[string]*zip.File, name string) (io.ReadCloser, error) {
	f, ok := files[name]
	if !ok {
		return nil, fmt.Errorf("epub entry %s not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open epub entry %s: %w", name, err)
	}
	return rc, nil
}

func decodeXMLEntry(files map[string]*zip.File, name string, target any) error {
	rc, err := openEntry(files, name)
	if err != nil {
		return err
	}
	defer rc.Close()
	decoder := xml.NewDecoder(rc)
	decoder.Strict = false
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func sectionText(files map[string]*zip.File, name string) (string, error) {
	rc, err := openEntry(files, name)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	doc, err := html.Parse(rc)
	if err != nil {
		return "", fmt.Errorf("parse section %s: %w", name, err)
	}
	var words []string
	collectText(doc, &words)
	return strings.Join(words, " "), nil
}

// collectText appends the whitespace-separated words of every text node
// outside script, style and head elements.
func collectText(n *html.Node, words *[]string) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "head":
			return
		}
	}
	if n.Type == html.TextNode {
		*words = append(*words, strings.Fields(n.Data)...)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, words)
	}
}
