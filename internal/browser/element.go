package browser

import (
	"fmt"
	"strings"
)

// refAttr is stamped on every element a lookup resolves
const refAttr = "data-mca-ref"

// Element is a handle on a resolved element. The zero value addresses the whole document.
type Element struct {
	Ref      string
	Selector string
}

// IsZero reports whether e is the document scope
func (e Element) IsZero() bool {
	return e.Ref == ""
}

// CSS returns the query addressing the element
func (e Element) CSS() string {
	return fmt.Sprintf(`[%s="%s"]`, refAttr, e.Ref)
}

func (e Element) String() string {
	if e.IsZero() {
		return "document"
	}
	return e.Selector
}

// Retrieval channels
const (
	ViaTab      = "tab"
	ViaDownload = "download"
)

// Document is a file retrieved from the portal
type Document struct {
	Data        []byte
	URL         string
	Filename    string
	ContentType string
	Via         string
}

// Extension guesses a file extension from content type and magic bytes
func (d Document) Extension() string {
	switch {
	case strings.HasPrefix(string(d.Data), "%PDF"):
		return ".pdf"
	case strings.Contains(d.ContentType, "html"):
		return ".html"
	case strings.HasSuffix(strings.ToLower(d.Filename), ".pdf"):
		return ".pdf"
	}
	trimmed := strings.TrimSpace(strings.ToLower(string(head(d.Data, 512))))
	if strings.HasPrefix(trimmed, "<!doctype html") || strings.HasPrefix(trimmed, "<html") {
		return ".html"
	}
	return ".bin"
}

// PageCapture is the raw UI state at one point in time
type PageCapture struct {
	URL        string
	HTML       string
	Screenshot []byte
}

func head(b []byte, n int) []byte {
	if len(b) < n {
		return b
	}
	return b[:n]
}
