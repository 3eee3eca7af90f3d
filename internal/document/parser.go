// Package document turns retrieved challan documents into plain text lines.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

var (
	// ErrEmptyDocument is returned when a document yields no text
	ErrEmptyDocument = errors.New("document has no text")
	// ErrUnsupported is returned for content that is neither PDF, HTML nor text
	ErrUnsupported = errors.New("unsupported document format")
)

// Kind is the detected document format
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindHTML Kind = "html"
	KindText Kind = "text"
)

// Parser extracts text from PDF, HTML and plain text documents
type Parser struct {
	logger *logrus.Logger
}

// NewParser creates a new document parser
func NewParser(logger *logrus.Logger) *Parser {
	return &Parser{logger: logger}
}

// Detect sniffs the format of data
func Detect(data []byte) (Kind, error) {
	trimmed := bytes.TrimLeftFunc(data, unicode.IsSpace)
	if len(trimmed) == 0 {
		return "", ErrEmptyDocument
	}
	if bytes.HasPrefix(trimmed, []byte("%PDF")) {
		return KindPDF, nil
	}

	prefix := strings.ToLower(string(trimmed[:min(len(trimmed), 512)]))
	if strings.HasPrefix(prefix, "<!doctype html") || strings.HasPrefix(prefix, "<html") ||
		strings.Contains(prefix, "<body") || strings.Contains(prefix, "<table") {
		return KindHTML, nil
	}
	if utf8.Valid(data) && printableRatio(string(data)) > 0.9 {
		return KindText, nil
	}
	return "", ErrUnsupported
}

// ExtractText returns the document text, one visual line per text line
func (p *Parser) ExtractText(data []byte) (string, error) {
	kind, err := Detect(data)
	if err != nil {
		return "", err
	}

	var text string
	switch kind {
	case KindPDF:
		text, err = extractPDF(data)
	case KindHTML:
		text, err = extractHTML(data)
	default:
		text = string(data)
	}
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", kind, err)
	}

	text = cleanLines(text)
	if text == "" {
		return "", ErrEmptyDocument
	}

	p.logger.WithFields(logrus.Fields{
		"kind":  kind,
		"bytes": len(data),
		"lines": strings.Count(text, "\n") + 1,
	}).Debug("Document text extracted")
	return text, nil
}

// cleanLines collapses runs of whitespace inside each line and drops empty lines
func cleanLines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.FieldsFunc(line, func(r rune) bool {
			return unicode.IsSpace(r) || !unicode.IsPrint(r)
		}), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func printableRatio(s string) float64 {
	if s == "" {
		return 0
	}
	var printable, total int
	for _, r := range s {
		total++
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printable++
		}
	}
	return float64(printable) / float64(total)
}
