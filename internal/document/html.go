package document

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

const blockElements = "p, div, li, br, h1, h2, h3, h4, h5, h6, section, article, header, footer"

// extractHTML renders an HTML document as text with block elements on their
// own lines and table cells separated by spaces.
func extractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	doc.Find("script, style, noscript, head").Remove()
	doc.Find("td, th").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	// rows end inside their last cell, where text nodes are always kept
	doc.Find("tr").Each(func(_ int, s *goquery.Selection) {
		s.Children().Last().AppendHtml("\n")
	})
	doc.Find(blockElements).Each(func(_ int, s *goquery.Selection) {
		s.BeforeHtml("\n")
		s.AfterHtml("\n")
	})

	return doc.Text(), nil
}
