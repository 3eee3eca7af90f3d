package browser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestElement_CSS(t *testing.T) {
	el := Element{Ref: "abc", Selector: "#captcha-input"}
	assert.Equal(t, `[data-mca-ref="abc"]`, el.CSS())
	assert.Equal(t, "#captcha-input", el.String())
	assert.False(t, el.IsZero())
	assert.Equal(t, "document", Element{}.String())
}

func TestDocument_Extension(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
		want string
	}{
		{"pdf magic", Document{Data: []byte("%PDF-1.4\n...")}, ".pdf"},
		{"html content type", Document{Data: []byte("x"), ContentType: "text/html"}, ".html"},
		{"pdf filename", Document{Data: []byte("x"), Filename: "Challan.PDF"}, ".pdf"},
		{"html sniffed", Document{Data: []byte("  <!DOCTYPE html><html></html>")}, ".html"},
		{"unknown", Document{Data: []byte{0x00, 0x01}}, ".bin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.doc.Extension())
		})
	}
}

func TestFindScript_QuotesArguments(t *testing.T) {
	script := fmt.Sprintf(findScript, "", `//a[normalize-space()='U1']`, "ref-1")
	assert.True(t, strings.HasSuffix(script, `})("", "//a[normalize-space()='U1']", "ref-1")`))
}
