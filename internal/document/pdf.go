package document

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const (
	// kerning adjustments in a TJ array wider than this become a space
	tjSpaceThreshold = -200

	// text positioned within this many units of the current baseline stays on its line
	baselineTolerance = 2.0
)

// extractPDF reads every page's content stream and renders its text operators
func extractPDF(data []byte) (string, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return "", fmt.Errorf("pdfcpu read: %w", err)
	}

	var pages []string
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
		if err != nil || r == nil {
			continue
		}
		content, err := io.ReadAll(r)
		if err != nil || len(content) == 0 {
			continue
		}
		if text := textFromStream(content); text != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n"), nil
}

// textFromStream interprets the text showing and positioning operators of a
// content stream. Runs drawn on the same baseline join into one line with a
// space; a baseline move or an explicit next-line operator starts a new line.
func textFromStream(data []byte) string {
	var (
		sb       strings.Builder
		operands []token

		y, lineY  float64
		leading   float64
		started   bool
		moved     bool
		forceLine bool
	)

	show := func(s string) {
		if s == "" {
			return
		}
		switch {
		case !started:
		case forceLine || math.Abs(y-lineY) > baselineTolerance:
			if !strings.HasSuffix(sb.String(), "\n") {
				sb.WriteByte('\n')
			}
		case moved:
			sb.WriteByte(' ')
		}
		sb.WriteString(s)
		started = true
		lineY = y
		moved, forceLine = false, false
	}
	nextLine := func() {
		y -= leading
		moved, forceLine = true, true
	}

	lx := &lexer{data: data}
	for {
		tok, ok := lx.next()
		if !ok {
			break
		}
		if tok.kind != tokOperator {
			operands = append(operands, tok)
			continue
		}

		switch tok.text {
		case "BT":
			y = 0
			moved = true
		case "Tj":
			if s, ok := lastString(operands); ok {
				show(s)
			}
		case "'", "\"":
			nextLine()
			if s, ok := lastString(operands); ok {
				show(s)
			}
		case "TJ":
			var run strings.Builder
			for _, op := range operands {
				switch op.kind {
				case tokString:
					run.WriteString(op.text)
				case tokNumber:
					if n, err := strconv.ParseFloat(op.text, 64); err == nil && n < tjSpaceThreshold {
						run.WriteByte(' ')
					}
				}
			}
			show(run.String())
		case "TL":
			if n, ok := number(operands, 1); ok {
				leading = n
			}
		case "Td", "TD":
			if ty, ok := number(operands, 1); ok {
				y += ty
				if tok.text == "TD" {
					leading = -ty
				}
			}
			moved = true
		case "Tm":
			if f, ok := number(operands, 1); ok {
				y = f
			}
			moved = true
		case "T*":
			nextLine()
		}
		operands = operands[:0]
	}
	return sb.String()
}

// number returns the operand n positions from the end, 1 being the last
func number(ops []token, n int) (float64, bool) {
	if len(ops) < n || ops[len(ops)-n].kind != tokNumber {
		return 0, false
	}
	v, err := strconv.ParseFloat(ops[len(ops)-n].text, 64)
	return v, err == nil
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokString
	tokName
	tokOperator
	tokOther
)

type token struct {
	kind tokenKind
	text string
}

func lastString(ops []token) (string, bool) {
	for i := len(ops) - 1; i >= 0; i-- {
		if ops[i].kind == tokString {
			return ops[i].text, true
		}
	}
	return "", false
}

// lexer splits a content stream into operands and operators. Array brackets
// are dropped so TJ sees its elements as a flat operand list.
type lexer struct {
	data []byte
	pos  int
}

func (l *lexer) next() (token, bool) {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		switch {
		case isSpace(c), c == '[', c == ']':
			l.pos++
		case c == '%':
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
		case c == '(':
			return token{kind: tokString, text: l.literal()}, true
		case c == '<' && l.peek(1) == '<':
			l.pos += 2
			return token{kind: tokOther, text: "<<"}, true
		case c == '>' && l.peek(1) == '>':
			l.pos += 2
			return token{kind: tokOther, text: ">>"}, true
		case c == '<':
			return token{kind: tokString, text: l.hexString()}, true
		case c == '/':
			start := l.pos
			l.pos++
			l.word()
			return token{kind: tokName, text: string(l.data[start:l.pos])}, true
		case c == '\'' || c == '"':
			l.pos++
			return token{kind: tokOperator, text: string(c)}, true
		case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
			start := l.pos
			l.pos++
			for l.pos < len(l.data) && (l.data[l.pos] == '.' || (l.data[l.pos] >= '0' && l.data[l.pos] <= '9')) {
				l.pos++
			}
			return token{kind: tokNumber, text: string(l.data[start:l.pos])}, true
		default:
			start := l.pos
			l.word()
			if l.pos == start {
				l.pos++
				continue
			}
			return token{kind: tokOperator, text: string(l.data[start:l.pos])}, true
		}
	}
	return token{}, false
}

func (l *lexer) peek(n int) byte {
	if l.pos+n < len(l.data) {
		return l.data[l.pos+n]
	}
	return 0
}

func (l *lexer) word() {
	for l.pos < len(l.data) && !isSpace(l.data[l.pos]) && !isDelimiter(l.data[l.pos]) {
		l.pos++
	}
}

// literal reads a (...) string, honouring nesting and escapes
func (l *lexer) literal() string {
	var sb strings.Builder
	depth := 0
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		switch c {
		case '(':
			if depth > 0 {
				sb.WriteByte(c)
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				return sb.String()
			}
			sb.WriteByte(c)
		case '\\':
			l.escape(&sb)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func (l *lexer) escape(sb *strings.Builder) {
	if l.pos >= len(l.data) {
		return
	}
	c := l.data[l.pos]
	l.pos++
	switch c {
	case 'n':
		sb.WriteByte('\n')
	case 'r':
		sb.WriteByte('\r')
	case 't':
		sb.WriteByte('\t')
	case 'b', 'f':
	case '\r', '\n':
		// line continuation
	default:
		if c >= '0' && c <= '7' {
			val := int(c - '0')
			for i := 0; i < 2 && l.pos < len(l.data) && l.data[l.pos] >= '0' && l.data[l.pos] <= '7'; i++ {
				val = val*8 + int(l.data[l.pos]-'0')
				l.pos++
			}
			sb.WriteByte(byte(val))
			return
		}
		sb.WriteByte(c)
	}
}

// hexString reads a <...> string. Two-byte encodings are read as UTF-16BE
// when every high byte is zero.
func (l *lexer) hexString() string {
	l.pos++
	start := l.pos
	for l.pos < len(l.data) && l.data[l.pos] != '>' {
		l.pos++
	}
	digits := strings.Map(func(r rune) rune {
		if isSpace(byte(r)) {
			return -1
		}
		return r
	}, string(l.data[start:l.pos]))
	l.pos++

	if len(digits)%2 == 1 {
		digits += "0"
	}
	raw, err := hex.DecodeString(digits)
	if err != nil {
		return ""
	}
	if len(raw)%2 == 0 && len(raw) > 0 {
		wide := true
		for i := 0; i < len(raw); i += 2 {
			if raw[i] != 0 {
				wide = false
				break
			}
		}
		if wide {
			out := make([]byte, 0, len(raw)/2)
			for i := 1; i < len(raw); i += 2 {
				out = append(out, raw[i])
			}
			return string(out)
		}
	}
	return string(raw)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
