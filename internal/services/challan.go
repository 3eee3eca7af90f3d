package services

import (
	"strings"

	"github.com/nexconsult/mca-verify/internal/models"
)

// ChallanLabels are the markers searched for in challan text
type ChallanLabels struct {
	FilingDate string
	Amount     string
	LateFee    string
}

// DefaultChallanLabels matches the payment challans issued by the portal
var DefaultChallanLabels = ChallanLabels{
	FilingDate: "Service Request Date",
	Amount:     "Total",
	LateFee:    "Additional",
}

// ParseChallan derives the filing date, amount paid and late fee from
// document text. Later matching lines override earlier ones. It is a pure
// function of its inputs.
func ParseChallan(text string, labels ChallanLabels) models.ParsedDocument {
	doc := models.ParsedDocument{
		Text:       text,
		FilingDate: models.NotAvailable,
		AmountPaid: models.NotAvailable,
		LateFee:    models.NotAvailable,
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if key, value, ok := strings.Cut(line, ":"); ok && labels.FilingDate != "" && strings.Contains(key, labels.FilingDate) {
			if v := strings.TrimSpace(value); v != "" {
				doc.FilingDate = v
			}
		}
		if labels.Amount != "" && strings.Contains(line, labels.Amount) {
			if tok, ok := lastNumericToken(line); ok {
				doc.AmountPaid = tok
			}
		}
		if labels.LateFee != "" && strings.Contains(line, labels.LateFee) {
			if tok, ok := lastNumericToken(line); ok {
				doc.LateFee = tok
			}
		}
	}

	// no additional charge is a zero fee, not an unreadable one
	if doc.LateFee == models.NotAvailable {
		doc.LateFee = models.ZeroAmount
	}
	return doc
}

func lastNumericToken(line string) (string, bool) {
	tokens := strings.Fields(line)
	for i := len(tokens) - 1; i >= 0; i-- {
		if IsNumericToken(tokens[i]) {
			return tokens[i], true
		}
	}
	return "", false
}

// IsNumericToken reports whether tok is digits with at most one decimal
// point and any number of thousands separators
func IsNumericToken(tok string) bool {
	s := strings.ReplaceAll(tok, ",", "")
	if strings.Count(s, ".") > 1 {
		return false
	}
	s = strings.Replace(s, ".", "", 1)
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
