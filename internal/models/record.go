package models

// Placeholder values for fields that could not be read
const (
	NotAvailable = "N/A"
	ZeroAmount   = "0.00"
)

// Financial columns appended to every table record
const (
	ColumnFilingDate = "Date of Filing"
	ColumnAmountPaid = "Amount Paid"
	ColumnLateFee    = "Late Fee"
)

// FinancialColumns lists the parsed document columns in export order
var FinancialColumns = []string{ColumnFilingDate, ColumnAmountPaid, ColumnLateFee}

// DocumentRef locates the document control of a row
type DocumentRef struct {
	Selectors []string `json:"selectors"`
	Label     string   `json:"label,omitempty"`
}

// ExtractionRow is one line of the results table
type ExtractionRow struct {
	Index    int               `json:"index"`
	RowKey   string            `json:"row_key"`
	Fields   map[string]string `json:"fields"`
	Document *DocumentRef      `json:"document,omitempty"`
}

// ParsedDocument holds the text of a fetched document and the fields derived from it
type ParsedDocument struct {
	Text       string `json:"-"`
	FilingDate string `json:"filing_date"`
	AmountPaid string `json:"amount_paid"`
	LateFee    string `json:"late_fee"`
}

// UnreadDocument is the value used when a row has no readable document
func UnreadDocument() ParsedDocument {
	return ParsedDocument{
		FilingDate: NotAvailable,
		AmountPaid: NotAvailable,
		LateFee:    NotAvailable,
	}
}

// FinalRecord merges a row's descriptive fields with its parsed document
type FinalRecord struct {
	RowKey        string            `json:"row_key"`
	Fields        map[string]string `json:"fields"`
	FilingDate    string            `json:"filing_date,omitempty"`
	AmountPaid    string            `json:"amount_paid,omitempty"`
	LateFee       string            `json:"late_fee,omitempty"`
	DocumentPath  string            `json:"document_path,omitempty"`
	DocumentError string            `json:"document_error,omitempty"`
}

// NewFinalRecord merges row and doc
func NewFinalRecord(row ExtractionRow, doc ParsedDocument) FinalRecord {
	fields := make(map[string]string, len(row.Fields))
	for k, v := range row.Fields {
		fields[k] = v
	}
	return FinalRecord{
		RowKey:     row.RowKey,
		Fields:     fields,
		FilingDate: doc.FilingDate,
		AmountPaid: doc.AmountPaid,
		LateFee:    doc.LateFee,
	}
}

// Value returns the record value for a column, "N/A" when missing
func (r FinalRecord) Value(column string) string {
	var v string
	switch column {
	case ColumnFilingDate:
		v = r.FilingDate
	case ColumnAmountPaid:
		v = r.AmountPaid
	case ColumnLateFee:
		v = r.LateFee
	default:
		v = r.Fields[column]
	}
	if v == "" {
		return NotAvailable
	}
	return v
}

// Values returns the record flattened in column order
func (r FinalRecord) Values(columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = r.Value(c)
	}
	return out
}
