package services

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/nexconsult/mca-verify/internal/models"
)

var (
	// ErrUnknownTarget is returned for a target name with no configuration
	ErrUnknownTarget = errors.New("unknown target")
	// ErrInvalidIdentifier is returned when an identifier does not match its target's format
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// ChallengeSpec lists the ranked selectors of one challenge modal family
type ChallengeSpec struct {
	Modal   []string
	Canvas  []string
	Input   []string
	Submit  []string
	Refresh []string
	Errors  []string
	Success []string
}

// EntrySpec locates the identifier search form
type EntrySpec struct {
	Input  []string
	Submit []string
}

// TableColumn maps a table cell index to an output column
type TableColumn struct {
	Name  string
	Index int
}

// TableSpec describes the results table layout
type TableSpec struct {
	Selectors        []string
	MinColumns       int
	KeyColumn        int
	Columns          []TableColumn
	DocumentColumn   int
	DocumentControls []string
}

// PanelField is one value of a result panel
type PanelField struct {
	Name      string
	Selectors []string
}

// PanelSpec describes a single-record result panel
type PanelSpec struct {
	Fields []PanelField
}

// Target is the per-portal-page configuration driving the engine
type Target struct {
	Name              string
	Description       string
	IdentifierKind    string
	URL               string
	IdentifierPattern *regexp.Regexp

	Entry       EntrySpec
	FirstRound  ChallengeSpec
	Selection   []string
	SecondRound *ChallengeSpec

	Results []string
	Table   *TableSpec
	Panel   *PanelSpec
	Labels  ChallanLabels
}

// Columns returns the export columns of the target
func (t *Target) Columns() []string {
	var cols []string
	switch {
	case t.Table != nil:
		for _, c := range t.Table.Columns {
			cols = append(cols, c.Name)
		}
		cols = append(cols, models.FinancialColumns...)
	case t.Panel != nil:
		for _, f := range t.Panel.Fields {
			cols = append(cols, f.Name)
		}
	}
	return cols
}

// NormalizeIdentifier trims and upper-cases an identifier
func NormalizeIdentifier(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// ValidateIdentifier checks the identifier format of the target
func (t *Target) ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty %s", ErrInvalidIdentifier, t.IdentifierKind)
	}
	if t.IdentifierPattern != nil && !t.IdentifierPattern.MatchString(id) {
		return fmt.Errorf("%w: %q is not a valid %s", ErrInvalidIdentifier, id, t.IdentifierKind)
	}
	return nil
}

// Info describes the target for API consumers
func (t *Target) Info() models.TargetInfo {
	return models.TargetInfo{
		Name:           t.Name,
		Description:    t.Description,
		IdentifierKind: t.IdentifierKind,
		Columns:        t.Columns(),
	}
}

var annualFilingChallenge = ChallengeSpec{
	Modal:   []string{"#captchaModal", ".modal.show"},
	Canvas:  []string{"#captchaCanvas", "canvas"},
	Input:   []string{"#customCaptchaInput", "input[name='captcha']"},
	Submit:  []string{"#check", "has-text=button|Submit"},
	Refresh: []string{"#captchaRefresh", ".captcha-refresh"},
	Errors: []string{
		".errormsg",
		".alert-danger",
		"has-text=div, span, p, label|Incorrect Captcha",
		"has-text=div, span, p, label|Enter valid text",
		"has-text=div, span, p, label|Captcha match failed",
		"has-text=div, span, p, label|The captcha entered is incorrect",
	},
}

var resultsContainer = []string{"#screenone", ".annual_filing_table", "#annualFilingTable"}

var companyLink = []string{
	"xpath=//a[normalize-space()='{identifier}']",
	"has-text=a|{identifier}",
}

// AnnualFiling checks the annual filing status of a company by CIN. It runs
// two challenge rounds around the company selection step and extracts the
// filings table with one challan per row.
func AnnualFiling() *Target {
	first := annualFilingChallenge
	first.Success = companyLink

	second := annualFilingChallenge
	second.Success = resultsContainer

	return &Target{
		Name:              models.TargetAnnualFiling,
		Description:       "Annual filing status and challan payments of a company",
		IdentifierKind:    "CIN",
		URL:               "https://www.mca.gov.in/content/mca/global/en/mca/fo-llp-services/check-annual-filing-status.html",
		IdentifierPattern: regexp.MustCompile(`^[A-Z0-9]{21}$`),
		Entry: EntrySpec{
			Input:  []string{"#masterdata-search-box"},
			Submit: []string{"#searchicon"},
		},
		FirstRound:  first,
		Selection:   companyLink,
		SecondRound: &second,
		Results:     resultsContainer,
		Table: &TableSpec{
			Selectors:  []string{"table.tab-table", "#annualFilingTable table", "table"},
			MinColumns: 4,
			KeyColumn:  0,
			Columns: []TableColumn{
				{Name: "SRN", Index: 0},
				{Name: "Form Name", Index: 1},
				{Name: "Event Date", Index: 2},
			},
			DocumentColumn:   3,
			DocumentControls: []string{"a", "button"},
		},
		Labels: DefaultChallanLabels,
	}
}

// DINStatus checks the status of a director identification number. It runs a
// single challenge round and reads the result panel.
func DINStatus() *Target {
	return &Target{
		Name:              models.TargetDINStatus,
		Description:       "Status of a director identification number",
		IdentifierKind:    "DIN",
		URL:               "https://www.mca.gov.in/content/mca/global/en/mca/fo-llp-services/enquire-din-status.html",
		IdentifierPattern: regexp.MustCompile(`^[0-9]{8}$`),
		Entry: EntrySpec{
			Input:  []string{"input[placeholder='Enter Here']", "#din"},
			Submit: []string{"has-text=button|Submit", "#submitdin", "input[value='Submit']"},
		},
		FirstRound: ChallengeSpec{
			Modal:   []string{"#newCaptchaModal"},
			Canvas:  []string{"#new-captcha-canvas", "canvas"},
			Input:   []string{"#captcha-input"},
			Submit:  []string{"#validate-captcha"},
			Refresh: []string{"#captcha-refresh-img"},
			Errors: []string{
				".errormsg",
				".alert-danger",
				"has-text=div, span, p, label|Incorrect Captcha",
				"has-text=div, span, p, label|Enter valid text",
			},
			Success: []string{"text=DIN Details", "#resultPanel"},
		},
		Results: []string{"#resultPanel", "text=DIN Details"},
		Panel: &PanelSpec{
			Fields: []PanelField{
				{Name: "DIN", Selectors: []string{"#DIN"}},
				{Name: "Director Name", Selectors: []string{"#directorName"}},
				{Name: "DIN Status", Selectors: []string{"#DINstatus"}},
				{Name: "DIN Active", Selectors: []string{"#DINactive"}},
				{Name: "Approval Date", Selectors: []string{"#approvalDate"}},
			},
		},
		Labels: DefaultChallanLabels,
	}
}

// Registry holds the configured targets by name
type Registry struct {
	targets map[string]*Target
}

// NewRegistry creates a registry from targets
func NewRegistry(targets ...*Target) *Registry {
	r := &Registry{targets: make(map[string]*Target, len(targets))}
	for _, t := range targets {
		r.targets[t.Name] = t
	}
	return r
}

// DefaultRegistry returns the registry of all built-in targets
func DefaultRegistry() *Registry {
	return NewRegistry(AnnualFiling(), DINStatus())
}

// Lookup returns the target called name
func (r *Registry) Lookup(name string) (*Target, error) {
	t, ok := r.targets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, name)
	}
	return t, nil
}

// List returns the targets sorted by name
func (r *Registry) List() []*Target {
	out := make([]*Target, 0, len(r.targets))
	for _, t := range r.targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
