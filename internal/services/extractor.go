package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/nexconsult/mca-verify/internal/browser"
	"github.com/nexconsult/mca-verify/internal/config"
	"github.com/nexconsult/mca-verify/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrResultsNotVisible is returned when the results container never renders
var ErrResultsNotVisible = errors.New("results container not visible")

// ExtractorService harvests records from the results page of a verified query
type ExtractorService struct {
	config   config.ExtractionConfig
	surface  Surface
	resolver *Resolver
	parser   DocumentParser
	store    ArtifactStore
	clock    Clock
	logger   *logrus.Entry
}

// NewExtractorService creates an extractor for one query run
func NewExtractorService(cfg config.ExtractionConfig, surface Surface, resolver *Resolver, parser DocumentParser, store ArtifactStore, clock Clock, logger *logrus.Entry) *ExtractorService {
	return &ExtractorService{
		config:   cfg,
		surface:  surface,
		resolver: resolver,
		parser:   parser,
		store:    store,
		clock:    clock,
		logger:   logger,
	}
}

// Extract waits for the results and returns one record per result row
func (e *ExtractorService) Extract(ctx context.Context, t *Target, identifier string) ([]models.FinalRecord, error) {
	container, ok := e.resolver.Locate(ctx, browser.Element{}, t.Results, e.config.ResultsTimeout)
	if !ok {
		return nil, ErrResultsNotVisible
	}
	if err := e.clock.Sleep(ctx, e.config.SettleDelay); err != nil {
		return nil, err
	}

	switch {
	case t.Table != nil:
		return e.extractTable(ctx, t)
	case t.Panel != nil:
		return e.extractPanel(ctx, container, t.Panel, identifier), nil
	}
	return nil, fmt.Errorf("target %s has no extraction layout", t.Name)
}

func (e *ExtractorService) extractTable(ctx context.Context, t *Target) ([]models.FinalRecord, error) {
	spec := t.Table
	table, ok := e.resolver.Locate(ctx, browser.Element{}, spec.Selectors, e.config.ResultsTimeout)
	if !ok {
		return nil, fmt.Errorf("results table not found")
	}
	html, err := e.surface.OuterHTML(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("read results table: %w", err)
	}

	rows, err := ParseTableRows(html, spec)
	if err != nil {
		return nil, err
	}
	e.logger.WithField("rows", len(rows)).Info("Results table parsed")

	// one retrieval at a time: the portal gives no ordering guarantee otherwise
	records := make([]models.FinalRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, e.processRow(ctx, spec, row, t.Labels))
	}
	return records, nil
}

// processRow retrieves and parses the row's document. Failures stay on the row.
func (e *ExtractorService) processRow(ctx context.Context, spec *TableSpec, row models.ExtractionRow, labels ChallanLabels) models.FinalRecord {
	log := e.logger.WithField("row_key", row.RowKey)

	if row.Document == nil {
		return models.NewFinalRecord(row, models.UnreadDocument())
	}

	parsed, path, err := e.readDocument(ctx, spec, row, labels)
	if err != nil {
		log.WithError(err).Warn("Row document not read, keeping defaults")
		rec := models.NewFinalRecord(row, models.UnreadDocument())
		rec.DocumentPath = path
		rec.DocumentError = err.Error()
		return rec
	}

	rec := models.NewFinalRecord(row, parsed)
	rec.DocumentPath = path
	log.WithFields(logrus.Fields{
		"filing_date": parsed.FilingDate,
		"amount_paid": parsed.AmountPaid,
		"late_fee":    parsed.LateFee,
	}).Info("Row document parsed")
	return rec
}

func (e *ExtractorService) readDocument(ctx context.Context, spec *TableSpec, row models.ExtractionRow, labels ChallanLabels) (models.ParsedDocument, string, error) {
	table, ok := e.resolver.Locate(ctx, browser.Element{}, spec.Selectors, 0)
	if !ok {
		return models.ParsedDocument{}, "", fmt.Errorf("results table no longer visible")
	}
	control, ok := e.resolver.Locate(ctx, table, row.Document.Selectors, 0)
	if !ok {
		return models.ParsedDocument{}, "", fmt.Errorf("document control not visible")
	}

	doc, err := e.surface.Retrieve(ctx, control, e.config.DocumentTimeout)
	if err != nil {
		return models.ParsedDocument{}, "", fmt.Errorf("retrieve document: %w", err)
	}

	path, err := e.store.SaveDocument(row.RowKey, doc)
	if err != nil {
		e.logger.WithError(err).Warn("Failed to save document")
	}

	text, err := e.parser.ExtractText(doc.Data)
	if err != nil {
		return models.ParsedDocument{}, path, fmt.Errorf("extract document text: %w", err)
	}
	return ParseChallan(text, labels), path, nil
}

func (e *ExtractorService) extractPanel(ctx context.Context, container browser.Element, spec *PanelSpec, identifier string) []models.FinalRecord {
	fields := make(map[string]string, len(spec.Fields))
	for _, f := range spec.Fields {
		value := models.NotAvailable
		if el, ok := e.resolver.Locate(ctx, container, f.Selectors, 0); ok {
			if v, err := e.surface.ReadField(ctx, el); err == nil && strings.TrimSpace(v) != "" {
				value = strings.TrimSpace(v)
			}
		} else if el, ok := e.resolver.Locate(ctx, browser.Element{}, f.Selectors, 0); ok {
			// some portal versions render fields outside the panel
			if v, err := e.surface.ReadField(ctx, el); err == nil && strings.TrimSpace(v) != "" {
				value = strings.TrimSpace(v)
			}
		}
		fields[f.Name] = value
	}

	e.logger.WithField("fields", len(fields)).Info("Result panel read")
	return []models.FinalRecord{{RowKey: identifier, Fields: fields}}
}

// ParseTableRows reads the body rows of a results table. Header rows and rows
// with fewer than MinColumns cells are skipped. Document controls are
// addressed by their structural position relative to the table.
func ParseTableRows(html string, spec *TableSpec) ([]models.ExtractionRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse results table: %w", err)
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("no table in results markup")
	}

	var rows []models.ExtractionRow
	table.ChildrenFiltered("thead, tbody, tfoot").Each(func(_ int, section *goquery.Selection) {
		sectionTag := goquery.NodeName(section)
		sectionPos := section.PrevAllFiltered(sectionTag).Length() + 1

		section.ChildrenFiltered("tr").Each(func(_ int, tr *goquery.Selection) {
			cells := tr.ChildrenFiltered("td, th")
			if tr.ChildrenFiltered("td").Length() == 0 || cells.Length() < spec.MinColumns {
				return
			}

			index := len(rows)
			row := models.ExtractionRow{
				Index:  index,
				Fields: make(map[string]string, len(spec.Columns)),
			}
			for _, col := range spec.Columns {
				row.Fields[col.Name] = cellText(cells, col.Index)
			}
			row.RowKey = cellText(cells, spec.KeyColumn)
			if row.RowKey == "" {
				row.RowKey = fmt.Sprintf("row-%d", index+1)
			}

			if spec.DocumentColumn >= 0 && spec.DocumentColumn < cells.Length() {
				cell := cells.Eq(spec.DocumentColumn)
				if control := cell.Find(strings.Join(spec.DocumentControls, ", ")).First(); control.Length() > 0 {
					path := fmt.Sprintf(":scope > %s:nth-of-type(%d) > tr:nth-child(%d) > %s:nth-child(%d)",
						sectionTag, sectionPos, tr.Index()+1, goquery.NodeName(cell), cell.Index()+1)
					ref := &models.DocumentRef{Label: strings.TrimSpace(control.Text())}
					for _, c := range spec.DocumentControls {
						ref.Selectors = append(ref.Selectors, path+" "+c)
					}
					row.Document = ref
				}
			}
			rows = append(rows, row)
		})
	})
	return rows, nil
}

func cellText(cells *goquery.Selection, i int) string {
	if i < 0 || i >= cells.Length() {
		return ""
	}
	return strings.Join(strings.Fields(cells.Eq(i).Text()), " ")
}
