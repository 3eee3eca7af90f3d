package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nexconsult/mca-verify/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/tealeg/xlsx/v2"
)

const sheetName = "Results"

// XLSXSink writes a workbook with a header row and one row per record
type XLSXSink struct {
	dir    string
	logger *logrus.Logger
}

// NewXLSXSink creates an xlsx sink writing into dir
func NewXLSXSink(dir string, logger *logrus.Logger) *XLSXSink {
	return &XLSXSink{dir: dir, logger: logger}
}

func (s *XLSXSink) Write(ctx context.Context, name string, columns []string, records []models.FinalRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, rec.Values(columns))
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(s.dir, FileName(name, FormatXLSX, time.Now()))
	if err := WriteXLSX(path, columns, rows); err != nil {
		return "", err
	}

	s.logger.WithFields(logrus.Fields{
		"path":    path,
		"records": len(records),
	}).Info("Records exported")
	return path, nil
}

// WriteXLSX saves header and rows as the single sheet of a new workbook
func WriteXLSX(path string, header []string, rows [][]string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return fmt.Errorf("xlsx: add sheet: %w", err)
	}

	appendRow(sheet, header)
	for _, r := range rows {
		appendRow(sheet, r)
	}

	if err := f.Save(path); err != nil {
		return fmt.Errorf("xlsx: save %s: %w", path, err)
	}
	return nil
}

func appendRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// ReadXLSX returns the rows of the first sheet, skipping skipRows header rows
func ReadXLSX(path string, skipRows int) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("xlsx: open %s: %w", path, err)
	}
	if len(f.Sheets) == 0 {
		return nil, fmt.Errorf("xlsx: %s has no sheets", path)
	}

	var rows [][]string
	for i, row := range f.Sheets[0].Rows {
		if i < skipRows || row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
