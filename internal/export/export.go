// Package export writes final records to files for downstream consumers.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nexconsult/mca-verify/internal/models"
	"github.com/sirupsen/logrus"
)

// Supported formats
const (
	FormatXLSX = "xlsx"
	FormatJSON = "json"
	FormatNone = "none"
)

// Sink writes one result set and returns the path it was written to
type Sink interface {
	Write(ctx context.Context, name string, columns []string, records []models.FinalRecord) (string, error)
}

// New returns the sink for format. FormatNone yields a nil sink.
func New(format, dir string, logger *logrus.Logger) (Sink, error) {
	switch strings.ToLower(format) {
	case FormatXLSX:
		return &XLSXSink{dir: dir, logger: logger}, nil
	case FormatJSON:
		return &JSONSink{dir: dir, logger: logger}, nil
	case FormatNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

// FileName builds a timestamped file name for a result set
func FileName(name, ext string, at time.Time) string {
	return fmt.Sprintf("%s_%s.%s", name, at.Format("20060102_150405"), ext)
}

// JSONSink writes records as an array of column→value objects
type JSONSink struct {
	dir    string
	logger *logrus.Logger
}

// NewJSONSink creates a JSON sink writing into dir
func NewJSONSink(dir string, logger *logrus.Logger) *JSONSink {
	return &JSONSink{dir: dir, logger: logger}
}

func (s *JSONSink) Write(ctx context.Context, name string, columns []string, records []models.FinalRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rows := make([]map[string]string, 0, len(records))
	for _, rec := range records {
		row := make(map[string]string, len(columns))
		for i, v := range rec.Values(columns) {
			row[columns[i]] = v
		}
		rows = append(rows, row)
	}

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal records: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	path := filepath.Join(s.dir, FileName(name, FormatJSON, time.Now()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	s.logger.WithFields(logrus.Fields{
		"path":    path,
		"records": len(records),
	}).Info("Records exported")
	return path, nil
}
