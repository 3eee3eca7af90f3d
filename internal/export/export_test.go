package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nexconsult/mca-verify/internal/logger"
	"github.com/nexconsult/mca-verify/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testColumns = []string{"SRN", "Form Name", models.ColumnFilingDate, models.ColumnAmountPaid, models.ColumnLateFee}

func testRecords() []models.FinalRecord {
	return []models.FinalRecord{
		{
			RowKey:     "R1",
			Fields:     map[string]string{"SRN": "R1", "Form Name": "AOC-4"},
			FilingDate: models.NotAvailable,
			AmountPaid: models.NotAvailable,
			LateFee:    models.NotAvailable,
		},
		{
			RowKey:     "R2",
			Fields:     map[string]string{"SRN": "R2", "Form Name": "MGT-7"},
			FilingDate: "12/05/2023",
			AmountPaid: "1,250.00",
			LateFee:    "0.00",
		},
	}
}

func TestXLSXSink_HeaderThenRowsInColumnOrder(t *testing.T) {
	dir := t.TempDir()
	sink := NewXLSXSink(dir, logger.Discard())

	path, err := sink.Write(context.Background(), "U45400DL2007PTC171129", testColumns, testRecords())
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))

	rows, err := ReadXLSX(path, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, testColumns, rows[0])
	assert.Equal(t, []string{"R1", "AOC-4", "N/A", "N/A", "N/A"}, rows[1])
	assert.Equal(t, []string{"R2", "MGT-7", "12/05/2023", "1,250.00", "0.00"}, rows[2])
}

func TestReadXLSX_SkipRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.xlsx")
	require.NoError(t, WriteXLSX(path, []string{"SRN", "Challan URL"}, [][]string{
		{"A1", "https://example.test/a1.pdf"},
	}))

	rows, err := ReadXLSX(path, 1)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"A1", "https://example.test/a1.pdf"}}, rows)

	_, err = ReadXLSX(filepath.Join(t.TempDir(), "missing.xlsx"), 0)
	assert.Error(t, err)
}

func TestJSONSink(t *testing.T) {
	sink := NewJSONSink(t.TempDir(), logger.Discard())

	path, err := sink.Write(context.Background(), "q", testColumns, testRecords())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rows []map[string]string
	require.NoError(t, json.Unmarshal(data, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "1,250.00", rows[1][models.ColumnAmountPaid])
	assert.Equal(t, "AOC-4", rows[0]["Form Name"])
}

func TestNew(t *testing.T) {
	sink, err := New("XLSX", t.TempDir(), logger.Discard())
	require.NoError(t, err)
	assert.IsType(t, &XLSXSink{}, sink)

	sink, err = New("none", "", logger.Discard())
	require.NoError(t, err)
	assert.Nil(t, sink)

	_, err = New("csv", "", logger.Discard())
	assert.Error(t, err)
}

func TestWrite_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewXLSXSink(t.TempDir(), logger.Discard()).Write(ctx, "q", testColumns, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileName(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	assert.Equal(t, "din_20240309_140507.xlsx", FileName("din", FormatXLSX, at))
}
