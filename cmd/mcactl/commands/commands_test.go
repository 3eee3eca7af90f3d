package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/nexconsult/mca-verify/internal/document"
	"github.com/nexconsult/mca-verify/internal/export"
	"github.com/nexconsult/mca-verify/internal/logger"
	"github.com/nexconsult/mca-verify/internal/models"
	"github.com/nexconsult/mca-verify/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const challanText = `Payment Challan
Service Request Date : 14/11/2023
Normal Fee 300.00
Additional Fee 1,200.00
Total 1,500.00
`

func newProcessor(t *testing.T) (*challanProcessor, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/challan/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(challanText))
	})
	mux.HandleFunc("/challan/empty", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("   "))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	log := logger.Discard()
	return &challanProcessor{
		client: srv.Client(),
		parser: document.NewParser(log),
		labels: services.DefaultChallanLabels,
		logger: log,
	}, srv
}

func TestChallanProcessor(t *testing.T) {
	p, srv := newProcessor(t)

	rows := [][]string{
		{"R123", srv.URL + "/challan/ok"},
		{"R124", srv.URL + "/missing"},
		{"R125", srv.URL + "/challan/empty"},
		{"R126"},
		{"", srv.URL + "/challan/ok"},
	}

	out := p.process(context.Background(), rows)
	require.Len(t, out, 4)

	assert.Equal(t, []string{"R123", "14/11/2023", "1,500.00", "1,200.00"}, out[0])

	unread := models.UnreadDocument()
	for _, row := range out[1:] {
		assert.Equal(t, []string{unread.FilingDate, unread.AmountPaid, unread.LateFee}, row[1:])
	}
}

func TestChallanWorkbookRoundTrip(t *testing.T) {
	p, srv := newProcessor(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "in.xlsx")
	out := filepath.Join(dir, "out.xlsx")

	require.NoError(t, export.WriteXLSX(in, []string{"SRN", "Challan URL"}, [][]string{
		{"R123", srv.URL + "/challan/ok"},
	}))

	rows, err := export.ReadXLSX(in, 1)
	require.NoError(t, err)
	require.NoError(t, export.WriteXLSX(out, ChallanHeader, p.process(context.Background(), rows)))

	written, err := export.ReadXLSX(out, 0)
	require.NoError(t, err)
	require.Len(t, written, 2)
	assert.Equal(t, ChallanHeader, written[0])
	assert.Equal(t, "1,500.00", written[1][2])
}

func TestSummary(t *testing.T) {
	result := &models.QueryResult{
		Target:     models.TargetAnnualFiling,
		Identifier: "U45400DL2007PTC171129",
		Status:     models.StatusSucceeded,
		Retries:    1,
		Records:    []models.FinalRecord{{RowKey: "1"}, {RowKey: "2"}},
		ExportPath: "exports/annual.xlsx",
		DurationMs: 4200,
	}

	var buf bytes.Buffer
	require.NoError(t, writeSummary(&buf, summarize(result)))

	var s Summary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &s))
	assert.Equal(t, 2, s.Records)
	assert.Equal(t, models.StatusSucceeded, s.Status)
	assert.Equal(t, "exports/annual.xlsx", s.ExportPath)
}
