package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nexconsult/mca-verify/internal/document"
	"github.com/nexconsult/mca-verify/internal/export"
	"github.com/nexconsult/mca-verify/internal/models"
	"github.com/nexconsult/mca-verify/internal/services"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const challanFetchTimeout = 30 * time.Second

var (
	challansIn  string
	challansOut string
)

// ChallanHeader is the header row of the challan workbook
var ChallanHeader = []string{"SRN", "Date of Filing", "Amount Paid", "Late Fee"}

var challansCmd = &cobra.Command{
	Use:   "challans",
	Short: "Read payment challans listed in a workbook",
	Long: `Read (SRN, Challan URL) rows from the first sheet of --in, download each
challan and write its filing date, amount paid and late fee to --out.`,
	RunE: runChallans,
}

func init() {
	challansCmd.Flags().StringVar(&challansIn, "in", "", "input workbook (required)")
	challansCmd.Flags().StringVar(&challansOut, "out", "", "output workbook (required)")
	_ = challansCmd.MarkFlagRequired("in")
	_ = challansCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(challansCmd)
}

func runChallans(cmd *cobra.Command, args []string) error {
	log := setupLogger()

	rows, err := export.ReadXLSX(challansIn, 1)
	if err != nil {
		return err
	}

	p := &challanProcessor{
		client: &http.Client{Timeout: challanFetchTimeout},
		parser: document.NewParser(log),
		labels: services.DefaultChallanLabels,
		logger: log,
	}
	out := p.process(cmd.Context(), rows)

	if err := export.WriteXLSX(challansOut, ChallanHeader, out); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"rows": len(out), "path": challansOut}).Info("Challans written")
	return nil
}

type challanProcessor struct {
	client *http.Client
	parser services.DocumentParser
	labels services.ChallanLabels
	logger *logrus.Logger
}

// process returns one output row per input row with an SRN. A row whose
// challan cannot be fetched or read keeps the unread defaults.
func (p *challanProcessor) process(ctx context.Context, rows [][]string) [][]string {
	var out [][]string
	for _, row := range rows {
		srn, link := cell(row, 0), cell(row, 1)
		if srn == "" {
			continue
		}

		parsed := models.UnreadDocument()
		if link != "" {
			if doc, err := p.read(ctx, link); err != nil {
				p.logger.WithFields(logrus.Fields{"srn": srn, "url": link}).WithError(err).Warn("Challan not read")
			} else {
				parsed = doc
			}
		}
		out = append(out, []string{srn, parsed.FilingDate, parsed.AmountPaid, parsed.LateFee})
	}
	return out
}

func (p *challanProcessor) read(ctx context.Context, link string) (models.ParsedDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return models.ParsedDocument{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return models.ParsedDocument{}, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.ParsedDocument{}, fmt.Errorf("fetch: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.ParsedDocument{}, fmt.Errorf("read body: %w", err)
	}

	text, err := p.parser.ExtractText(data)
	if err != nil {
		return models.ParsedDocument{}, err
	}
	return services.ParseChallan(text, p.labels), nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
