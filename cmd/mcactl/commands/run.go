package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nexconsult/mca-verify/internal/models"
	"github.com/nexconsult/mca-verify/internal/services"
	"github.com/spf13/cobra"
)

var (
	runTarget  string
	runID      string
	runOut     string
	runNoCache bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one query and print its summary",
	Long: `Run one query synchronously. The records are exported in the configured
format and a JSON summary is printed, or written to --out.`,
	RunE: runQuery,
}

func init() {
	runCmd.Flags().StringVarP(&runTarget, "target", "t", models.TargetAnnualFiling, "portal target")
	runCmd.Flags().StringVar(&runID, "id", "", "CIN or DIN to query (required)")
	runCmd.Flags().StringVarP(&runOut, "out", "o", "", "write the summary to this file instead of stdout")
	runCmd.Flags().BoolVar(&runNoCache, "no-cache", false, "ignore a cached result")
	_ = runCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(runCmd)
}

// Summary is the printed outcome of one run
type Summary struct {
	Target     string               `json:"target"`
	Identifier string               `json:"identifier"`
	Status     models.SessionStatus `json:"status"`
	Reason     string               `json:"reason,omitempty"`
	Cached     bool                 `json:"cached"`
	Retries    int                  `json:"retries"`
	Refreshes  int                  `json:"refreshes"`
	Records    int                  `json:"records"`
	ExportPath string               `json:"export_path,omitempty"`
	DurationMs int64                `json:"duration_ms"`
}

func summarize(r *models.QueryResult) Summary {
	return Summary{
		Target:     r.Target,
		Identifier: r.Identifier,
		Status:     r.Status,
		Reason:     r.Reason,
		Cached:     r.Cached,
		Retries:    r.Retries,
		Refreshes:  r.Refreshes,
		Records:    len(r.Records),
		ExportPath: r.ExportPath,
		DurationMs: r.DurationMs,
	}
}

func writeSummary(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	container, err := services.NewContainer(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer container.Close()

	ctx, cancel := withTimeout(cmd.Context(), cfg.Worker.JobTimeout)
	defer cancel()

	result, err := container.Engine.Run(ctx, models.Query{
		Target:     runTarget,
		Identifier: runID,
		NoCache:    runNoCache,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runOut != "" {
		f, err := os.Create(runOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", runOut, err)
		}
		defer f.Close()
		out = f
	}
	return writeSummary(out, summarize(result))
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
