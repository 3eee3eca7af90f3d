package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/nexconsult/mca-verify/internal/api"
	"github.com/nexconsult/mca-verify/internal/services"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}

		container, err := services.NewContainer(cfg, log)
		if err != nil {
			return fmt.Errorf("initialize services: %w", err)
		}
		defer container.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return api.Serve(ctx, cfg, log, container)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
