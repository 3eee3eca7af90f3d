package commands

import (
	"fmt"
	"os"

	"github.com/nexconsult/mca-verify/internal/config"
	"github.com/nexconsult/mca-verify/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "mcactl",
	Short: "Verification and record extraction against the MCA portal",
	Long: `mcactl runs portal queries from the command line, post-processes payment
challans from a workbook and serves the HTTP API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setup loads the configuration and a logger writing to stderr, so stdout
// stays free for command output
func setup() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, logger.NewWithOutput(cfg.Log.Level, cfg.Log.Format, os.Stderr), nil
}

// setupLogger builds the stderr logger for commands that never reach the
// portal and so need no solving service key
func setupLogger() *logrus.Logger {
	level := logLevel
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	return logger.NewWithOutput(level, os.Getenv("LOG_FORMAT"), os.Stderr)
}
