package commands

import (
	"os"

	"github.com/spf13/cobra"

	"conti/internal/config"
	"conti/internal/log"
)

var (
	cfg    *config.Config
	logger *log.Logger

	logLevel string
)

func Execute() error {
	root := newRootCmd()
	return root.Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "contictl",
		Short:        "Operate a conti deployment and reconcile snapshots offline",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadEnvFile()
			cfg = config.Load()

			lc := log.DefaultConfig()
			lc.Level = log.ParseLevel(logLevel)
			lc.Output = os.Stderr
			lc.Component = "contictl"
			logger = log.New(lc)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(computeCmd(), migrateCmd(), tokenCmd())
	return root
}
