package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func NewRunCmd() *cobra.Command {
	var withReports bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a federated training",
		Long: `Run every configured round with the simulated participants and print the run summary.

Examples:
  # Run with the defaults and the FEDASYNC_ environment
  fedasync run

  # Run the rounds described in a config file and keep every round report
  fedasync run --config fedasync.toml --reports`,
		Run: func(cmd *cobra.Command, _ []string) {
			cfg, err := loadConfig()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			n, err := bootstrap(ctx, cfg)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			defer n.close(context.Background())

			summary, err := n.svc.Run(ctx)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			if !withReports {
				summary.Reports = nil
			}
			logJSONCmd(*cmd, summary)
		},
	}

	cmd.Flags().BoolVar(&withReports, "reports", false, "Include every round report in the summary")

	return cmd
}
