package main

import (
	"log"
	"os"

	"github.com/absmach/fedasync/cli"
	"github.com/absmach/fedasync/pkg/sdk"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const pathEnv = ".env"

func main() {
	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	var (
		configPath      string
		schedulerURL    string
		tlsVerification bool
	)
	rootCmd := &cobra.Command{
		Use:   "fedasync",
		Short: "Asynchronous federated aggregation scheduler",
		Long:  `fedasync schedules asynchronous federated training rounds with staleness-aware aggregation.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			cli.SetConfigPath(configPath)
			cli.SetSDK(sdk.NewSDK(sdk.Config{
				SchedulerURL:    schedulerURL,
				TLSVerification: tlsVerification,
			}))
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML or YAML config file")
	rootCmd.PersistentFlags().StringVar(&schedulerURL, "scheduler-url", cli.DefSchedulerURL, "Scheduler HTTP API URL")
	rootCmd.PersistentFlags().BoolVar(&tlsVerification, "tls-verification", cli.DefTLSVerification, "Verify the scheduler TLS certificate")

	rootCmd.AddCommand(cli.NewRunCmd())
	rootCmd.AddCommand(cli.NewServeCmd())
	rootCmd.AddCommand(cli.NewRoundsCmd())
	rootCmd.AddCommand(cli.NewParticipantsCmd())
	rootCmd.AddCommand(cli.NewConfigCmd())
	rootCmd.AddCommand(cli.NewSchedulerCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
