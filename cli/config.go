package cli

import (
	"github.com/spf13/cobra"
)

const redacted = "********"

func NewConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long:  `Validate and print the configuration resolved from the defaults, the config file and the FEDASYNC_ environment.`,
		Run: func(cmd *cobra.Command, _ []string) {
			cfg, err := loadConfig()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			if cfg.MQTT.Password != "" {
				cfg.MQTT.Password = redacted
			}
			if cfg.Storage.PostgresPass != "" {
				cfg.Storage.PostgresPass = redacted
			}
			logJSONCmd(*cmd, cfg)
		},
	}
}
