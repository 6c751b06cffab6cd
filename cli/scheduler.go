package cli

import (
	"strconv"

	"github.com/absmach/fedasync/pkg/sdk"
	"github.com/spf13/cobra"
)

const (
	DefSchedulerURL    = "http://localhost:7070"
	DefTLSVerification = false
)

var fedSDK sdk.SDK

func SetSDK(s sdk.SDK) {
	fedSDK = s
}

// NewSchedulerCmd talks to a scheduler started with serve.
func NewSchedulerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler [status|step|model|round|participant]",
		Short: "Remote scheduler",
		Long:  `Inspect and drive a running scheduler over its HTTP API.`,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Scheduler status",
		Long:  `Show the phase, round and best metric of the running scheduler.`,
		Run: func(cmd *cobra.Command, _ []string) {
			status, err := fedSDK.Status()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, status)
		},
	}

	stepCmd := &cobra.Command{
		Use:   "step",
		Short: "Execute one round",
		Long:  `Execute the next round on the running scheduler and print its report.`,
		Run: func(cmd *cobra.Command, _ []string) {
			report, err := fedSDK.Step()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, report)
		},
	}

	modelCmd := &cobra.Command{
		Use:   "model",
		Short: "Global model",
		Long:  `Fetch the current global model of the running scheduler.`,
		Run: func(cmd *cobra.Command, _ []string) {
			model, err := fedSDK.Model()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, model)
		},
	}

	roundCmd := &cobra.Command{
		Use:   "round [<round>]",
		Short: "Round reports",
		Long:  `View one round report, or list them when no round is given.`,
		Run: func(cmd *cobra.Command, args []string) {
			switch len(args) {
			case 0:
				page, err := fedSDK.Rounds(defOffset, defLimit)
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logJSONCmd(*cmd, page)
			case 1:
				round, err := strconv.Atoi(args[0])
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				report, err := fedSDK.Round(round)
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logJSONCmd(*cmd, report)
			default:
				logUsageCmd(*cmd, cmd.Use)
			}
		},
	}

	participantCmd := &cobra.Command{
		Use:   "participant [<participant_id>]",
		Short: "Live participants",
		Long:  `View one participant, or list them when no id is given.`,
		Run: func(cmd *cobra.Command, args []string) {
			switch len(args) {
			case 0:
				page, err := fedSDK.Participants(defOffset, defLimit)
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logJSONCmd(*cmd, page)
			case 1:
				p, err := fedSDK.Participant(args[0])
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logJSONCmd(*cmd, p)
			default:
				logUsageCmd(*cmd, cmd.Use)
			}
		},
	}

	cmd.AddCommand(statusCmd, stepCmd, modelCmd, roundCmd, participantCmd)

	cmd.PersistentFlags().Uint64VarP(&defOffset, "offset", "o", defOffset, "Offset")
	cmd.PersistentFlags().Uint64VarP(&defLimit, "limit", "l", defLimit, "Limit")

	return cmd
}
