package cli

import (
	"strconv"

	"github.com/absmach/fedasync/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	defOffset uint64 = 0
	defLimit  uint64 = 10
)

func openRepositories(cmd *cobra.Command) (*storage.Repositories, bool) {
	cfg, err := loadConfig()
	if err != nil {
		logErrorCmd(*cmd, err)

		return nil, false
	}

	repos, err := storage.NewRepositories(cfg.Storage)
	if err != nil {
		logErrorCmd(*cmd, err)

		return nil, false
	}

	return repos, true
}

func closeRepositories(cmd *cobra.Command, repos *storage.Repositories) {
	if repos.Closer == nil {
		return
	}
	if err := repos.Closer.Close(); err != nil {
		logErrorCmd(*cmd, err)
	}
}

func NewRoundsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rounds [list|view]",
		Short: "Stored round reports",
		Long:  `List and view the round reports kept in the configured report store.`,
	}

	listCmd := &cobra.Command{
		Use:   "list <run_id>",
		Short: "List round reports",
		Long:  `List the round reports of a run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			repos, ok := openRepositories(cmd)
			if !ok {
				return
			}
			defer closeRepositories(cmd, repos)

			reports, total, err := repos.Rounds.List(cmd.Context(), args[0], defOffset, defLimit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, map[string]any{
				"offset": defOffset,
				"limit":  defLimit,
				"total":  total,
				"rounds": reports,
			})
		},
	}

	viewCmd := &cobra.Command{
		Use:   "view <run_id> <round>",
		Short: "View round report",
		Long:  `View one round report of a run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 2 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}
			round, err := strconv.Atoi(args[1])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			repos, ok := openRepositories(cmd)
			if !ok {
				return
			}
			defer closeRepositories(cmd, repos)

			report, err := repos.Rounds.Get(cmd.Context(), args[0], round)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, report)
		},
	}

	cmd.AddCommand(listCmd)
	cmd.AddCommand(viewCmd)

	cmd.PersistentFlags().Uint64VarP(
		&defOffset,
		"offset",
		"o",
		defOffset,
		"Offset",
	)

	cmd.PersistentFlags().Uint64VarP(
		&defLimit,
		"limit",
		"l",
		defLimit,
		"Limit",
	)

	return cmd
}

func NewParticipantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "participants <run_id>",
		Short: "Participant counters of a run",
		Long:  `List the selection and admission counters stored at the end of a run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			repos, ok := openRepositories(cmd)
			if !ok {
				return
			}
			defer closeRepositories(cmd, repos)

			participants, total, err := repos.Participants.List(cmd.Context(), args[0], defOffset, defLimit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, map[string]any{
				"offset":       defOffset,
				"limit":        defLimit,
				"total":        total,
				"participants": participants,
			})
		},
	}

	cmd.Flags().Uint64VarP(&defOffset, "offset", "o", defOffset, "Offset")
	cmd.Flags().Uint64VarP(&defLimit, "limit", "l", defLimit, "Limit")

	return cmd
}
