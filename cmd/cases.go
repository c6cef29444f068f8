package main

import (
	"github.com/spf13/cobra"

	"github.com/claimclaw/contest-cli/internal/checkpoint"
	"github.com/claimclaw/contest-cli/internal/model"
)

var (
	casesStage string
	casesLimit int

	historyLimit int
)

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "List case threads with their latest stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		threads, err := st.ListThreads(ctx, checkpoint.ThreadFilter{
			Stage: model.Stage(casesStage),
			Limit: casesLimit,
		})
		if err != nil {
			return err
		}
		return printJSON(threads)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <thread-id>",
	Short: "Show a case's checkpoint history, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		history, err := st.History(ctx, args[0], historyLimit)
		if err != nil {
			return err
		}
		return printJSON(history)
	},
}

func init() {
	casesCmd.Flags().StringVar(&casesStage, "stage", "", "filter by stage (e.g. AWAITING_RESPONSE)")
	casesCmd.Flags().IntVar(&casesLimit, "limit", 0, "max threads to list")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "max checkpoints to show")
	rootCmd.AddCommand(casesCmd)
	rootCmd.AddCommand(historyCmd)
}
