package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/claimclaw/contest-cli/internal/workflow"
)

var (
	resumeInsurerReplied bool
	resumeConfirmHuman   bool
)

var resumeCmd = &cobra.Command{
	Use:   "resume <thread-id>",
	Short: "Resume a suspended case",
	Long: "Continues a case from its latest checkpoint. Pass --insurer-replied when the insurer " +
		"responded during the wait, or --confirm-human after completing the portal CAPTCHA step.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		cs, err := env.Engine.Resume(ctx, args[0], workflow.ResumeSignal{
			InsurerReplied: resumeInsurerReplied,
			HumanConfirmed: resumeConfirmHuman,
		})
		if err != nil {
			return err
		}

		zap.L().Info("case resumed",
			zap.String("claim_id", cs.ClaimID),
			zap.String("stage", string(cs.Stage)),
		)
		return printJSON(cs)
	},
}

var abandonCmd = &cobra.Command{
	Use:   "abandon <thread-id>",
	Short: "Abandon a case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		cs, err := env.Engine.Abandon(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cs)
	},
}

func init() {
	resumeCmd.Flags().BoolVar(&resumeInsurerReplied, "insurer-replied", false, "the insurer replied during the wait")
	resumeCmd.Flags().BoolVar(&resumeConfirmHuman, "confirm-human", false, "the portal CAPTCHA step was completed by a human")
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(abandonCmd)
}
