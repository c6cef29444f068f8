package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/claimclaw/contest-cli/internal/model"
	"github.com/claimclaw/contest-cli/internal/workflow"
)

var (
	startClaimID       string
	startPolicyDoc     string
	startRejection     string
	startDischarge     string
	startBill          string
	startName          string
	startMobile        string
	startEmail         string
	startInsurer       string
	startPolicyNumber  string
	startPolicyAgeHint float64
	startLivePortal    bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start contesting a rejected claim",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		dryRun := cfg.Portal.DryRun
		if startLivePortal {
			dryRun = false
		}

		cs, err := env.Engine.Start(ctx, workflow.StartRequest{
			ClaimID: startClaimID,
			Documents: model.DocumentSet{
				PolicyDocument:   startPolicyDoc,
				RejectionLetter:  startRejection,
				DischargeSummary: startDischarge,
				HospitalBill:     startBill,
			},
			Complainant: model.Complainant{
				Name:         startName,
				Mobile:       startMobile,
				Email:        startEmail,
				InsurerName:  startInsurer,
				PolicyNumber: startPolicyNumber,
			},
			PolicyAgeHint: startPolicyAgeHint,
			DryRunPortal:  dryRun,
		})
		if err != nil {
			return err
		}

		zap.L().Info("case run finished",
			zap.String("claim_id", cs.ClaimID),
			zap.String("stage", string(cs.Stage)),
		)
		return printJSON(cs)
	},
}

func init() {
	startCmd.Flags().StringVar(&startClaimID, "claim-id", "", "claim identifier (required)")
	startCmd.Flags().StringVar(&startPolicyDoc, "policy", "", "policy document path (required)")
	startCmd.Flags().StringVar(&startRejection, "rejection-letter", "", "rejection letter path (required)")
	startCmd.Flags().StringVar(&startDischarge, "discharge-summary", "", "discharge summary path (required)")
	startCmd.Flags().StringVar(&startBill, "bill", "", "hospital bill path (required)")
	startCmd.Flags().StringVar(&startName, "name", "", "complainant name")
	startCmd.Flags().StringVar(&startMobile, "mobile", "", "complainant mobile")
	startCmd.Flags().StringVar(&startEmail, "email", "", "complainant email")
	startCmd.Flags().StringVar(&startInsurer, "insurer", "", "insurer name")
	startCmd.Flags().StringVar(&startPolicyNumber, "policy-number", "", "policy number")
	startCmd.Flags().Float64Var(&startPolicyAgeHint, "policy-age", 0, "policy age in years, used when documents lack dates")
	startCmd.Flags().BoolVar(&startLivePortal, "live-portal", false, "file on the live portal instead of a dry run")
	_ = startCmd.MarkFlagRequired("claim-id")
	_ = startCmd.MarkFlagRequired("policy")
	_ = startCmd.MarkFlagRequired("rejection-letter")
	_ = startCmd.MarkFlagRequired("discharge-summary")
	_ = startCmd.MarkFlagRequired("bill")
	rootCmd.AddCommand(startCmd)
}
