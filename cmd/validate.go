package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/claimclaw/contest-cli/internal/moratorium"
)

var (
	validateAge    float64
	validateReason string

	checkPolicyStart string
	checkAsOf        string
	checkReason      string
)

var validateMoratoriumCmd = &cobra.Command{
	Use:   "validate-moratorium",
	Short: "Evaluate moratorium contestability from a known policy age",
	Long:  "Stateless verdict: no documents, no workflow, no persistence.",
	RunE: func(cmd *cobra.Command, args []string) error {
		classifier, err := loadClassifier()
		if err != nil {
			return err
		}
		verdict := moratorium.EvaluateAgeWith(classifier, validateAge, validateReason)
		return printJSON(verdict)
	},
}

var checkMoratoriumDateCmd = &cobra.Command{
	Use:   "check-moratorium-date",
	Short: "Evaluate moratorium contestability from calendar dates",
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := time.Parse("2006-01-02", checkPolicyStart)
		if err != nil {
			return eris.Wrapf(err, "parse --policy-start %q", checkPolicyStart)
		}

		asOf := time.Now().UTC()
		if checkAsOf != "" {
			asOf, err = time.Parse("2006-01-02", checkAsOf)
			if err != nil {
				return eris.Wrapf(err, "parse --as-of %q", checkAsOf)
			}
		}

		classifier, err := loadClassifier()
		if err != nil {
			return err
		}
		verdict, err := moratorium.EvaluateWith(classifier, start, asOf, checkReason)
		if err != nil {
			return err
		}
		return printJSON(verdict)
	},
}

func loadClassifier() (*moratorium.Classifier, error) {
	if cfg.Lexicon.Path != "" {
		return moratorium.LoadClassifier(cfg.Lexicon.Path)
	}
	return moratorium.DefaultClassifier(), nil
}

func init() {
	validateMoratoriumCmd.Flags().Float64Var(&validateAge, "policy-age", 0, "policy age in years (required)")
	validateMoratoriumCmd.Flags().StringVar(&validateReason, "reason", "", "insurer's rejection reason (required)")
	_ = validateMoratoriumCmd.MarkFlagRequired("policy-age")
	_ = validateMoratoriumCmd.MarkFlagRequired("reason")

	checkMoratoriumDateCmd.Flags().StringVar(&checkPolicyStart, "policy-start", "", "policy start date, YYYY-MM-DD (required)")
	checkMoratoriumDateCmd.Flags().StringVar(&checkAsOf, "as-of", "", "evaluation date, YYYY-MM-DD (default today)")
	checkMoratoriumDateCmd.Flags().StringVar(&checkReason, "reason", "", "insurer's rejection reason (required)")
	_ = checkMoratoriumDateCmd.MarkFlagRequired("policy-start")
	_ = checkMoratoriumDateCmd.MarkFlagRequired("reason")

	rootCmd.AddCommand(validateMoratoriumCmd)
	rootCmd.AddCommand(checkMoratoriumDateCmd)
}
