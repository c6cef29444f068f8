package model

// RuleTag identifies which row of the moratorium decision table produced a
// verdict.
type RuleTag string

const (
	RuleWithinMoratoriumHardBlock   RuleTag = "WITHIN_MORATORIUM_HARD_BLOCK"
	RuleBeyondMoratoriumContestable RuleTag = "BEYOND_MORATORIUM_CONTESTABLE"
	RuleNonDisclosureException      RuleTag = "NON_DISCLOSURE_EXCEPTION"
	RuleInsufficientData            RuleTag = "INSUFFICIENT_DATA"
)

// ReasonCategory is the classified rejection-reason category.
type ReasonCategory string

const (
	ReasonNonDisclosure ReasonCategory = "non_disclosure"
	ReasonOther         ReasonCategory = "other"
	ReasonUncategorized ReasonCategory = "uncategorized"
)

// MoratoriumVerdict is the contestability determination for one rejection.
// It is a pure function of (policy age, rejection reason): identical inputs
// always yield an identical verdict, so it carries no timestamps.
type MoratoriumVerdict struct {
	Contestable    bool           `json:"contestable"`
	PolicyAgeYears float64        `json:"policy_age_years"`
	RuleTag        RuleTag        `json:"rule_tag"`
	Category       ReasonCategory `json:"rejection_category"`
	Rationale      string         `json:"rationale"`
	FraudAlleged   bool           `json:"fraud_alleged,omitempty"`
}
