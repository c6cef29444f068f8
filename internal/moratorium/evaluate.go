// Package moratorium implements the date-aware moratorium rule evaluator: a
// pure decision function that determines whether a rejected health-insurance
// claim is contestable under the IRDAI 5-year moratorium
// (IRDAI/HLT/CIR/PRO/84/5/2024, Clause 6.1).
package moratorium

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/claimclaw/contest-cli/internal/model"
)

// MoratoriumYears is the statutory hard guardrail: after this many years of
// continuous coverage, non-disclosure grounds cannot sustain repudiation
// unless fraud is proven.
const MoratoriumYears = 5

// Citation is the governing IRDAI circular clause quoted in rationales.
const Citation = "IRDAI/HLT/CIR/PRO/84/5/2024, Clause 6.1"

// ErrInvalidDateRange is returned when the as-of date precedes the policy
// start date.
var ErrInvalidDateRange = eris.New("moratorium: as-of date precedes policy start date")

// Evaluate renders a contestability verdict from calendar dates and a
// free-text rejection reason, using the embedded lexicon.
func Evaluate(policyStart, asOf time.Time, rejectionReason string) (model.MoratoriumVerdict, error) {
	return EvaluateWith(DefaultClassifier(), policyStart, asOf, rejectionReason)
}

// EvaluateWith is Evaluate with an explicit classifier.
func EvaluateWith(c *Classifier, policyStart, asOf time.Time, rejectionReason string) (model.MoratoriumVerdict, error) {
	age, err := PolicyAgeYears(policyStart, asOf)
	if err != nil {
		return model.MoratoriumVerdict{}, err
	}
	return evaluate(c, float64(age), rejectionReason), nil
}

// EvaluateAge renders a verdict from an already-known policy age in years,
// bypassing date arithmetic. Backs the stateless validate-moratorium command.
func EvaluateAge(policyAgeYears float64, rejectionReason string) model.MoratoriumVerdict {
	return EvaluateAgeWith(DefaultClassifier(), policyAgeYears, rejectionReason)
}

// EvaluateAgeWith is EvaluateAge with an explicit classifier.
func EvaluateAgeWith(c *Classifier, policyAgeYears float64, rejectionReason string) model.MoratoriumVerdict {
	if policyAgeYears < 0 {
		policyAgeYears = 0
	}
	return evaluate(c, policyAgeYears, rejectionReason)
}

func evaluate(c *Classifier, ageYears float64, rejectionReason string) model.MoratoriumVerdict {
	category, fraud := c.Classify(rejectionReason)
	age := strconv.FormatFloat(ageYears, 'f', -1, 64)

	v := model.MoratoriumVerdict{
		PolicyAgeYears: ageYears,
		Category:       category,
		FraudAlleged:   fraud,
	}

	switch {
	case category == model.ReasonUncategorized:
		v.RuleTag = model.RuleInsufficientData
		v.Contestable = false
		v.Rationale = "Rejection reason could not be classified into a known category; " +
			"supply the insurer's stated repudiation ground before a moratorium determination can be made."

	case ageYears < MoratoriumYears:
		v.RuleTag = model.RuleWithinMoratoriumHardBlock
		v.Contestable = false
		v.Rationale = fmt.Sprintf(
			"Policy age %s years is below the %d-year moratorium under %s; "+
				"the rejection is not contestable on moratorium grounds alone.",
			age, MoratoriumYears, Citation)

	case category == model.ReasonNonDisclosure && fraud:
		v.RuleTag = model.RuleNonDisclosureException
		v.Contestable = false
		v.Rationale = fmt.Sprintf(
			"Policy age %s years meets the %d-year moratorium under %s, but the rejection "+
				"alleges fraud; the moratorium exception is not automatic and the insurer's "+
				"proof must be examined before contesting.",
			age, MoratoriumYears, Citation)

	case category == model.ReasonNonDisclosure:
		v.RuleTag = model.RuleNonDisclosureException
		v.Contestable = true
		v.Rationale = fmt.Sprintf(
			"Policy age %s years meets the %d-year moratorium under %s; after %d years of "+
				"continuous coverage a non-disclosure/PED ground cannot sustain repudiation "+
				"unless fraud is independently proven. Flagged for evidence review.",
			age, MoratoriumYears, Citation, MoratoriumYears)

	default:
		v.RuleTag = model.RuleBeyondMoratoriumContestable
		v.Contestable = true
		v.Rationale = fmt.Sprintf(
			"Policy age %s years meets the %d-year moratorium under %s and the cited ground "+
				"is outside the non-disclosure class; the rejection is contestable on its merits.",
			age, MoratoriumYears, Citation)
	}

	return v
}

// PolicyAgeYears returns the elapsed full years between the two dates,
// flooring partial years. The comparison uses calendar anniversaries so a
// leap-day start cannot miscount the age at the boundary: a Feb-29
// anniversary falls on Mar-1 in non-leap years.
func PolicyAgeYears(policyStart, asOf time.Time) (int, error) {
	start := truncateToDay(policyStart)
	end := truncateToDay(asOf)
	if end.Before(start) {
		return 0, eris.Wrapf(ErrInvalidDateRange, "policy start %s, as-of %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	years := end.Year() - start.Year()
	if years > 0 && end.Before(anniversary(start, start.Year()+years)) {
		years--
	}
	return years, nil
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func anniversary(start time.Time, year int) time.Time {
	m, d := start.Month(), start.Day()
	if m == time.February && d == 29 && !isLeapYear(year) {
		m, d = time.March, 1
	}
	return time.Date(year, m, d, 0, 0, 0, 0, time.UTC)
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
