// Package draft composes the rebuttal email sent to the insurer's grievance
// officer. A deterministic template drafter is always available; a
// Claude-backed polisher can be layered on top behind the same port.
package draft

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/claimclaw/contest-cli/internal/model"
	"github.com/claimclaw/contest-cli/internal/moratorium"
)

// DraftError indicates rebuttal composition failed. Drafting is retried by
// the workflow, so the error keeps its cause for transient classification.
type DraftError struct {
	Err error
}

func (e *DraftError) Error() string {
	return "draft: " + e.Err.Error()
}

func (e *DraftError) Unwrap() error {
	return e.Err
}

// Meta carries the claim identity fields the rebuttal addresses.
type Meta struct {
	ComplainantName string
	InsurerName     string
	PolicyNumber    string
}

// Drafter is the rebuttal-drafting capability port.
type Drafter interface {
	Draft(ctx context.Context, verdict model.MoratoriumVerdict, evidence *model.ClaimEvidence, meta Meta) (string, error)
}

// TemplateDrafter produces a deterministic rebuttal from the verdict and
// evidence. Same inputs, same output.
type TemplateDrafter struct{}

// NewTemplateDrafter creates a TemplateDrafter.
func NewTemplateDrafter() *TemplateDrafter {
	return &TemplateDrafter{}
}

// Draft composes the rebuttal email body.
func (d *TemplateDrafter) Draft(ctx context.Context, verdict model.MoratoriumVerdict, evidence *model.ClaimEvidence, meta Meta) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &DraftError{Err: err}
	}

	reason := "Not specified"
	var flags []string
	constructiveNote := ""
	if evidence != nil {
		if evidence.RejectionReason != "" {
			reason = evidence.RejectionReason
		}
		flags = evidence.Flags
		constructiveNote = strings.TrimSpace(evidence.ConstructiveKnowledgeNote)
	}

	bulletFlags := "- Evidence under review."
	if len(flags) > 0 {
		lines := make([]string, len(flags))
		for i, f := range flags {
			lines[i] = "- " + f
		}
		bulletFlags = strings.Join(lines, "\n")
	}

	var b strings.Builder
	b.WriteString("Subject: Immediate Reconsideration of Wrongful Claim Rejection - Policy " + meta.PolicyNumber + "\n\n")
	b.WriteString("To: Grievance Officer, " + meta.InsurerName + "\n\n")
	b.WriteString("This is a formal challenge to your rejection based on: " + reason + ".\n\n")
	b.WriteString("Key contradictions in your repudiation:\n")
	b.WriteString(bulletFlags + "\n\n")

	if constructiveNote != "" {
		b.WriteString("Constructive knowledge position:\n" + constructiveNote + "\n\n")
	}

	b.WriteString("Regulatory basis:\n")
	b.WriteString(legalBasis(verdict) + "\n\n")

	if evidence != nil && evidence.ResponseTime != nil && evidence.ResponseTime.ViolationFifteenDay {
		b.WriteString("Procedural violation:\n")
		b.WriteString(responseTimeStatement(evidence.ResponseTime) + "\n\n")
	}

	b.WriteString("Required action:\n")
	b.WriteString(recommendedAction(verdict) + "\n\n")
	b.WriteString("You are directed to reverse this rejection and process admissible claim amounts immediately. ")
	b.WriteString("Failing resolution, I will file and pursue escalation on Bima Bharosa and before the Insurance Ombudsman without further notice.\n\n")
	b.WriteString("Regards,\n" + meta.ComplainantName)

	zap.L().Debug("rebuttal drafted",
		zap.String("rule_tag", string(verdict.RuleTag)),
		zap.Int("length", b.Len()),
	)
	return b.String(), nil
}

func legalBasis(verdict model.MoratoriumVerdict) string {
	basis := "IRDAI health insurance moratorium standard (updated April 2024): " +
		"after 5 years of continuous coverage, non-disclosure disputes cannot be used " +
		"to repudiate claims unless fraud is proven."
	if verdict.Contestable && verdict.RuleTag == model.RuleNonDisclosureException {
		basis += "\n\nConflict Detected: the non-disclosure ground cited by the insurer is now VOID as per " +
			"IRDAI Master Circular Ref: " + moratorium.Citation + "."
	}
	return basis
}

func recommendedAction(verdict model.MoratoriumVerdict) string {
	if verdict.Contestable && verdict.RuleTag == model.RuleNonDisclosureException {
		return "Demand immediate reversal, cite 5-year moratorium protection, and escalate " +
			"to Bima Bharosa and Insurance Ombudsman if insurer does not comply."
	}
	return "Request full repudiation basis with clause citations and evidence, then " +
		"proceed to escalation if grounds remain weak or non-compliant."
}

func responseTimeStatement(rt *model.ResponseTimeCheck) string {
	return "The repudiation was issued " + strconv.Itoa(rt.DaysToRejection) + " days after claim intimation, " +
		"exceeding the 15-day window under the IRDAI Protection of Policyholders' Interests Regulations, 2017."
}
