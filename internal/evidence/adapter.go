// Package evidence normalizes document-extraction output into the claim
// evidence record the workflow consumes.
package evidence

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/claimclaw/contest-cli/internal/model"
	"github.com/claimclaw/contest-cli/internal/moratorium"
)

// ErrMissingDocument is returned when a required document reference is absent.
// This is an input mistake surfaced to the caller, not a workflow failure.
var ErrMissingDocument = eris.New("evidence: required document missing")

// ExtractionError indicates the extraction capability could not produce
// structured text from the documents.
type ExtractionError struct {
	Document string
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Document != "" {
		return "evidence: extraction failed for " + e.Document + ": " + e.Err.Error()
	}
	return "evidence: extraction failed: " + e.Err.Error()
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Extractor is the document-extraction capability port. Implementations turn
// the four claim documents into a structured evidence record.
type Extractor interface {
	Extract(ctx context.Context, docs model.DocumentSet) (*model.ClaimEvidence, error)
}

// FifteenDayWindow is the repudiation deadline from the IRDAI 2017
// policyholder-protection regulations.
const FifteenDayWindow = 15

// Adapter wraps an Extractor and normalizes its output.
type Adapter struct {
	extractor Extractor
}

// NewAdapter creates an Adapter over the given extraction capability.
func NewAdapter(extractor Extractor) *Adapter {
	return &Adapter{extractor: extractor}
}

// Assess validates the document set, runs extraction and normalizes the
// result. Extraction failures come back as *ExtractionError.
func (a *Adapter) Assess(ctx context.Context, docs model.DocumentSet) (*model.ClaimEvidence, error) {
	if missing := docs.Missing(); len(missing) > 0 {
		return nil, eris.Wrapf(ErrMissingDocument, "%s", strings.Join(missing, ", "))
	}

	ev, err := a.extractor.Extract(ctx, docs)
	if err != nil {
		var ee *ExtractionError
		if errors.As(err, &ee) {
			return nil, err
		}
		return nil, &ExtractionError{Err: err}
	}
	if ev == nil {
		return nil, &ExtractionError{Err: eris.New("extractor returned no evidence")}
	}

	normalize(ev)
	zap.L().Debug("evidence assessed",
		zap.String("rejection_reason", ev.RejectionReason),
		zap.Int("flags", len(ev.Flags)),
		zap.Float64("policy_age_years", ev.PolicyAgeYears),
	)
	return ev, nil
}

func normalize(ev *model.ClaimEvidence) {
	ev.RejectionReason = collapseWhitespace(ev.RejectionReason)
	ev.DiagnosisSummary = collapseWhitespace(ev.DiagnosisSummary)
	ev.ConstructiveKnowledgeNote = collapseWhitespace(ev.ConstructiveKnowledgeNote)
	ev.Flags = dedupeFlags(ev.Flags)

	ev.PolicyStartDate = reformatDate(ev.PolicyStartDate)
	ev.ClaimSubmissionDate = reformatDate(ev.ClaimSubmissionDate)
	ev.RejectionDate = reformatDate(ev.RejectionDate)

	// Derive policy age when the extractor found both a start date and an
	// as-of anchor. The claim submission date anchors the moratorium check;
	// the rejection date is the fallback. Full calendar years on the
	// anniversary, never a day-count division: an exact five-year span must
	// not round down across a leap day.
	if ev.PolicyAgeYears == 0 && ev.PolicyStartDate != "" {
		asOf := ev.ClaimSubmissionDate
		if asOf == "" {
			asOf = ev.RejectionDate
		}
		if asOf != "" {
			start, err1 := ParseDate(ev.PolicyStartDate)
			end, err2 := ParseDate(asOf)
			if err1 == nil && err2 == nil {
				if years, err := moratorium.PolicyAgeYears(start, end); err == nil {
					ev.PolicyAgeYears = float64(years)
				}
			}
		}
	}

	ev.ResponseTime = responseTimeCheck(ev.ClaimSubmissionDate, ev.RejectionDate)
}

// responseTimeCheck reports whether the insurer exceeded the 15-day
// repudiation window. Returns nil when either date is unknown.
func responseTimeCheck(claimDate, rejectionDate string) *model.ResponseTimeCheck {
	if claimDate == "" || rejectionDate == "" {
		return nil
	}
	submitted, err1 := ParseDate(claimDate)
	rejected, err2 := ParseDate(rejectionDate)
	if err1 != nil || err2 != nil || rejected.Before(submitted) {
		return nil
	}
	days := daysBetween(submitted, rejected)
	return &model.ResponseTimeCheck{
		ClaimSubmissionDate: claimDate,
		RejectionDate:       rejectionDate,
		DaysToRejection:     days,
		ViolationFifteenDay: days > FifteenDayWindow,
	}
}

func reformatDate(value string) string {
	if value == "" {
		return ""
	}
	t, err := ParseDate(value)
	if err != nil {
		return ""
	}
	return isoDate(t)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func dedupeFlags(flags []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(flags))
	for _, f := range flags {
		cleaned := collapseWhitespace(f)
		if cleaned == "" {
			continue
		}
		if _, ok := seen[cleaned]; ok {
			continue
		}
		seen[cleaned] = struct{}{}
		out = append(out, cleaned)
	}
	return out
}
