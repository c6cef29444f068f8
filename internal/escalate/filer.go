// Package escalate files grievances on the Bima Bharosa portal when the
// insurer does not resolve a contested rejection.
package escalate

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/claimclaw/contest-cli/internal/model"
)

// BimaBharosaURL is the IRDAI consumer grievance portal.
const BimaBharosaURL = "https://bimabharosa.irdai.gov.in/"

// DefaultGrievanceCategory is the category used for rejected health claims.
const DefaultGrievanceCategory = "Health Insurance Claim Rejection"

// DefaultReliefSought is the standard relief demanded in the complaint.
const DefaultReliefSought = "Reverse repudiation, settle admissible amount with interest, and issue written compliance response."

// FilingError indicates the portal filing attempt itself failed. The filing
// is never retried automatically: a partial submission on the portal cannot
// be detected from here.
type FilingError struct {
	Err error
}

func (e *FilingError) Error() string {
	return "escalate: " + e.Err.Error()
}

func (e *FilingError) Unwrap() error {
	return e.Err
}

// Filer is the portal-filing capability port. The dry-run flag travels with
// each call because it is a property of the claim case, not of the filer.
type Filer interface {
	File(ctx context.Context, complaint model.Complaint, dryRun bool) (*model.FilingResult, error)
}

// PortalFilerConfig controls the portal filer.
type PortalFilerConfig struct {
	// RequestsPerMinute caps portal interactions. Zero means 6/min.
	RequestsPerMinute int
}

// PortalFiler files complaints on Bima Bharosa. Live filing always pauses
// for a human to solve the portal CAPTCHA; the workflow records the pause
// and resumes once the operator confirms submission.
type PortalFiler struct {
	cfg     PortalFilerConfig
	limiter *rate.Limiter
}

// NewPortalFiler creates a PortalFiler.
func NewPortalFiler(cfg PortalFilerConfig) *PortalFiler {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 6
	}
	return &PortalFiler{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
	}
}

// File validates the complaint and either reports a dry run or pauses for
// the human CAPTCHA step.
func (f *PortalFiler) File(ctx context.Context, complaint model.Complaint, dryRun bool) (*model.FilingResult, error) {
	if err := validateComplaint(complaint); err != nil {
		return nil, &FilingError{Err: err}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &FilingError{Err: eris.Wrap(err, "rate limit wait")}
	}

	if dryRun {
		zap.L().Info("portal filing skipped (dry run)",
			zap.String("policy_number", complaint.PolicyNumber),
			zap.String("portal_url", BimaBharosaURL),
		)
		return &model.FilingResult{
			Status:    model.FilingSuccess,
			Detail:    "Portal run skipped. Disable dry run to execute the live filing.",
			PortalURL: BimaBharosaURL,
		}, nil
	}

	// Live filing cannot complete unattended: the portal requires a CAPTCHA
	// at login and again at submission.
	zap.L().Info("portal filing paused for human CAPTCHA",
		zap.String("policy_number", complaint.PolicyNumber),
		zap.String("portal_url", BimaBharosaURL),
	)
	return &model.FilingResult{
		Status:    model.FilingPausedForHuman,
		Detail:    "Solve the CAPTCHA on the portal, submit the complaint, then resume with confirmation.",
		PortalURL: BimaBharosaURL,
	}, nil
}

func validateComplaint(complaint model.Complaint) error {
	switch {
	case complaint.ComplainantName == "":
		return eris.New("complaint missing complainant name")
	case complaint.InsurerName == "":
		return eris.New("complaint missing insurer name")
	case complaint.PolicyNumber == "":
		return eris.New("complaint missing policy number")
	case complaint.IssueSummary == "":
		return eris.New("complaint missing issue summary")
	}
	return nil
}
