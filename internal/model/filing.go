package model

// FilingStatus is the outcome of a portal filing attempt.
type FilingStatus string

const (
	FilingSuccess        FilingStatus = "SUCCESS"
	FilingPausedForHuman FilingStatus = "PAUSED_FOR_HUMAN"
	FilingFailed         FilingStatus = "FAILED"
)

// FilingResult is returned by the escalation adapter after a filing attempt.
type FilingResult struct {
	Status          FilingStatus `json:"status"`
	Detail          string       `json:"detail,omitempty"`
	ConfirmationRef string       `json:"confirmation_ref,omitempty"`
	PortalURL       string       `json:"portal_url,omitempty"`
}

// Complaint is the grievance payload submitted to the regulator portal.
type Complaint struct {
	ComplainantName   string   `json:"complainant_name"`
	InsurerName       string   `json:"insurer_name"`
	PolicyNumber      string   `json:"policy_number"`
	Mobile            string   `json:"mobile"`
	Email             string   `json:"email"`
	GrievanceCategory string   `json:"grievance_category"`
	IssueSummary      string   `json:"issue_summary"`
	ReliefSought      string   `json:"relief_sought"`
	Attachments       []string `json:"attachments,omitempty"`
}
