package model

import "time"

// Stage represents the current state of a claim-contestation workflow.
type Stage string

const (
	StageInit             Stage = "INIT"
	StageAnalyzing        Stage = "ANALYZING"
	StageMoratoriumCheck  Stage = "MORATORIUM_CHECK"
	StageDrafting         Stage = "DRAFTING"
	StageAwaitingResponse Stage = "AWAITING_RESPONSE"
	StageEscalating       Stage = "ESCALATING"
	StageEscalatingPaused Stage = "ESCALATING_PAUSED"
	StageCompleted        Stage = "COMPLETED"
	StageEscalated        Stage = "ESCALATED"
	StageAbandoned        Stage = "ABANDONED"
	StageFailed           Stage = "FAILED"
)

// Terminal reports whether the stage is final. A case in a terminal stage
// accepts no further transitions.
func (s Stage) Terminal() bool {
	switch s {
	case StageCompleted, StageEscalated, StageAbandoned, StageFailed:
		return true
	default:
		return false
	}
}

// Suspended reports whether the stage is a suspension point waiting on an
// external resume signal.
func (s Stage) Suspended() bool {
	return s == StageAwaitingResponse || s == StageEscalatingPaused
}

// DocumentSet holds references to the four claim documents the workflow
// analyzes.
type DocumentSet struct {
	PolicyDocument   string `json:"policy_document"`
	RejectionLetter  string `json:"rejection_letter"`
	DischargeSummary string `json:"discharge_summary"`
	HospitalBill     string `json:"hospital_bill"`
}

// Missing returns the names of required documents that have no reference.
func (d DocumentSet) Missing() []string {
	var missing []string
	if d.PolicyDocument == "" {
		missing = append(missing, "policy_document")
	}
	if d.RejectionLetter == "" {
		missing = append(missing, "rejection_letter")
	}
	if d.DischargeSummary == "" {
		missing = append(missing, "discharge_summary")
	}
	if d.HospitalBill == "" {
		missing = append(missing, "hospital_bill")
	}
	return missing
}

// Complainant identifies the policyholder filing the contestation.
type Complainant struct {
	Name         string `json:"name"`
	Mobile       string `json:"mobile"`
	Email        string `json:"email"`
	InsurerName  string `json:"insurer_name"`
	PolicyNumber string `json:"policy_number"`
}

// ClaimCase is the full workflow state for one contested claim. It is mutated
// exclusively by the workflow engine's transition functions and snapshotted
// into the checkpoint store after every transition.
type ClaimCase struct {
	ClaimID       string      `json:"claim_id"`
	Documents     DocumentSet `json:"documents"`
	Complainant   Complainant `json:"complainant"`
	PolicyAgeHint float64     `json:"policy_age_hint,omitempty"`
	DryRunPortal  bool        `json:"dry_run_portal"`

	Stage    Stage              `json:"stage"`
	Evidence *ClaimEvidence     `json:"evidence,omitempty"`
	Verdict  *MoratoriumVerdict `json:"verdict,omitempty"`
	Rebuttal string             `json:"rebuttal,omitempty"`
	Filing   *FilingResult      `json:"filing,omitempty"`

	// Idempotence flags: set once a stage's external effect has completed, so
	// a resumed run never re-invokes a non-idempotent capability.
	AnalysisDone    bool `json:"analysis_done"`
	DraftDone       bool `json:"draft_done"`
	FilingAttempted bool `json:"filing_attempted"`

	InsurerReplied bool `json:"insurer_replied"`

	FailureKind   string `json:"failure_kind,omitempty"`
	FailureDetail string `json:"failure_detail,omitempty"`

	Timeline  []string  `json:"timeline"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AppendTimeline records an event with an RFC3339 UTC timestamp.
func (c *ClaimCase) AppendTimeline(event string) {
	c.Timeline = append(c.Timeline, time.Now().UTC().Format(time.RFC3339)+" - "+event)
}
