package model

// ClaimEvidence is the normalized output of document analysis across the
// policy, rejection letter, discharge summary and hospital bill.
type ClaimEvidence struct {
	RejectionReason  string   `json:"rejection_reason"`
	DiagnosisSummary string   `json:"diagnosis_summary,omitempty"`
	Flags            []string `json:"flags,omitempty"`

	// Dates in ISO 8601 (2006-01-02) where extraction found them.
	PolicyStartDate     string `json:"policy_start_date,omitempty"`
	ClaimSubmissionDate string `json:"claim_submission_date,omitempty"`
	RejectionDate       string `json:"rejection_date,omitempty"`

	PolicyAgeYears            float64            `json:"policy_age_years,omitempty"`
	ConstructiveKnowledgeNote string             `json:"constructive_knowledge_note,omitempty"`
	BillItems                 []BillItem         `json:"bill_items,omitempty"`
	ResponseTime              *ResponseTimeCheck `json:"response_time,omitempty"`
}

// BillItem is one line of the hospital bill.
type BillItem struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// ResponseTimeCheck records whether the insurer repudiated the claim within
// the 15-day window required by the IRDAI 2017 protection regulations.
type ResponseTimeCheck struct {
	ClaimSubmissionDate string `json:"claim_submission_date"`
	RejectionDate       string `json:"rejection_date"`
	DaysToRejection     int    `json:"days_to_rejection"`
	ViolationFifteenDay bool   `json:"violation_15_day_rule"`
}
