package model

import "time"

// WorkflowCheckpoint is one durable snapshot of a claim case. Checkpoints are
// append-only: a thread's checkpoints form a totally ordered sequence and only
// the latest is needed to resume, but history is retained for audit.
type WorkflowCheckpoint struct {
	ID             string    `json:"id"`
	ThreadID       string    `json:"thread_id"`
	SequenceNumber int64     `json:"sequence_number"`
	Stage          Stage     `json:"stage"`
	Case           ClaimCase `json:"case"`
	CreatedAt      time.Time `json:"created_at"`
}
