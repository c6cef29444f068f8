// Package checkpoint provides the durable, append-only store of workflow
// snapshots keyed by thread ID. The workflow assumes a single writer per
// thread_id; the store does not arbitrate concurrent writers, but a unique
// (thread_id, sequence_number) constraint makes a violated assumption
// detectable as ErrConcurrentModification rather than silent corruption.
package checkpoint

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/claimclaw/contest-cli/internal/model"
)

// ErrNotFound is returned when a thread has no checkpoints.
var ErrNotFound = eris.New("checkpoint: thread not found")

// ErrConcurrentModification is returned when a save collides with another
// writer for the same thread_id.
var ErrConcurrentModification = eris.New("checkpoint: concurrent writer detected")

// ThreadFilter specifies criteria for listing threads.
type ThreadFilter struct {
	Stage  model.Stage `json:"stage,omitempty"`
	Limit  int         `json:"limit,omitempty"`
	Offset int         `json:"offset,omitempty"`
}

// ThreadSummary is the latest-checkpoint view of one thread.
type ThreadSummary struct {
	ThreadID       string      `json:"thread_id"`
	Stage          model.Stage `json:"stage"`
	SequenceNumber int64       `json:"sequence_number"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Store defines the persistence interface for workflow checkpoints.
// Writes are append-only; sequence numbers strictly increase per thread.
type Store interface {
	// Save appends a snapshot and returns its sequence number.
	Save(ctx context.Context, threadID string, snapshot *model.ClaimCase) (int64, error)
	// LoadLatest returns the most recent checkpoint, or ErrNotFound.
	LoadLatest(ctx context.Context, threadID string) (*model.WorkflowCheckpoint, error)
	// History returns checkpoints newest-first, up to limit (0 = default 50).
	History(ctx context.Context, threadID string, limit int) ([]model.WorkflowCheckpoint, error)
	// ListThreads returns latest-checkpoint summaries matching the filter.
	ListThreads(ctx context.Context, filter ThreadFilter) ([]ThreadSummary, error)

	Migrate(ctx context.Context) error
	Close() error
}
