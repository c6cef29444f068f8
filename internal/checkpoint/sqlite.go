package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/claimclaw/contest-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. WAL journaling with
// synchronous=NORMAL gives durability on commit, so the latest checkpoint
// survives a crash immediately after Save returns.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS checkpoints (
	id              TEXT PRIMARY KEY,
	thread_id       TEXT NOT NULL,
	sequence_number INTEGER NOT NULL,
	stage           TEXT NOT NULL,
	snapshot        TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (thread_id, sequence_number)
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_thread_id ON checkpoints(thread_id);
CREATE INDEX IF NOT EXISTS idx_checkpoints_stage ON checkpoints(stage);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, threadID string, snapshot *model.ClaimCase) (int64, error) {
	snapJSON, err := json.Marshal(snapshot)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: marshal snapshot")
	}

	// Next sequence number is computed in the INSERT itself so the append is
	// atomic; the UNIQUE constraint turns a lost race into a detectable error.
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO checkpoints (id, thread_id, sequence_number, stage, snapshot, created_at)
		 VALUES (?, ?,
		         (SELECT COALESCE(MAX(sequence_number), 0) + 1 FROM checkpoints WHERE thread_id = ?),
		         ?, ?, ?)
		 RETURNING sequence_number`,
		uuid.New().String(), threadID, threadID, string(snapshot.Stage), string(snapJSON), time.Now().UTC(),
	)

	var seq int64
	if err := row.Scan(&seq); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, eris.Wrapf(ErrConcurrentModification, "thread %s", threadID)
		}
		return 0, eris.Wrapf(err, "sqlite: save checkpoint for thread %s", threadID)
	}
	return seq, nil
}

func (s *SQLiteStore) LoadLatest(ctx context.Context, threadID string) (*model.WorkflowCheckpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, thread_id, sequence_number, stage, snapshot, created_at
		 FROM checkpoints WHERE thread_id = ?
		 ORDER BY sequence_number DESC LIMIT 1`,
		threadID,
	)
	cp, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "thread %s", threadID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load latest for thread %s", threadID)
	}
	return cp, nil
}

func (s *SQLiteStore) History(ctx context.Context, threadID string, limit int) ([]model.WorkflowCheckpoint, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, sequence_number, stage, snapshot, created_at
		 FROM checkpoints WHERE thread_id = ?
		 ORDER BY sequence_number DESC LIMIT ?`,
		threadID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: history for thread %s", threadID)
	}
	defer rows.Close()

	var history []model.WorkflowCheckpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history row")
		}
		history = append(history, *cp)
	}
	return history, eris.Wrap(rows.Err(), "sqlite: history iterate")
}

func (s *SQLiteStore) ListThreads(ctx context.Context, filter ThreadFilter) ([]ThreadSummary, error) {
	query := `SELECT c.thread_id, c.stage, c.sequence_number, c.created_at
		 FROM checkpoints c
		 JOIN (SELECT thread_id, MAX(sequence_number) AS max_seq
		       FROM checkpoints GROUP BY thread_id) latest
		   ON c.thread_id = latest.thread_id AND c.sequence_number = latest.max_seq
		 WHERE 1=1`
	var args []any

	if filter.Stage != "" {
		query += ` AND c.stage = ?`
		args = append(args, string(filter.Stage))
	}
	query += ` ORDER BY c.created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list threads")
	}
	defer rows.Close()

	var threads []ThreadSummary
	for rows.Next() {
		var ts ThreadSummary
		if err := rows.Scan(&ts.ThreadID, &ts.Stage, &ts.SequenceNumber, &ts.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan thread summary")
		}
		threads = append(threads, ts)
	}
	return threads, eris.Wrap(rows.Err(), "sqlite: list threads iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row scannable) (*model.WorkflowCheckpoint, error) {
	var cp model.WorkflowCheckpoint
	var snapJSON string

	err := row.Scan(&cp.ID, &cp.ThreadID, &cp.SequenceNumber, &cp.Stage, &snapJSON, &cp.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(snapJSON), &cp.Case); err != nil {
		return nil, eris.Wrap(err, "unmarshal snapshot")
	}
	return &cp, nil
}
