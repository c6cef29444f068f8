package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/claimclaw/contest-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses, satisfied by pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool. Intended for deployments
// where several operators share one checkpoint database; the single-writer-
// per-thread_id contract still applies.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path store operations.
var preparedStatements = map[string]string{
	"save_checkpoint": `INSERT INTO checkpoints (id, thread_id, sequence_number, stage, snapshot, created_at)
		VALUES ($1, $2, (SELECT COALESCE(MAX(sequence_number), 0) + 1 FROM checkpoints WHERE thread_id = $2), $3, $4, $5)
		RETURNING sequence_number`,
	"load_latest": `SELECT id, thread_id, sequence_number, stage, snapshot, created_at
		FROM checkpoints WHERE thread_id = $1 ORDER BY sequence_number DESC LIMIT 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS checkpoints (
	id              TEXT PRIMARY KEY,
	thread_id       TEXT NOT NULL,
	sequence_number BIGINT NOT NULL,
	stage           TEXT NOT NULL,
	snapshot        JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (thread_id, sequence_number)
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_thread_id ON checkpoints(thread_id);
CREATE INDEX IF NOT EXISTS idx_checkpoints_stage ON checkpoints(stage);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	} else if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, threadID string, snapshot *model.ClaimCase) (int64, error) {
	snapJSON, err := json.Marshal(snapshot)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: marshal snapshot")
	}

	row := s.pool.QueryRow(ctx, preparedStatements["save_checkpoint"],
		uuid.New().String(), threadID, string(snapshot.Stage), string(snapJSON), time.Now().UTC(),
	)

	var seq int64
	if err := row.Scan(&seq); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, eris.Wrapf(ErrConcurrentModification, "thread %s", threadID)
		}
		return 0, eris.Wrapf(err, "postgres: save checkpoint for thread %s", threadID)
	}
	return seq, nil
}

func (s *PostgresStore) LoadLatest(ctx context.Context, threadID string) (*model.WorkflowCheckpoint, error) {
	row := s.pool.QueryRow(ctx, preparedStatements["load_latest"], threadID)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "thread %s", threadID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load latest for thread %s", threadID)
	}
	return cp, nil
}

func (s *PostgresStore) History(ctx context.Context, threadID string, limit int) ([]model.WorkflowCheckpoint, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, thread_id, sequence_number, stage, snapshot, created_at
		 FROM checkpoints WHERE thread_id = $1
		 ORDER BY sequence_number DESC LIMIT $2`,
		threadID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: history for thread %s", threadID)
	}
	defer rows.Close()

	var history []model.WorkflowCheckpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan history row")
		}
		history = append(history, *cp)
	}
	return history, eris.Wrap(rows.Err(), "postgres: history iterate")
}

func (s *PostgresStore) ListThreads(ctx context.Context, filter ThreadFilter) ([]ThreadSummary, error) {
	query := `SELECT c.thread_id, c.stage, c.sequence_number, c.created_at
		 FROM checkpoints c
		 JOIN (SELECT thread_id, MAX(sequence_number) AS max_seq
		       FROM checkpoints GROUP BY thread_id) latest
		   ON c.thread_id = latest.thread_id AND c.sequence_number = latest.max_seq
		 WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Stage != "" {
		query += ` AND c.stage = ` + arg(string(filter.Stage))
	}
	query += ` ORDER BY c.created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list threads")
	}
	defer rows.Close()

	var threads []ThreadSummary
	for rows.Next() {
		var ts ThreadSummary
		if err := rows.Scan(&ts.ThreadID, &ts.Stage, &ts.SequenceNumber, &ts.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan thread summary")
		}
		threads = append(threads, ts)
	}
	return threads, eris.Wrap(rows.Err(), "postgres: list threads iterate")
}

