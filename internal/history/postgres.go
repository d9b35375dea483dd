package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/atlas-utilities/billing-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock implements it,
// so the Postgres paths are unit-testable without a server.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool, for crews that share one
// history database across machines.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot store operations.
var preparedStatements = map[string]string{
	"get_history":   `SELECT key, fingerprint, artifact_ref, generated_at FROM generation_history WHERE key = $1`,
	"put_history":   `INSERT INTO generation_history (key, fingerprint, artifact_ref, generated_at) VALUES ($1, $2, $3, $4) ON CONFLICT (key) DO UPDATE SET fingerprint = EXCLUDED.fingerprint, artifact_ref = EXCLUDED.artifact_ref, generated_at = EXCLUDED.generated_at`,
	"load_baseline": `SELECT summary FROM audit_baseline WHERE id = 1`,
	"save_baseline": `INSERT INTO audit_baseline (id, summary, saved_at) VALUES (1, $1, $2) ON CONFLICT (id) DO UPDATE SET summary = EXCLUDED.summary, saved_at = EXCLUDED.saved_at`,
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
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS generation_history (
	key          TEXT PRIMARY KEY,
	fingerprint  TEXT NOT NULL,
	artifact_ref TEXT NOT NULL DEFAULT '',
	generated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_baseline (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	summary  JSONB NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) All(ctx context.Context) (map[string]model.HistoryRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, fingerprint, artifact_ref, generated_at FROM generation_history`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load history")
	}
	defer rows.Close()

	out := make(map[string]model.HistoryRecord)
	for rows.Next() {
		var rec model.HistoryRecord
		if err := rows.Scan(&rec.Key, &rec.Fingerprint, &rec.ArtifactRef, &rec.GeneratedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan history record")
		}
		out[rec.Key] = rec
	}
	return out, eris.Wrap(rows.Err(), "postgres: load history iterate")
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*model.HistoryRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT key, fingerprint, artifact_ref, generated_at FROM generation_history WHERE key = $1`,
		key,
	)
	var rec model.HistoryRecord
	err := row.Scan(&rec.Key, &rec.Fingerprint, &rec.ArtifactRef, &rec.GeneratedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get history %s", key)
	}
	return &rec, nil
}

func (s *PostgresStore) Put(ctx context.Context, rec model.HistoryRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO generation_history (key, fingerprint, artifact_ref, generated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET
			fingerprint = EXCLUDED.fingerprint,
			artifact_ref = EXCLUDED.artifact_ref,
			generated_at = EXCLUDED.generated_at`,
		rec.Key, rec.Fingerprint, rec.ArtifactRef, rec.GeneratedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: put history %s", rec.Key)
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]model.HistoryRecord, error) {
	query := `SELECT key, fingerprint, artifact_ref, generated_at FROM generation_history WHERE 1=1`
	var args []any

	if filter.WorkRequest != "" {
		args = append(args, filter.WorkRequest)
		query += ` AND split_part(key, '|', 1) = $1`
	}
	query += ` ORDER BY key`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list history")
	}
	defer rows.Close()

	var out []model.HistoryRecord
	for rows.Next() {
		var rec model.HistoryRecord
		if err := rows.Scan(&rec.Key, &rec.Fingerprint, &rec.ArtifactRef, &rec.GeneratedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan history record")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list history iterate")
}

func (s *PostgresStore) Reset(ctx context.Context, keys []string) (int, error) {
	var tag pgconn.CommandTag
	var err error
	if len(keys) == 0 {
		tag, err = s.pool.Exec(ctx, `DELETE FROM generation_history`)
	} else {
		tag, err = s.pool.Exec(ctx, `DELETE FROM generation_history WHERE key = ANY($1)`, keys)
	}
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reset history")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) LoadBaseline(ctx context.Context) (*model.AuditSummary, error) {
	row := s.pool.QueryRow(ctx, `SELECT summary FROM audit_baseline WHERE id = 1`)

	var summaryJSON []byte
	err := row.Scan(&summaryJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load audit baseline")
	}

	var summary model.AuditSummary
	if err := json.Unmarshal(summaryJSON, &summary); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal audit baseline")
	}
	return &summary, nil
}

func (s *PostgresStore) SaveBaseline(ctx context.Context, summary model.AuditSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal audit baseline")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_baseline (id, summary, saved_at) VALUES (1, $1, $2)
		 ON CONFLICT (id) DO UPDATE SET summary = EXCLUDED.summary, saved_at = EXCLUDED.saved_at`,
		summaryJSON, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save audit baseline")
}
