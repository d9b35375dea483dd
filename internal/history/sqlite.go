package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/atlas-utilities/billing-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. This is the default
// backend: one file next to the sheets it bills.
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
CREATE TABLE IF NOT EXISTS generation_history (
	key          TEXT PRIMARY KEY,
	fingerprint  TEXT NOT NULL,
	artifact_ref TEXT NOT NULL DEFAULT '',
	generated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_baseline (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	summary  TEXT NOT NULL,
	saved_at DATETIME NOT NULL
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) All(ctx context.Context) (map[string]model.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, fingerprint, artifact_ref, generated_at FROM generation_history`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load history")
	}
	defer rows.Close()

	out := make(map[string]model.HistoryRecord)
	for rows.Next() {
		var rec model.HistoryRecord
		if err := rows.Scan(&rec.Key, &rec.Fingerprint, &rec.ArtifactRef, &rec.GeneratedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history record")
		}
		out[rec.Key] = rec
	}
	return out, eris.Wrap(rows.Err(), "sqlite: load history iterate")
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*model.HistoryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, fingerprint, artifact_ref, generated_at FROM generation_history WHERE key = ?`,
		key,
	)
	var rec model.HistoryRecord
	err := row.Scan(&rec.Key, &rec.Fingerprint, &rec.ArtifactRef, &rec.GeneratedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get history %s", key)
	}
	return &rec, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec model.HistoryRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generation_history (key, fingerprint, artifact_ref, generated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			artifact_ref = excluded.artifact_ref,
			generated_at = excluded.generated_at`,
		rec.Key, rec.Fingerprint, rec.ArtifactRef, rec.GeneratedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: put history %s", rec.Key)
}

func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]model.HistoryRecord, error) {
	query := `SELECT key, fingerprint, artifact_ref, generated_at FROM generation_history WHERE 1=1`
	var args []any

	if filter.WorkRequest != "" {
		// Keys are "wr|week|kind"; match on the first segment.
		query += ` AND key LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(filter.WorkRequest)+`|%`)
	}
	query += ` ORDER BY key`

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
		return nil, eris.Wrap(err, "sqlite: list history")
	}
	defer rows.Close()

	var out []model.HistoryRecord
	for rows.Next() {
		var rec model.HistoryRecord
		if err := rows.Scan(&rec.Key, &rec.Fingerprint, &rec.ArtifactRef, &rec.GeneratedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history record")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list history iterate")
}

func (s *SQLiteStore) Reset(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		res, err := s.db.ExecContext(ctx, `DELETE FROM generation_history`)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: reset history")
		}
		n, err := res.RowsAffected()
		return int(n), eris.Wrap(err, "sqlite: rows affected")
	}

	total := 0
	for _, key := range keys {
		res, err := s.db.ExecContext(ctx, `DELETE FROM generation_history WHERE key = ?`, key)
		if err != nil {
			return total, eris.Wrapf(err, "sqlite: reset history %s", key)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, eris.Wrap(err, "sqlite: rows affected")
		}
		total += int(n)
	}
	return total, nil
}

func (s *SQLiteStore) LoadBaseline(ctx context.Context) (*model.AuditSummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT summary FROM audit_baseline WHERE id = 1`)

	var summaryJSON string
	err := row.Scan(&summaryJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load audit baseline")
	}

	var summary model.AuditSummary
	if err := json.Unmarshal([]byte(summaryJSON), &summary); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal audit baseline")
	}
	return &summary, nil
}

func (s *SQLiteStore) SaveBaseline(ctx context.Context, summary model.AuditSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal audit baseline")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_baseline (id, summary, saved_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET summary = excluded.summary, saved_at = excluded.saved_at`,
		string(summaryJSON), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save audit baseline")
}

// escapeLike escapes LIKE wildcards in a literal match segment.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
