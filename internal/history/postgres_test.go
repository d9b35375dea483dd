package history

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgres_Get_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT key, fingerprint, artifact_ref, generated_at FROM generation_history WHERE key = \$1`).
		WithArgs("WR-1|2026-01-04|primary").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.Get(context.Background(), "WR-1|2026-01-04|primary")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Get_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2026, 1, 4, 18, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT key, fingerprint, artifact_ref, generated_at FROM generation_history`).
		WithArgs("WR-1|2026-01-04|primary").
		WillReturnRows(pgxmock.NewRows([]string{"key", "fingerprint", "artifact_ref", "generated_at"}).
			AddRow("WR-1|2026-01-04|primary", "deadbeefdeadbeef", "out/x.json", at))

	got, err := s.Get(context.Background(), "WR-1|2026-01-04|primary")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "deadbeefdeadbeef", got.Fingerprint)
	assert.Equal(t, at, got.GeneratedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Put_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs("WR-1|2026-01-04|primary", "deadbeefdeadbeef", "out/x.json", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.Put(context.Background(), rec("WR-1|2026-01-04|primary", "deadbeefdeadbeef"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Reset_AllAndNamed(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM generation_history$`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.Reset(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	mock.ExpectExec(`DELETE FROM generation_history WHERE key = ANY\(\$1\)`).
		WithArgs([]string{"WR-1|2026-01-04|primary"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	n, err = s.Reset(context.Background(), []string{"WR-1|2026-01-04|primary"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_List_FilterAndLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2026, 1, 4, 18, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`split_part\(key, '\|', 1\) = \$1 ORDER BY key LIMIT \$2`).
		WithArgs("WR-1", 50).
		WillReturnRows(pgxmock.NewRows([]string{"key", "fingerprint", "artifact_ref", "generated_at"}).
			AddRow("WR-1|2026-01-04|primary", "deadbeefdeadbeef", "out/x.json", at))

	recs, err := s.List(context.Background(), Filter{WorkRequest: "WR-1", Limit: 50})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "WR-1|2026-01-04|primary", recs[0].Key)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Baseline(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT summary FROM audit_baseline`).
		WillReturnError(pgx.ErrNoRows)

	got, err := s.LoadBaseline(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)

	mock.ExpectQuery(`SELECT summary FROM audit_baseline`).
		WillReturnRows(pgxmock.NewRows([]string{"summary"}).
			AddRow([]byte(`{"risk":"MEDIUM","rows_audited":7,"anomalies":[],"run_at":"2026-01-04T18:00:00Z","trend":{"issues_delta":0,"direction":"stable","previous_count":0}}`)))

	got, err = s.LoadBaseline(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 7, got.RowsAudited)

	mock.ExpectExec(`INSERT INTO audit_baseline`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveBaseline(context.Background(), *got))
	assert.NoError(t, mock.ExpectationsWereMet())
}
