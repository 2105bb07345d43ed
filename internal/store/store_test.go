package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/stratgate/internal/result"
	"github.com/signalnine/stratgate/internal/store"
)

func newMock(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.New(sqlx.NewDb(db, "postgres")), mock
}

func TestMigrate(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS evaluations").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveReport(t *testing.T) {
	s, mock := newMock(t)
	finished := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := &result.Report{RunID: "run-1", Candidate: "guarded", Group: "gpt", SourceHash: "abc", Seed: 7,
		Robustness: 100, Quality: 96.4, Overall: 97.84, Grade: "A", FinishedAt: finished}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO evaluations")).
		WithArgs("run-1", "guarded", "gpt", "abc", int64(7), 100.0, 96.4, 97.84, "A", finished, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.SaveReport(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveReportError(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("INSERT INTO evaluations").WillReturnError(errors.New("connection reset"))

	err := s.SaveReport(context.Background(), &result.Report{Candidate: "x"})
	assert.ErrorContains(t, err, "saving report x")
}

func TestLatestByHash(t *testing.T) {
	s, mock := newMock(t)
	stored, err := json.Marshal(&result.Report{Candidate: "guarded", Grade: "A", SourceHash: "abc"})
	require.NoError(t, err)
	mock.ExpectQuery("SELECT report FROM evaluations").
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"report"}).AddRow(stored))

	r, err := s.LatestByHash(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "guarded", r.Candidate)
	assert.Equal(t, "A", r.Grade)
}

func TestLatestByHashNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("SELECT report FROM evaluations").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"report"}))

	_, err := s.LatestByHash(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHistory(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	cols := []string{"run_id", "candidate", "grp", "source_hash", "seed", "robustness", "quality", "overall", "grade", "finished_at"}
	mock.ExpectQuery("SELECT run_id, candidate").
		WithArgs("guarded", 20).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("run-2", "guarded", "gpt", "def", 2, 100.0, 90.0, 94.0, "A", now).
			AddRow("run-1", "guarded", "gpt", "abc", 1, 80.0, 90.0, 86.0, "B", now.Add(-time.Hour)))

	rows, err := s.History(context.Background(), "guarded", 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "run-2", rows[0].RunID)
	assert.Equal(t, "gpt", rows[0].Group)
	assert.Equal(t, "B", rows[1].Grade)
	assert.NoError(t, mock.ExpectationsWereMet())
}
