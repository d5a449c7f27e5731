package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/network-cli/internal/model"
	"github.com/sells-group/network-cli/internal/resilience"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func TestPostgres_PutEdge(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO edges`).
		WithArgs("a", "b", 0.9, 0.8, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.PutEdge(context.Background(), model.Edge{From: "a", To: "b", Trust: 0.9, Strength: 0.8, LastInteraction: now})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_PutEdge_RejectsInvalid(t *testing.T) {
	s, mock := newMockStore(t)

	err := s.PutEdge(context.Background(), model.Edge{From: "a", To: "a", Trust: 0.5, Strength: 0.5})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Edges(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT from_id, to_id, trust, strength, last_interaction FROM edges WHERE from_id`).
		WithArgs("a").
		WillReturnRows(pgxmock.NewRows([]string{"from_id", "to_id", "trust", "strength", "last_interaction"}).
			AddRow("a", "b", 0.9, 0.8, now).
			AddRow("a", "c", 0.5, 0.4, now))

	edges, err := s.Edges(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, "b", edges[0].To)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Profile_NotFoundIsUnavailable(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT data FROM profiles`).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"data"}))

	_, err := s.Profile(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, resilience.IsUnavailable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Profile(t *testing.T) {
	s, mock := newMockStore(t)

	p := sampleProfile("alice")
	data, err := json.Marshal(p)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT data FROM profiles`).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(data))

	got, err := s.Profile(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, p, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveSessionUpsert(t *testing.T) {
	s, mock := newMockStore(t)
	sess := sampleSession("sess-1", time.Now().UTC())

	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs(sess.ID, sess.ParticipantA, sess.ParticipantB, sess.StrategyName, sess.Round, sess.MaxRounds,
			string(sess.Status), "", "", sess.StartedAt.UTC(), sess.Deadline.UTC()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveSession(context.Background(), sess))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetAgreement_MissingIsNil(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT session_id, terms, mutual_benefit, balance, created_at FROM agreements`).
		WithArgs("sess-9").
		WillReturnRows(pgxmock.NewRows([]string{"session_id", "terms", "mutual_benefit", "balance", "created_at"}))

	got, err := s.GetAgreement(context.Background(), "sess-9")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RejectionCounts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT scoring_version, COUNT\(\*\) FROM rejected_candidates`).
		WillReturnRows(pgxmock.NewRows([]string{"scoring_version", "count"}).
			AddRow("v1", 3).
			AddRow("v2-unbiased", 7))

	counts, err := s.RejectionCounts(context.Background())
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, RejectionCount{ScoringVersion: "v2-unbiased", Count: 7}, counts[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AgreementStats_NullAvg(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\), AVG\(mutual_benefit\) FROM agreements`).
		WillReturnRows(pgxmock.NewRows([]string{"count", "avg"}).AddRow(0, nil))

	count, avg, err := s.AgreementStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, avg)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListSessions_Filter(t *testing.T) {
	s, mock := newMockStore(t)
	started := time.Now().UTC()

	cols := []string{"id", "participant_a", "participant_b", "strategy", "round", "max_rounds",
		"status", "failure_kind", "reason", "started_at", "deadline"}
	mock.ExpectQuery(`SELECT .+ FROM sessions WHERE true AND status = \$1 ORDER BY started_at DESC LIMIT \$2`).
		WithArgs("agreed", 25).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("sess-1", "alice", "bob", "adaptive", 4, 10, "agreed", nil, nil, started, started.Add(time.Minute)))

	sessions, err := s.ListSessions(context.Background(), SessionFilter{Status: model.SessionAgreed, Limit: 25})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, model.SessionAgreed, sessions[0].Status)
	assert.Empty(t, sessions[0].Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_BulkImportEdges_RejectsInvalid(t *testing.T) {
	s, mock := newMockStore(t)

	_, err := s.BulkImportEdges(context.Background(), []model.Edge{
		{From: "a", To: "a", Trust: 0.5, Strength: 0.5},
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
