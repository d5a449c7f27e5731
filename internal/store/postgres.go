package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/network-cli/internal/config"
	"github.com/sells-group/network-cli/internal/db"
	"github.com/sells-group/network-cli/internal/model"
	"github.com/sells-group/network-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// preparedStatements lists the hot-path queries prepared on each new
// connection.
var preparedStatements = map[string]string{
	"upsert_edge": `INSERT INTO edges (from_id, to_id, trust, strength, last_interaction) VALUES ($1, $2, $3, $4, $5)
	 ON CONFLICT (from_id, to_id) DO UPDATE SET trust = $3, strength = $4, last_interaction = $5`,
	"get_edges":    `SELECT from_id, to_id, trust, strength, last_interaction FROM edges WHERE from_id = $1 ORDER BY to_id`,
	"get_profile":  `SELECT data FROM profiles WHERE participant_id = $1`,
	"append_round": `INSERT INTO session_rounds (id, session_id, round, proposal, decision, confidence, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
}

// NewPostgres creates a PostgresStore with a tuned connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg config.PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	if poolCfg.MaxConns > 0 {
		pgxCfg.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		pgxCfg.MinConns = poolCfg.MinConns
	}
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
CREATE TABLE IF NOT EXISTS edges (
	from_id          TEXT NOT NULL,
	to_id            TEXT NOT NULL,
	trust            DOUBLE PRECISION NOT NULL,
	strength         DOUBLE PRECISION NOT NULL,
	last_interaction TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (from_id, to_id)
);

CREATE TABLE IF NOT EXISTS profiles (
	participant_id TEXT PRIMARY KEY,
	data           JSONB NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	participant_a TEXT NOT NULL,
	participant_b TEXT NOT NULL,
	strategy      TEXT NOT NULL,
	round         INTEGER NOT NULL DEFAULT 0,
	max_rounds    INTEGER NOT NULL,
	status        TEXT NOT NULL DEFAULT 'active',
	failure_kind  TEXT,
	reason        TEXT,
	started_at    TIMESTAMPTZ NOT NULL,
	deadline      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS session_rounds (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	round      INTEGER NOT NULL,
	proposal   JSONB NOT NULL,
	decision   TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (session_id, round)
);

CREATE TABLE IF NOT EXISTS agreements (
	session_id     TEXT PRIMARY KEY REFERENCES sessions(id),
	terms          JSONB NOT NULL,
	mutual_benefit DOUBLE PRECISION NOT NULL,
	balance        DOUBLE PRECISION NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS rejected_candidates (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source_id       TEXT NOT NULL,
	target_id       TEXT NOT NULL,
	candidate       JSONB NOT NULL,
	reason          TEXT NOT NULL,
	scoring_version TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_id);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_session_rounds_session ON session_rounds(session_id);
CREATE INDEX IF NOT EXISTS idx_rejected_version ON rejected_candidates(scoring_version);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) PutEdge(ctx context.Context, e model.Edge) error {
	if err := e.Validate(); err != nil {
		return eris.Wrap(err, "postgres: put edge")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO edges (from_id, to_id, trust, strength, last_interaction) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (from_id, to_id) DO UPDATE SET trust = $3, strength = $4, last_interaction = $5`,
		e.From, e.To, e.Trust, e.Strength, e.LastInteraction.UTC(),
	)
	return eris.Wrap(err, "postgres: upsert edge")
}

// BulkImportEdges merges a batch of edges in one round trip; the loader
// prefers this over per-edge upserts when the store supports it.
func (s *PostgresStore) BulkImportEdges(ctx context.Context, edges []model.Edge) (int64, error) {
	rows := make([][]any, 0, len(edges))
	for _, e := range edges {
		if err := e.Validate(); err != nil {
			return 0, eris.Wrap(err, "postgres: bulk import")
		}
		rows = append(rows, []any{e.From, e.To, e.Trust, e.Strength, e.LastInteraction.UTC()})
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "edges",
		Columns:      []string{"from_id", "to_id", "trust", "strength", "last_interaction"},
		ConflictKeys: []string{"from_id", "to_id"},
	}, rows)
}

func (s *PostgresStore) Edges(ctx context.Context, participantID string) ([]model.Edge, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT from_id, to_id, trust, strength, last_interaction FROM edges WHERE from_id = $1 ORDER BY to_id`,
		participantID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: edges of %s", participantID)
	}
	defer rows.Close()
	return scanPgEdges(rows)
}

func (s *PostgresStore) AllEdges(ctx context.Context) ([]model.Edge, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT from_id, to_id, trust, strength, last_interaction FROM edges ORDER BY from_id, to_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: all edges")
	}
	defer rows.Close()
	return scanPgEdges(rows)
}

func scanPgEdges(rows pgx.Rows) ([]model.Edge, error) {
	var out []model.Edge
	for rows.Next() {
		var e model.Edge
		if err := rows.Scan(&e.From, &e.To, &e.Trust, &e.Strength, &e.LastInteraction); err != nil {
			return nil, eris.Wrap(err, "postgres: scan edge")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate edges")
}

func (s *PostgresStore) SaveProfile(ctx context.Context, p *model.Profile) error {
	if err := p.Validate(); err != nil {
		return eris.Wrap(err, "postgres: save profile")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal profile")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO profiles (participant_id, data, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (participant_id) DO UPDATE SET data = $2, updated_at = $3`,
		p.ParticipantID, data, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: upsert profile")
}

func (s *PostgresStore) Profile(ctx context.Context, participantID string) (*model.Profile, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM profiles WHERE participant_id = $1`, participantID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, resilience.NewUnavailableError(participantID, eris.New("profile not found"))
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get profile %s", participantID)
	}
	var p model.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal profile")
	}
	return &p, nil
}

func (s *PostgresStore) Participants(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT participant_id FROM profiles ORDER BY participant_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: participants")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan participant")
		}
		out = append(out, id)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate participants")
}

func (s *PostgresStore) SaveSession(ctx context.Context, sess *model.NegotiationSession) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, participant_a, participant_b, strategy, round, max_rounds, status, failure_kind, reason, started_at, deadline)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET round = $5, status = $7, failure_kind = $8, reason = $9`,
		sess.ID, sess.ParticipantA, sess.ParticipantB, sess.StrategyName, sess.Round, sess.MaxRounds,
		string(sess.Status), string(sess.FailureKind), sess.Reason, sess.StartedAt.UTC(), sess.Deadline.UTC(),
	)
	return eris.Wrap(err, "postgres: save session")
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*model.NegotiationSession, error) {
	var sess model.NegotiationSession
	var failureKind, reason *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, participant_a, participant_b, strategy, round, max_rounds, status, failure_kind, reason, started_at, deadline
		 FROM sessions WHERE id = $1`, sessionID,
	).Scan(&sess.ID, &sess.ParticipantA, &sess.ParticipantB, &sess.StrategyName, &sess.Round, &sess.MaxRounds,
		&sess.Status, &failureKind, &reason, &sess.StartedAt, &sess.Deadline)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: session not found: %s", sessionID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get session %s", sessionID)
	}
	if failureKind != nil {
		sess.FailureKind = model.FailureKind(*failureKind)
	}
	if reason != nil {
		sess.Reason = *reason
	}

	rows, err := s.pool.Query(ctx,
		`SELECT round, proposal, decision, confidence, created_at FROM session_rounds WHERE session_id = $1 ORDER BY round`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: rounds of %s", sessionID)
	}
	defer rows.Close()

	for rows.Next() {
		var rec model.RoundRecord
		var proposal []byte
		if err := rows.Scan(&rec.Round, &proposal, &rec.Decision, &rec.Confidence, &rec.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan round")
		}
		if err := json.Unmarshal(proposal, &rec.Proposal); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal proposal")
		}
		sess.History = append(sess.History, rec)
	}
	return &sess, eris.Wrap(rows.Err(), "postgres: iterate rounds")
}

func (s *PostgresStore) AppendRound(ctx context.Context, sessionID string, rec model.RoundRecord) error {
	proposal, err := json.Marshal(rec.Proposal)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal proposal")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO session_rounds (id, session_id, round, proposal, decision, confidence, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), sessionID, rec.Round, proposal, string(rec.Decision), rec.Confidence, rec.Timestamp.UTC(),
	)
	return eris.Wrapf(err, "postgres: append round %d to %s", rec.Round, sessionID)
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.NegotiationSession, error) {
	query := `SELECT id, participant_a, participant_b, strategy, round, max_rounds, status, failure_kind, reason, started_at, deadline
	          FROM sessions WHERE true`
	var args []any
	argIdx := 1

	if filter.Status != "" {
		query += ` AND status = $1`
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT $` + strconv.Itoa(argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += ` OFFSET $` + strconv.Itoa(argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var out []model.NegotiationSession
	for rows.Next() {
		var sess model.NegotiationSession
		var failureKind, reason *string
		if err := rows.Scan(&sess.ID, &sess.ParticipantA, &sess.ParticipantB, &sess.StrategyName, &sess.Round,
			&sess.MaxRounds, &sess.Status, &failureKind, &reason, &sess.StartedAt, &sess.Deadline); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		if failureKind != nil {
			sess.FailureKind = model.FailureKind(*failureKind)
		}
		if reason != nil {
			sess.Reason = *reason
		}
		out = append(out, sess)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

func (s *PostgresStore) SaveAgreement(ctx context.Context, a *model.Agreement) error {
	terms, err := json.Marshal(a.FinalTerms)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal terms")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO agreements (session_id, terms, mutual_benefit, balance, created_at) VALUES ($1, $2, $3, $4, $5)`,
		a.SessionID, terms, a.MutualBenefitScore, a.BalanceScore, a.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: save agreement")
}

func (s *PostgresStore) GetAgreement(ctx context.Context, sessionID string) (*model.Agreement, error) {
	var a model.Agreement
	var terms []byte
	err := s.pool.QueryRow(ctx,
		`SELECT session_id, terms, mutual_benefit, balance, created_at FROM agreements WHERE session_id = $1`,
		sessionID,
	).Scan(&a.SessionID, &terms, &a.MutualBenefitScore, &a.BalanceScore, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get agreement %s", sessionID)
	}
	if err := json.Unmarshal(terms, &a.FinalTerms); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal terms")
	}
	return &a, nil
}

func (s *PostgresStore) RecordRejection(ctx context.Context, cand *model.MatchCandidate, reason string) error {
	data, err := json.Marshal(cand)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal candidate")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO rejected_candidates (id, source_id, target_id, candidate, reason, scoring_version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), cand.SourceID, cand.TargetID, data, reason, cand.ScoringVersion, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: record rejection")
}

func (s *PostgresStore) RejectionCounts(ctx context.Context) ([]RejectionCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT scoring_version, COUNT(*) FROM rejected_candidates GROUP BY scoring_version ORDER BY scoring_version`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: rejection counts")
	}
	defer rows.Close()

	var out []RejectionCount
	for rows.Next() {
		var rc RejectionCount
		if err := rows.Scan(&rc.ScoringVersion, &rc.Count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rejection count")
		}
		out = append(out, rc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: rejection counts iterate")
}

func (s *PostgresStore) SessionCounts(ctx context.Context) (map[model.SessionStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM sessions GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: session counts")
	}
	defer rows.Close()

	counts := make(map[model.SessionStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session count")
		}
		counts[model.SessionStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: session counts iterate")
}

func (s *PostgresStore) AgreementStats(ctx context.Context) (int, float64, error) {
	var count int
	var avg *float64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), AVG(mutual_benefit) FROM agreements`,
	).Scan(&count, &avg)
	if err != nil {
		return 0, 0, eris.Wrap(err, "postgres: agreement stats")
	}
	if avg == nil {
		return count, 0, nil
	}
	return count, *avg, nil
}
