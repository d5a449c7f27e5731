package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/network-cli/internal/model"
	"github.com/sells-group/network-cli/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS edges (
	from_id          TEXT NOT NULL,
	to_id            TEXT NOT NULL,
	trust            REAL NOT NULL,
	strength         REAL NOT NULL,
	last_interaction DATETIME NOT NULL,
	PRIMARY KEY (from_id, to_id)
);

CREATE TABLE IF NOT EXISTS profiles (
	participant_id TEXT PRIMARY KEY,
	data           TEXT NOT NULL,
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
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
	started_at    DATETIME NOT NULL,
	deadline      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS session_rounds (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	round      INTEGER NOT NULL,
	proposal   TEXT NOT NULL,
	decision   TEXT NOT NULL,
	confidence REAL NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE (session_id, round)
);

CREATE TABLE IF NOT EXISTS agreements (
	session_id     TEXT PRIMARY KEY REFERENCES sessions(id),
	terms          TEXT NOT NULL,
	mutual_benefit REAL NOT NULL,
	balance        REAL NOT NULL,
	created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS rejected_candidates (
	id              TEXT PRIMARY KEY,
	source_id       TEXT NOT NULL,
	target_id       TEXT NOT NULL,
	candidate       TEXT NOT NULL,
	reason          TEXT NOT NULL,
	scoring_version TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_id);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_session_rounds_session ON session_rounds(session_id);
CREATE INDEX IF NOT EXISTS idx_rejected_version ON rejected_candidates(scoring_version);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) PutEdge(ctx context.Context, e model.Edge) error {
	if err := e.Validate(); err != nil {
		return eris.Wrap(err, "sqlite: put edge")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO edges (from_id, to_id, trust, strength, last_interaction) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (from_id, to_id) DO UPDATE SET trust = ?, strength = ?, last_interaction = ?`,
		e.From, e.To, e.Trust, e.Strength, e.LastInteraction.UTC(),
		e.Trust, e.Strength, e.LastInteraction.UTC(),
	)
	return eris.Wrap(err, "sqlite: upsert edge")
}

func (s *SQLiteStore) Edges(ctx context.Context, participantID string) ([]model.Edge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_id, to_id, trust, strength, last_interaction FROM edges WHERE from_id = ? ORDER BY to_id`,
		participantID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: edges of %s", participantID)
	}
	defer rows.Close()
	return scanEdges(rows)
}

func (s *SQLiteStore) AllEdges(ctx context.Context) ([]model.Edge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_id, to_id, trust, strength, last_interaction FROM edges ORDER BY from_id, to_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: all edges")
	}
	defer rows.Close()
	return scanEdges(rows)
}

func scanEdges(rows *sql.Rows) ([]model.Edge, error) {
	var out []model.Edge
	for rows.Next() {
		var e model.Edge
		if err := rows.Scan(&e.From, &e.To, &e.Trust, &e.Strength, &e.LastInteraction); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan edge")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate edges")
}

func (s *SQLiteStore) SaveProfile(ctx context.Context, p *model.Profile) error {
	if err := p.Validate(); err != nil {
		return eris.Wrap(err, "sqlite: save profile")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal profile")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (participant_id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (participant_id) DO UPDATE SET data = ?, updated_at = ?`,
		p.ParticipantID, string(data), time.Now().UTC(),
		string(data), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: upsert profile")
}

func (s *SQLiteStore) Profile(ctx context.Context, participantID string) (*model.Profile, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM profiles WHERE participant_id = ?`, participantID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, resilience.NewUnavailableError(participantID, eris.New("profile not found"))
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get profile %s", participantID)
	}
	var p model.Profile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal profile")
	}
	return &p, nil
}

func (s *SQLiteStore) Participants(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT participant_id FROM profiles ORDER BY participant_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: participants")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan participant")
		}
		out = append(out, id)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate participants")
}

func (s *SQLiteStore) SaveSession(ctx context.Context, sess *model.NegotiationSession) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, participant_a, participant_b, strategy, round, max_rounds, status, failure_kind, reason, started_at, deadline)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET round = ?, status = ?, failure_kind = ?, reason = ?`,
		sess.ID, sess.ParticipantA, sess.ParticipantB, sess.StrategyName, sess.Round, sess.MaxRounds,
		string(sess.Status), string(sess.FailureKind), sess.Reason, sess.StartedAt.UTC(), sess.Deadline.UTC(),
		sess.Round, string(sess.Status), string(sess.FailureKind), sess.Reason,
	)
	return eris.Wrap(err, "sqlite: save session")
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*model.NegotiationSession, error) {
	var sess model.NegotiationSession
	var failureKind, reason sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, participant_a, participant_b, strategy, round, max_rounds, status, failure_kind, reason, started_at, deadline
		 FROM sessions WHERE id = ?`, sessionID,
	).Scan(&sess.ID, &sess.ParticipantA, &sess.ParticipantB, &sess.StrategyName, &sess.Round, &sess.MaxRounds,
		&sess.Status, &failureKind, &reason, &sess.StartedAt, &sess.Deadline)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("sqlite: session not found: %s", sessionID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", sessionID)
	}
	sess.FailureKind = model.FailureKind(failureKind.String)
	sess.Reason = reason.String

	rows, err := s.db.QueryContext(ctx,
		`SELECT round, proposal, decision, confidence, created_at FROM session_rounds WHERE session_id = ? ORDER BY round`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: rounds of %s", sessionID)
	}
	defer rows.Close()

	for rows.Next() {
		var rec model.RoundRecord
		var proposal string
		if err := rows.Scan(&rec.Round, &proposal, &rec.Decision, &rec.Confidence, &rec.Timestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan round")
		}
		if err := json.Unmarshal([]byte(proposal), &rec.Proposal); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal proposal")
		}
		sess.History = append(sess.History, rec)
	}
	return &sess, eris.Wrap(rows.Err(), "sqlite: iterate rounds")
}

func (s *SQLiteStore) AppendRound(ctx context.Context, sessionID string, rec model.RoundRecord) error {
	proposal, err := json.Marshal(rec.Proposal)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal proposal")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_rounds (id, session_id, round, proposal, decision, confidence, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), sessionID, rec.Round, string(proposal), string(rec.Decision), rec.Confidence, rec.Timestamp.UTC(),
	)
	return eris.Wrapf(err, "sqlite: append round %d to %s", rec.Round, sessionID)
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.NegotiationSession, error) {
	query := `SELECT id, participant_a, participant_b, strategy, round, max_rounds, status, failure_kind, reason, started_at, deadline
	          FROM sessions WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

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
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var out []model.NegotiationSession
	for rows.Next() {
		var sess model.NegotiationSession
		var failureKind, reason sql.NullString
		if err := rows.Scan(&sess.ID, &sess.ParticipantA, &sess.ParticipantB, &sess.StrategyName, &sess.Round,
			&sess.MaxRounds, &sess.Status, &failureKind, &reason, &sess.StartedAt, &sess.Deadline); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		sess.FailureKind = model.FailureKind(failureKind.String)
		sess.Reason = reason.String
		out = append(out, sess)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

func (s *SQLiteStore) SaveAgreement(ctx context.Context, a *model.Agreement) error {
	terms, err := json.Marshal(a.FinalTerms)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal terms")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agreements (session_id, terms, mutual_benefit, balance, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.SessionID, string(terms), a.MutualBenefitScore, a.BalanceScore, a.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: save agreement")
}

func (s *SQLiteStore) GetAgreement(ctx context.Context, sessionID string) (*model.Agreement, error) {
	var a model.Agreement
	var terms string
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, terms, mutual_benefit, balance, created_at FROM agreements WHERE session_id = ?`,
		sessionID,
	).Scan(&a.SessionID, &terms, &a.MutualBenefitScore, &a.BalanceScore, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get agreement %s", sessionID)
	}
	if err := json.Unmarshal([]byte(terms), &a.FinalTerms); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal terms")
	}
	return &a, nil
}

func (s *SQLiteStore) RecordRejection(ctx context.Context, cand *model.MatchCandidate, reason string) error {
	data, err := json.Marshal(cand)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal candidate")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rejected_candidates (id, source_id, target_id, candidate, reason, scoring_version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), cand.SourceID, cand.TargetID, string(data), reason, cand.ScoringVersion, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: record rejection")
}

func (s *SQLiteStore) RejectionCounts(ctx context.Context) ([]RejectionCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT scoring_version, COUNT(*) FROM rejected_candidates GROUP BY scoring_version ORDER BY scoring_version`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rejection counts")
	}
	defer rows.Close()

	var out []RejectionCount
	for rows.Next() {
		var rc RejectionCount
		if err := rows.Scan(&rc.ScoringVersion, &rc.Count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rejection count")
		}
		out = append(out, rc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: rejection counts iterate")
}

func (s *SQLiteStore) SessionCounts(ctx context.Context) (map[model.SessionStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM sessions GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: session counts")
	}
	defer rows.Close()

	counts := make(map[model.SessionStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session count")
		}
		counts[model.SessionStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: session counts iterate")
}

func (s *SQLiteStore) AgreementStats(ctx context.Context) (int, float64, error) {
	var count int
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(mutual_benefit) FROM agreements`,
	).Scan(&count, &avg)
	if err != nil {
		return 0, 0, eris.Wrap(err, "sqlite: agreement stats")
	}
	return count, avg.Float64, nil
}
