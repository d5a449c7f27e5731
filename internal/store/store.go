// Package store persists the graph, negotiation sessions, agreements and
// match analytics behind one interface with memory, sqlite and postgres
// implementations.
package store

import (
	"context"

	"github.com/sells-group/network-cli/internal/model"
)

// SessionFilter narrows ListSessions.
type SessionFilter struct {
	Status model.SessionStatus `json:"status,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}

// RejectionCount aggregates rejected candidates per scoring version.
type RejectionCount struct {
	ScoringVersion string `json:"scoring_version"`
	Count          int    `json:"count"`
}

// Store is the persistence interface for the engine. Session rounds are
// append-only; nothing ever rewrites history. The in-memory
// implementation is the reference for correctness.
type Store interface {
	// Graph
	PutEdge(ctx context.Context, e model.Edge) error
	Edges(ctx context.Context, participantID string) ([]model.Edge, error)
	AllEdges(ctx context.Context) ([]model.Edge, error)

	// Profiles
	SaveProfile(ctx context.Context, p *model.Profile) error
	// Profile returns a resilience.UnavailableError when the participant
	// is unknown, so callers classify it per the failure taxonomy.
	Profile(ctx context.Context, participantID string) (*model.Profile, error)
	Participants(ctx context.Context) ([]string, error)

	// Sessions
	SaveSession(ctx context.Context, s *model.NegotiationSession) error
	GetSession(ctx context.Context, sessionID string) (*model.NegotiationSession, error)
	AppendRound(ctx context.Context, sessionID string, rec model.RoundRecord) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.NegotiationSession, error)

	// Agreements
	SaveAgreement(ctx context.Context, a *model.Agreement) error
	GetAgreement(ctx context.Context, sessionID string) (*model.Agreement, error)

	// Match analytics
	RecordRejection(ctx context.Context, cand *model.MatchCandidate, reason string) error
	RejectionCounts(ctx context.Context) ([]RejectionCount, error)
	SessionCounts(ctx context.Context) (map[model.SessionStatus]int, error)
	AgreementStats(ctx context.Context) (count int, avgMutualBenefit float64, err error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
