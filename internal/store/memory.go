package store

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/network-cli/internal/model"
	"github.com/sells-group/network-cli/internal/resilience"
)

// MemoryStore keeps everything in process. Used for tests and the
// negotiate demo flow; the engine must behave identically against it and
// the durable stores.
type MemoryStore struct {
	mu         sync.RWMutex
	edges      map[string]map[string]model.Edge
	profiles   map[string]model.Profile
	sessions   map[string]model.NegotiationSession
	rounds     map[string][]model.RoundRecord
	agreements map[string]model.Agreement
	rejections []rejection
}

type rejection struct {
	cand   model.MatchCandidate
	reason string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		edges:      make(map[string]map[string]model.Edge),
		profiles:   make(map[string]model.Profile),
		sessions:   make(map[string]model.NegotiationSession),
		rounds:     make(map[string][]model.RoundRecord),
		agreements: make(map[string]model.Agreement),
	}
}

func (m *MemoryStore) PutEdge(_ context.Context, e model.Edge) error {
	if err := e.Validate(); err != nil {
		return eris.Wrap(err, "memory: put edge")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.edges[e.From] == nil {
		m.edges[e.From] = make(map[string]model.Edge)
	}
	m.edges[e.From][e.To] = e
	return nil
}

func (m *MemoryStore) Edges(_ context.Context, participantID string) ([]model.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Edge, 0, len(m.edges[participantID]))
	for _, e := range m.edges[participantID] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].To < out[j].To })
	return out, nil
}

func (m *MemoryStore) AllEdges(_ context.Context) ([]model.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Edge
	for _, byTo := range m.edges {
		for _, e := range byTo {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out, nil
}

func (m *MemoryStore) SaveProfile(_ context.Context, p *model.Profile) error {
	if err := p.Validate(); err != nil {
		return eris.Wrap(err, "memory: save profile")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ParticipantID] = *p
	return nil
}

func (m *MemoryStore) Profile(_ context.Context, participantID string) (*model.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[participantID]
	if !ok {
		return nil, resilience.NewUnavailableError(participantID, eris.New("profile not found"))
	}
	cp := p
	return &cp, nil
}

func (m *MemoryStore) Participants(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.profiles))
	for id := range m.profiles {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) SaveSession(_ context.Context, s *model.NegotiationSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.History = nil // history lives in the rounds log
	m.sessions[s.ID] = cp
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, sessionID string) (*model.NegotiationSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, eris.Errorf("memory: session not found: %s", sessionID)
	}
	s.History = append([]model.RoundRecord(nil), m.rounds[sessionID]...)
	return &s, nil
}

func (m *MemoryStore) AppendRound(_ context.Context, sessionID string, rec model.RoundRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return eris.Errorf("memory: session not found: %s", sessionID)
	}
	m.rounds[sessionID] = append(m.rounds[sessionID], rec)
	return nil
}

func (m *MemoryStore) ListSessions(_ context.Context, filter SessionFilter) ([]model.NegotiationSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.NegotiationSession
	for _, s := range m.sessions {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) SaveAgreement(_ context.Context, a *model.Agreement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agreements[a.SessionID] = *a
	return nil
}

func (m *MemoryStore) GetAgreement(_ context.Context, sessionID string) (*model.Agreement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agreements[sessionID]
	if !ok {
		return nil, nil
	}
	cp := a
	return &cp, nil
}

func (m *MemoryStore) RecordRejection(_ context.Context, cand *model.MatchCandidate, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections = append(m.rejections, rejection{cand: *cand, reason: reason})
	return nil
}

func (m *MemoryStore) RejectionCounts(_ context.Context) ([]RejectionCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, r := range m.rejections {
		counts[r.cand.ScoringVersion]++
	}
	out := make([]RejectionCount, 0, len(counts))
	for v, n := range counts {
		out = append(out, RejectionCount{ScoringVersion: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScoringVersion < out[j].ScoringVersion })
	return out, nil
}

func (m *MemoryStore) SessionCounts(_ context.Context) (map[model.SessionStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[model.SessionStatus]int)
	for _, s := range m.sessions {
		counts[s.Status]++
	}
	return counts, nil
}

func (m *MemoryStore) AgreementStats(_ context.Context) (int, float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.agreements) == 0 {
		return 0, 0, nil
	}
	var sum float64
	for _, a := range m.agreements {
		sum += a.MutualBenefitScore
	}
	return len(m.agreements), sum / float64(len(m.agreements)), nil
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }
func (m *MemoryStore) Close() error                  { return nil }
