package negotiation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/network-cli/internal/config"
	"github.com/sells-group/network-cli/internal/model"
	"github.com/sells-group/network-cli/internal/resilience"
)

// Store persists sessions, rounds and agreements. Rounds are append-only;
// the facilitator never rewrites history.
type Store interface {
	SaveSession(ctx context.Context, s *model.NegotiationSession) error
	AppendRound(ctx context.Context, sessionID string, rec model.RoundRecord) error
	SaveAgreement(ctx context.Context, a *model.Agreement) error
}

// ProfileSource supplies participant profiles. A resilience.UnavailableError
// from it fails the session with the participant_unavailable kind.
type ProfileSource interface {
	Profile(ctx context.Context, participantID string) (*model.Profile, error)
}

// StartOptions tune one session; zero values fall back to configuration.
type StartOptions struct {
	Strategy  string
	MaxRounds int
	Timeout   time.Duration
	AgentA    *Agent
	AgentB    *Agent
}

// StepResult reports the outcome of one round.
type StepResult struct {
	SessionID   string              `json:"session_id"`
	Round       int                 `json:"round"`
	Decision    model.Decision      `json:"decision"`
	Confidence  float64             `json:"confidence"`
	Status      model.SessionStatus `json:"status"`
	FailureKind model.FailureKind   `json:"failure_kind,omitempty"`
	Reason      string              `json:"reason,omitempty"`
	Counter     *model.Proposal     `json:"counter,omitempty"`
	Agreement   *model.Agreement    `json:"agreement,omitempty"`
}

type session struct {
	// mu serializes Step calls for this session; sessions are otherwise
	// independent and run in parallel.
	mu        sync.Mutex
	model     *model.NegotiationSession
	candidate *model.MatchCandidate
	agents    map[string]*Agent
	strategy  Strategy

	cancelMu     sync.Mutex
	cancelled    bool
	cancelReason string
}

func (st *session) markCancelled(reason string) {
	st.cancelMu.Lock()
	defer st.cancelMu.Unlock()
	if !st.cancelled {
		st.cancelled = true
		st.cancelReason = reason
	}
}

func (st *session) cancelledReason() (string, bool) {
	st.cancelMu.Lock()
	defer st.cancelMu.Unlock()
	return st.cancelReason, st.cancelled
}

// Facilitator drives negotiation sessions. Safe for concurrent use across
// sessions; rounds within one session are strictly sequential.
type Facilitator struct {
	cfg      config.NegotiationConfig
	store    Store
	profiles ProfileSource

	mu       sync.RWMutex
	sessions map[string]*session

	now func() time.Time
}

type nopStore struct{}

func (nopStore) SaveSession(context.Context, *model.NegotiationSession) error { return nil }
func (nopStore) AppendRound(context.Context, string, model.RoundRecord) error { return nil }
func (nopStore) SaveAgreement(context.Context, *model.Agreement) error        { return nil }

// NewFacilitator creates a facilitator. store and profiles may be nil: a
// nil store drops the audit trail, a nil profiles source skips the
// availability check.
func NewFacilitator(cfg config.NegotiationConfig, store Store, profiles ProfileSource) *Facilitator {
	if store == nil {
		store = nopStore{}
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 10
	}
	if cfg.TimeoutSecs <= 0 {
		cfg.TimeoutSecs = 300
	}
	if cfg.MinAcceptableScore <= 0 {
		cfg.MinAcceptableScore = 0.6
	}
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = StrategyAdaptive
	}
	return &Facilitator{
		cfg:      cfg,
		store:    store,
		profiles: profiles,
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// Start opens a session for an accepted candidate and returns its id.
func (f *Facilitator) Start(ctx context.Context, cand *model.MatchCandidate, opts StartOptions) (string, error) {
	if cand == nil {
		return "", eris.New("negotiation: candidate is required")
	}
	if cand.SourceID == "" || cand.TargetID == "" || cand.SourceID == cand.TargetID {
		return "", eris.New("negotiation: candidate has invalid participants")
	}

	name := opts.Strategy
	if name == "" {
		name = f.cfg.DefaultStrategy
	}
	strategy, err := ForName(name, f.cfg)
	if err != nil {
		return "", err
	}

	maxRounds := opts.MaxRounds
	if maxRounds <= 0 {
		maxRounds = f.cfg.MaxRounds
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Duration(f.cfg.TimeoutSecs) * time.Second
	}

	agentA := opts.AgentA
	if agentA == nil {
		agentA = NewAgent(cand.SourceID, StyleCollaborative, f.cfg.MinAcceptableScore, 0)
	}
	agentB := opts.AgentB
	if agentB == nil {
		agentB = NewAgent(cand.TargetID, StyleCollaborative, f.cfg.MinAcceptableScore, 0)
	}

	now := f.now()
	sess := &session{
		model: &model.NegotiationSession{
			ID:           uuid.NewString(),
			ParticipantA: cand.SourceID,
			ParticipantB: cand.TargetID,
			StrategyName: strategy.Name(),
			MaxRounds:    maxRounds,
			Status:       model.SessionActive,
			StartedAt:    now,
			Deadline:     now.Add(timeout),
		},
		candidate: cand,
		agents: map[string]*Agent{
			agentA.ParticipantID: agentA,
			agentB.ParticipantID: agentB,
		},
		strategy: strategy,
	}

	if err := f.store.SaveSession(ctx, sess.model); err != nil {
		return "", eris.Wrap(err, "negotiation: persist session")
	}

	f.mu.Lock()
	f.sessions[sess.model.ID] = sess
	f.mu.Unlock()

	zap.L().Info("negotiation: session started",
		zap.String("session_id", sess.model.ID),
		zap.String("participant_a", cand.SourceID),
		zap.String("participant_b", cand.TargetID),
		zap.String("strategy", strategy.Name()),
	)
	return sess.model.ID, nil
}

// Step runs one round: the receiving agent evaluates the proposal and the
// strategy decides accept, counter, or reject. Terminal outcomes are
// first-class results, not errors.
func (f *Facilitator) Step(ctx context.Context, sessionID string, p model.Proposal) (*StepResult, error) {
	st, err := f.session(sessionID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	s := st.model
	if s.Status.Terminal() {
		return nil, eris.Errorf("negotiation: session %s is %s, no further rounds", sessionID, s.Status)
	}

	if reason, ok := st.cancelledReason(); ok {
		return f.finish(ctx, st, model.SessionFailed, model.FailureCancelled, reason), nil
	}

	now := f.now()
	if now.After(s.Deadline) {
		return f.finish(ctx, st, model.SessionTimedOut, "", "session deadline exceeded"), nil
	}
	if s.Round >= s.MaxRounds {
		return f.finish(ctx, st, model.SessionTimedOut, "", "max rounds reached without agreement"), nil
	}

	if err := p.Validate(); err != nil {
		return nil, eris.Wrap(err, "negotiation: proposal")
	}
	responder, ok := f.responder(st, p.From)
	if !ok {
		return nil, eris.Errorf("negotiation: %s is not part of session %s", p.From, sessionID)
	}
	if n := len(s.History); n > 0 && s.History[n-1].Proposal.From == p.From {
		return nil, eris.Errorf("negotiation: %s proposed twice in a row", p.From)
	}

	if err := f.checkAvailability(ctx, st); err != nil {
		if resilience.IsUnavailable(err) {
			return f.finish(ctx, st, model.SessionFailed, model.FailureParticipantUnavailable, err.Error()), nil
		}
		return nil, err
	}

	agent := st.agents[responder]
	score := agent.Score(p, st.candidate)
	verdict := st.strategy.Decide(DecideInput{
		Agent:     agent,
		Proposal:  p,
		History:   s.History,
		Score:     score,
		Round:     s.Round + 1,
		MaxRounds: s.MaxRounds,
	})

	// A cancellation racing this round short-circuits before the decision
	// is committed.
	if reason, ok := st.cancelledReason(); ok {
		return f.finish(ctx, st, model.SessionFailed, model.FailureCancelled, reason), nil
	}

	s.Round++
	rec := model.RoundRecord{
		Round:      s.Round,
		Proposal:   p,
		Decision:   verdict.Decision,
		Confidence: verdict.Confidence,
		Timestamp:  now,
	}
	s.History = append(s.History, rec)
	if err := f.store.AppendRound(ctx, s.ID, rec); err != nil {
		zap.L().Warn("negotiation: persist round", zap.String("session_id", s.ID), zap.Error(err))
	}

	res := &StepResult{
		SessionID:  s.ID,
		Round:      s.Round,
		Decision:   verdict.Decision,
		Confidence: verdict.Confidence,
		Status:     s.Status,
	}

	switch verdict.Decision {
	case model.DecisionAccept:
		agreement := &model.Agreement{
			SessionID:          s.ID,
			FinalTerms:         p.Terms,
			MutualBenefitScore: st.candidate.MutualityScore,
			BalanceScore:       round4(1 - abs(2*p.Split-1)),
			CreatedAt:          now,
		}
		fin := f.finish(ctx, st, model.SessionAgreed, "", "proposal accepted by "+responder)
		if err := f.store.SaveAgreement(ctx, agreement); err != nil {
			zap.L().Warn("negotiation: persist agreement", zap.String("session_id", s.ID), zap.Error(err))
		}
		fin.Round = res.Round
		fin.Decision = res.Decision
		fin.Confidence = res.Confidence
		fin.Agreement = agreement
		return fin, nil

	case model.DecisionReject:
		fin := f.finish(ctx, st, model.SessionFailed, model.FailureRejected, "proposal rejected by "+responder)
		fin.Round = res.Round
		fin.Decision = res.Decision
		fin.Confidence = res.Confidence
		return fin, nil

	default:
		counter := agent.Counter(p, verdict.Concession, s.History)
		res.Counter = &counter
		return res, nil
	}
}

// Cancel withdraws a session. An in-flight Step observes the flag and
// short-circuits to failed; an idle session is failed immediately.
func (f *Facilitator) Cancel(ctx context.Context, sessionID, reason string) error {
	st, err := f.session(sessionID)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = "cancelled by participant"
	}
	st.markCancelled(reason)

	if st.mu.TryLock() {
		defer st.mu.Unlock()
		if !st.model.Status.Terminal() {
			f.finish(ctx, st, model.SessionFailed, model.FailureCancelled, reason)
		}
	}
	return nil
}

// Session returns a copy of the session aggregate, safe to read while
// rounds continue.
func (f *Facilitator) Session(sessionID string) (*model.NegotiationSession, error) {
	st, err := f.session(sessionID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	cp := *st.model
	cp.History = append([]model.RoundRecord(nil), st.model.History...)
	return &cp, nil
}

// AutoRun drives a session to completion starting from an opening
// proposal, feeding each counter back as the next round's proposal.
func (f *Facilitator) AutoRun(ctx context.Context, sessionID string, opening model.Proposal) (*model.NegotiationSession, error) {
	p := opening
	for {
		res, err := f.Step(ctx, sessionID, p)
		if err != nil {
			return nil, err
		}
		if res.Status.Terminal() {
			return f.Session(sessionID)
		}
		if res.Counter == nil {
			return nil, eris.Errorf("negotiation: session %s active without counter", sessionID)
		}
		p = *res.Counter
	}
}

func (f *Facilitator) session(id string) (*session, error) {
	f.mu.RLock()
	st, ok := f.sessions[id]
	f.mu.RUnlock()
	if !ok {
		return nil, eris.Errorf("negotiation: unknown session %s", id)
	}
	return st, nil
}

func (f *Facilitator) responder(st *session, from string) (string, bool) {
	switch from {
	case st.model.ParticipantA:
		return st.model.ParticipantB, true
	case st.model.ParticipantB:
		return st.model.ParticipantA, true
	}
	return "", false
}

func (f *Facilitator) checkAvailability(ctx context.Context, st *session) error {
	if f.profiles == nil {
		return nil
	}
	for _, id := range []string{st.model.ParticipantA, st.model.ParticipantB} {
		if _, err := f.profiles.Profile(ctx, id); err != nil {
			return eris.Wrapf(err, "negotiation: load profile %s", id)
		}
	}
	return nil
}

// finish transitions the session to a terminal state and persists it.
// Caller holds the session mutex.
func (f *Facilitator) finish(ctx context.Context, st *session, status model.SessionStatus, kind model.FailureKind, reason string) *StepResult {
	s := st.model
	s.Status = status
	s.FailureKind = kind
	s.Reason = reason
	if err := f.store.SaveSession(ctx, s); err != nil {
		zap.L().Warn("negotiation: persist terminal session", zap.String("session_id", s.ID), zap.Error(err))
	}
	zap.L().Info("negotiation: session finished",
		zap.String("session_id", s.ID),
		zap.String("status", string(status)),
		zap.String("reason", reason),
		zap.Int("rounds", s.Round),
	)
	return &StepResult{
		SessionID:   s.ID,
		Round:       s.Round,
		Status:      status,
		FailureKind: kind,
		Reason:      reason,
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
