package negotiation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/network-cli/internal/config"
	"github.com/sells-group/network-cli/internal/model"
)

func negotiationCfg() config.NegotiationConfig {
	return config.NegotiationConfig{
		MaxRounds:          10,
		TimeoutSecs:        300,
		MinAcceptableScore: 0.6,
		DefaultStrategy:    StrategyAdaptive,
		BaseConcession:     0.08,
		Forgiveness:        0.02,
	}
}

// midScore puts the agent between accept and reject so the strategy
// counters.
func midScoreInput(history []model.RoundRecord) DecideInput {
	return DecideInput{
		Agent:     NewAgent("bob", StyleCollaborative, 0.6, 0.3),
		Proposal:  proposalFrom("alice", 0.7),
		History:   history,
		Score:     0.45,
		Round:     len(history) + 1,
		MaxRounds: 10,
	}
}

func TestForName(t *testing.T) {
	for _, name := range []string{StrategyTitForTat, StrategyAdaptive, StrategyEnsemble} {
		s, err := ForName(name, negotiationCfg())
		require.NoError(t, err)
		assert.Equal(t, name, s.Name())
	}
	_, err := ForName("genetic", negotiationCfg())
	assert.Error(t, err)
}

func TestBaseVerdict_AcceptAndReject(t *testing.T) {
	in := midScoreInput(nil)

	in.Score = 0.75
	v := baseVerdict(in, 0.08)
	assert.Equal(t, model.DecisionAccept, v.Decision)
	assert.Greater(t, v.Confidence, 0.5)

	in.Score = 0.1 // below 0.6 - 0.3
	v = baseVerdict(in, 0.08)
	assert.Equal(t, model.DecisionReject, v.Decision)
}

func TestTitForTat_MirrorsOpponentConcession(t *testing.T) {
	s := &TitForTat{Base: 0.08, Forgiveness: 0.02}

	// No opponent history: base concession.
	v := s.Decide(midScoreInput(nil))
	assert.Equal(t, model.DecisionCounter, v.Decision)
	assert.Equal(t, 0.08, v.Concession)

	// Opponent moved from 0.8 to 0.7: mirror 0.1 plus forgiveness.
	history := []model.RoundRecord{
		{Round: 1, Proposal: proposalFrom("alice", 0.8), Decision: model.DecisionCounter},
		{Round: 2, Proposal: proposalFrom("bob", 0.65), Decision: model.DecisionCounter},
		{Round: 3, Proposal: proposalFrom("alice", 0.7), Decision: model.DecisionCounter},
	}
	v = s.Decide(midScoreInput(history))
	assert.Equal(t, 0.12, v.Concession)
}

func TestTitForTat_ForgivenessOnStubbornOpponent(t *testing.T) {
	s := &TitForTat{Base: 0.08, Forgiveness: 0.02}
	// Opponent got greedier; forgiveness still concedes a little.
	history := []model.RoundRecord{
		{Round: 1, Proposal: proposalFrom("alice", 0.7), Decision: model.DecisionCounter},
		{Round: 2, Proposal: proposalFrom("bob", 0.65), Decision: model.DecisionCounter},
		{Round: 3, Proposal: proposalFrom("alice", 0.75), Decision: model.DecisionCounter},
	}
	v := s.Decide(midScoreInput(history))
	assert.Equal(t, model.DecisionCounter, v.Decision)
	assert.Equal(t, 0.02, v.Concession)
}

func TestAdaptive_BoundedByBase(t *testing.T) {
	s := &Adaptive{Base: 0.08}

	// Opponent conceding enormously: capped at 3x base.
	history := []model.RoundRecord{
		{Round: 1, Proposal: proposalFrom("alice", 0.95), Decision: model.DecisionCounter},
		{Round: 2, Proposal: proposalFrom("bob", 0.7), Decision: model.DecisionCounter},
		{Round: 3, Proposal: proposalFrom("alice", 0.45), Decision: model.DecisionCounter},
	}
	v := s.Decide(midScoreInput(history))
	assert.Equal(t, 0.24, v.Concession)

	// No history: base rate.
	v = s.Decide(midScoreInput(nil))
	assert.Equal(t, 0.08, v.Concession)
}

type fixedStrategy struct {
	verdict Verdict
}

func (f fixedStrategy) Name() string            { return "fixed" }
func (f fixedStrategy) Decide(DecideInput) Verdict { return f.verdict }

func TestEnsemble_MajorityCarries(t *testing.T) {
	e := &Ensemble{Members: []Strategy{
		fixedStrategy{Verdict{Decision: model.DecisionAccept, Confidence: 0.8}},
		fixedStrategy{Verdict{Decision: model.DecisionAccept, Confidence: 0.6}},
		fixedStrategy{Verdict{Decision: model.DecisionReject, Confidence: 0.9}},
	}}
	v := e.Decide(midScoreInput(nil))
	assert.Equal(t, model.DecisionAccept, v.Decision)
	assert.InDelta(t, 2.0/3*0.7, v.Confidence, 0.001)
}

func TestEnsemble_NoMajorityDefaultsToCounter(t *testing.T) {
	e := &Ensemble{Members: []Strategy{
		fixedStrategy{Verdict{Decision: model.DecisionAccept, Confidence: 0.8}},
		fixedStrategy{Verdict{Decision: model.DecisionReject, Confidence: 0.8}},
	}}
	v := e.Decide(midScoreInput(nil))
	assert.Equal(t, model.DecisionCounter, v.Decision)
	assert.Greater(t, v.Concession, 0.0)
}
