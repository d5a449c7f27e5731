package negotiation

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/network-cli/internal/config"
	"github.com/sells-group/network-cli/internal/model"
)

// Strategy names form a closed set; selection is a pure function of the
// configured name, never a dynamic lookup.
const (
	StrategyTitForTat = "tit_for_tat"
	StrategyAdaptive  = "adaptive"
	StrategyEnsemble  = "ensemble"
)

// DecideInput is everything a strategy may consult for one round.
type DecideInput struct {
	Agent    *Agent
	Proposal model.Proposal
	History  []model.RoundRecord
	// Score is the agent's style-adjusted score for the proposal.
	Score     float64
	Round     int
	MaxRounds int
}

// Verdict is a strategy's decision for one round. Concession is only
// meaningful when the decision is counter.
type Verdict struct {
	Decision   model.Decision
	Confidence float64
	Concession float64
}

// Strategy decides accept/counter/reject and how far a counter concedes.
type Strategy interface {
	Name() string
	Decide(in DecideInput) Verdict
}

// ForName maps a configured strategy name to its implementation.
func ForName(name string, cfg config.NegotiationConfig) (Strategy, error) {
	base := cfg.BaseConcession
	if base <= 0 {
		base = 0.08
	}
	forgiveness := cfg.Forgiveness
	if forgiveness <= 0 {
		forgiveness = 0.02
	}

	switch name {
	case StrategyTitForTat:
		return &TitForTat{Base: base, Forgiveness: forgiveness}, nil
	case StrategyAdaptive:
		return &Adaptive{Base: base}, nil
	case StrategyEnsemble:
		return &Ensemble{Members: []Strategy{
			&TitForTat{Base: base, Forgiveness: forgiveness},
			&Adaptive{Base: base},
		}}, nil
	}
	return nil, eris.Errorf("negotiation: unknown strategy %q (valid: %s, %s, %s)",
		name, StrategyTitForTat, StrategyAdaptive, StrategyEnsemble)
}

// baseVerdict applies the accept/reject thresholds shared by all concrete
// strategies. Accept when the score clears the agent's bar; reject when it
// falls below the risk floor; otherwise counter with a strategy-specific
// concession.
func baseVerdict(in DecideInput, concession float64) Verdict {
	agent := in.Agent
	if in.Score >= agent.MinAcceptableScore {
		return Verdict{
			Decision:   model.DecisionAccept,
			Confidence: round4(clamp01(0.5 + (in.Score - agent.MinAcceptableScore))),
		}
	}
	if in.Score < agent.rejectFloor() {
		return Verdict{
			Decision:   model.DecisionReject,
			Confidence: round4(clamp01(0.5 + (agent.rejectFloor() - in.Score))),
		}
	}
	return Verdict{
		Decision:   model.DecisionCounter,
		Confidence: 0.6,
		Concession: round4(concession),
	}
}

// opponentConcessions lists how much the opponent lowered its demand
// between its consecutive proposals, most recent last.
func opponentConcessions(history []model.RoundRecord, agentID string) []float64 {
	var splits []float64
	for _, rec := range history {
		if rec.Proposal.From != agentID {
			splits = append(splits, rec.Proposal.Split)
		}
	}
	var out []float64
	for i := 1; i < len(splits); i++ {
		out = append(out, splits[i-1]-splits[i])
	}
	return out
}

// TitForTat mirrors the opponent's last concession and adds a fixed
// forgiveness so a stubborn opponent cannot deadlock the session.
type TitForTat struct {
	Base        float64
	Forgiveness float64
}

func (s *TitForTat) Name() string { return StrategyTitForTat }

func (s *TitForTat) Decide(in DecideInput) Verdict {
	concession := s.Base
	if moves := opponentConcessions(in.History, in.Agent.ParticipantID); len(moves) > 0 {
		last := moves[len(moves)-1]
		if last < 0 {
			last = 0
		}
		concession = last + s.Forgiveness
	}
	return baseVerdict(in, concession)
}

// Adaptive sets its concession rate from the opponent's average concession
// over the whole session, bounded around the base rate.
type Adaptive struct {
	Base float64
}

func (s *Adaptive) Name() string { return StrategyAdaptive }

func (s *Adaptive) Decide(in DecideInput) Verdict {
	concession := s.Base
	if moves := opponentConcessions(in.History, in.Agent.ParticipantID); len(moves) > 0 {
		var sum float64
		for _, m := range moves {
			if m > 0 {
				sum += m
			}
		}
		avg := sum / float64(len(moves))
		concession = math.Max(0.5*s.Base, math.Min(avg, 3*s.Base))
	}
	return baseVerdict(in, concession)
}

// Ensemble takes a consensus over its members. A strict majority carries
// the decision with confidence scaled by agreement; without a majority the
// ensemble defaults to counter.
type Ensemble struct {
	Members []Strategy
}

func (s *Ensemble) Name() string { return StrategyEnsemble }

func (s *Ensemble) Decide(in DecideInput) Verdict {
	votes := make(map[model.Decision][]Verdict, 3)
	var concessionSum float64
	for _, m := range s.Members {
		v := m.Decide(in)
		votes[v.Decision] = append(votes[v.Decision], v)
		concessionSum += v.Concession
	}
	meanConcession := concessionSum / float64(len(s.Members))

	for decision, vs := range votes {
		if 2*len(vs) <= len(s.Members) {
			continue
		}
		var confSum float64
		for _, v := range vs {
			confSum += v.Confidence
		}
		agreement := float64(len(vs)) / float64(len(s.Members))
		verdict := Verdict{
			Decision:   decision,
			Confidence: round4(agreement * confSum / float64(len(vs))),
		}
		if decision == model.DecisionCounter {
			verdict.Concession = round4(meanConcession)
		}
		return verdict
	}

	// No majority: counter rather than force an outcome.
	return Verdict{
		Decision:   model.DecisionCounter,
		Confidence: 0.4,
		Concession: round4(math.Max(meanConcession, 0.01)),
	}
}
