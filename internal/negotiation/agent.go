// Package negotiation drives multi-round proposal exchanges between
// participant agents and records the outcome.
package negotiation

import (
	"fmt"
	"math"

	"github.com/sells-group/network-cli/internal/model"
)

// Style shapes how an agent weighs its own benefit against what it gives.
type Style string

const (
	StyleCollaborative Style = "collaborative"
	StyleCompetitive   Style = "competitive"
	StyleAccommodating Style = "accommodating"
	StyleCompromising  Style = "compromising"
)

const (
	// openingDemand is the split an agent asks for in its first counter
	// when it has not proposed anything yet.
	openingDemand = 0.7
	// minDemand floors concessions; no agent counters below keeping this
	// fraction.
	minDemand = 0.45
)

// Agent is a per-participant negotiation policy. Stateless between calls;
// everything it needs to adapt lives in the session history.
type Agent struct {
	ParticipantID string
	Style         Style
	// RiskTolerance is how far below MinAcceptableScore a proposal may
	// score before the agent gives up and rejects instead of countering.
	RiskTolerance float64
	// MinAcceptableScore is the accept threshold for style-adjusted
	// proposal scores.
	MinAcceptableScore float64
}

// NewAgent builds an agent with defaults filled in.
func NewAgent(participantID string, style Style, minAcceptable, riskTolerance float64) *Agent {
	if style == "" {
		style = StyleCollaborative
	}
	if minAcceptable <= 0 {
		minAcceptable = 0.6
	}
	if riskTolerance <= 0 {
		riskTolerance = 0.3
	}
	return &Agent{
		ParticipantID:      participantID,
		Style:              style,
		RiskTolerance:      riskTolerance,
		MinAcceptableScore: minAcceptable,
	}
}

// styleWeights returns the benefit/cost weights for the agent's style.
// Collaborative leans toward benefit, competitive leans hard into it,
// accommodating and compromising balance the two.
func (a *Agent) styleWeights() (benefit, cost float64) {
	switch a.Style {
	case StyleCompetitive:
		return 0.8, 0.2
	case StyleAccommodating, StyleCompromising:
		return 0.5, 0.5
	default:
		return 0.7, 0.3
	}
}

// Score evaluates a received proposal in [0,1]. The raw signal is
// 0.6·needsSatisfaction − 0.4·givingCost shifted by the style weights and
// normalized: score = wB·benefit + wC·(1 − cost). Benefit scales with the
// share received and the agent's one-sided satisfaction from the
// candidate; cost kicks in only past an even split.
func (a *Agent) Score(p model.Proposal, cand *model.MatchCandidate) float64 {
	mySat, theirSat := a.satisfactions(cand)
	share := 1 - p.Split

	benefit := clamp01(2*share) * mySat
	cost := clamp01(2*(p.Split-0.5)) * theirSat

	wB, wC := a.styleWeights()
	return round4(wB*benefit + wC*(1-cost))
}

// Counter produces a modified proposal conceding toward the midpoint.
// The returned split is the fraction this agent keeps.
func (a *Agent) Counter(received model.Proposal, concession float64, history []model.RoundRecord) model.Proposal {
	demand := openingDemand
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Proposal.From == a.ParticipantID {
			demand = history[i].Proposal.Split
			break
		}
	}
	demand -= concession
	if demand < minDemand {
		demand = minDemand
	}

	return model.Proposal{
		From:  a.ParticipantID,
		Terms: received.Terms,
		Split: round4(demand),
		Note:  fmt.Sprintf("counter from %s keeping %.0f%%", a.ParticipantID, demand*100),
	}
}

// rejectFloor is the score below which no improving counter is worth the
// risk.
func (a *Agent) rejectFloor() float64 {
	return a.MinAcceptableScore - a.RiskTolerance
}

func (a *Agent) satisfactions(cand *model.MatchCandidate) (mine, theirs float64) {
	if a.ParticipantID == cand.SourceID {
		return cand.SourceSatisfaction, cand.TargetSatisfaction
	}
	return cand.TargetSatisfaction, cand.SourceSatisfaction
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
