package model

// ReasonType categorizes why a pair was considered a match.
type ReasonType string

const (
	// ReasonNeedOffering is a direct need-to-offering match.
	ReasonNeedOffering ReasonType = "need_offering_match"
	// ReasonComplementarySkill marks expertise/talent flowing both ways.
	ReasonComplementarySkill ReasonType = "complementary_skill"
	// ReasonMutualOpportunity requires a qualifying match on both sides.
	ReasonMutualOpportunity ReasonType = "mutual_business_opportunity"
)

// substantiveScore is the floor a reason must clear to count as a strong
// signal for the acceptance gate.
const substantiveScore = 0.5

// MatchReason is one human-readable justification with literal evidence
// (which need matched which offering). Candidates without evidence are an
// implementation defect, not an acceptable output.
type MatchReason struct {
	Type     ReasonType `json:"type"`
	Score    float64    `json:"score"`
	Evidence string     `json:"evidence"`
}

// MatchCandidate is a scored pair produced by the matcher. Immutable once
// scored; a new candidate must be produced if either profile changes.
type MatchCandidate struct {
	SourceID            string        `json:"source_id"`
	TargetID            string        `json:"target_id"`
	SourceSatisfaction  float64       `json:"source_satisfaction"`
	TargetSatisfaction  float64       `json:"target_satisfaction"`
	MutualityScore      float64       `json:"mutuality_score"`
	BalanceScore        float64       `json:"balance_score"`
	ValueExchangeScore  float64       `json:"value_exchange_score"`
	ReachabilityQuality float64       `json:"reachability_quality"`
	OverallScore        float64       `json:"overall_score"`
	Reasons             []MatchReason `json:"reasons"`
	ScoringVersion      string        `json:"scoring_version"`
}

// HasSubstantiveReason reports whether at least one strong reason category
// is present. A purely additive score can be gamed by many weak signals;
// the gate requires one strong one.
func (c *MatchCandidate) HasSubstantiveReason() bool {
	for _, r := range c.Reasons {
		if r.Score < substantiveScore {
			continue
		}
		switch r.Type {
		case ReasonNeedOffering, ReasonComplementarySkill, ReasonMutualOpportunity:
			return true
		}
	}
	return false
}
