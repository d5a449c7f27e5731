package match

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/network-cli/internal/config"
	"github.com/sells-group/network-cli/internal/model"
)

type captureRecorder struct {
	cand   *model.MatchCandidate
	reason string
}

func (r *captureRecorder) RecordRejection(_ context.Context, c *model.MatchCandidate, reason string) error {
	r.cand, r.reason = c, reason
	return nil
}

type fixedFinder struct {
	path *model.Path
}

func (f fixedFinder) FindPath(context.Context, string, string) (*model.Path, error) {
	return f.path, nil
}

func newMatcher(t *testing.T, finder PathFinder, rec Recorder) *Matcher {
	t.Helper()
	m, err := New(config.MatchConfig{}, finder, rec)
	require.NoError(t, err)
	return m
}

func profile(id string, needs []model.NeedItem, offs []model.OfferingItem) *model.Profile {
	return &model.Profile{
		ParticipantID: id,
		Needs:         model.TieredNeeds{Explicit: needs},
		Offerings:     model.TieredOfferings{Explicit: offs},
	}
}

func mutualPair() (*model.Profile, *model.Profile) {
	a := profile("alice",
		[]model.NeedItem{{Text: "seed funding", Category: model.CategoryFunding, Priority: model.PriorityHigh}},
		[]model.OfferingItem{{Text: "machine learning expertise", Category: model.CategoryExpertise, Capacity: model.CapacityModerate}},
	)
	b := profile("bob",
		[]model.NeedItem{{Text: "machine learning expertise", Category: model.CategoryExpertise, Priority: model.PriorityHigh}},
		[]model.OfferingItem{{Text: "seed funding", Category: model.CategoryFunding, Capacity: model.CapacityAbundant}},
	)
	return a, b
}

func TestEvaluate_MutualPairAccepted(t *testing.T) {
	m := newMatcher(t, nil, nil)
	a, b := mutualPair()

	cand, err := m.Evaluate(context.Background(), a, b)
	require.NoError(t, err)
	require.NotNil(t, cand)

	assert.Equal(t, 1.0, cand.SourceSatisfaction)
	assert.Equal(t, 1.0, cand.TargetSatisfaction)
	assert.Equal(t, 1.0, cand.MutualityScore)
	assert.Equal(t, 1.0, cand.BalanceScore)
	assert.GreaterOrEqual(t, cand.OverallScore, 0.70)
	assert.Equal(t, "v2-unbiased", cand.ScoringVersion)
	assert.True(t, cand.HasSubstantiveReason())
}

func TestEvaluate_OneSidedPairRejected(t *testing.T) {
	rec := &captureRecorder{}
	m := newMatcher(t, nil, rec)

	// Alice's need is fully met by Bob, but nothing flows back.
	a := profile("alice",
		[]model.NeedItem{{Text: "seed funding", Category: model.CategoryFunding}},
		[]model.OfferingItem{{Text: "organic catering", Category: model.CategoryOther}},
	)
	b := profile("bob",
		[]model.NeedItem{{Text: "quantum computing hardware", Category: model.CategoryServices}},
		[]model.OfferingItem{{Text: "seed funding", Category: model.CategoryFunding}},
	)

	cand, err := m.Evaluate(context.Background(), a, b)
	require.NoError(t, err)
	assert.Nil(t, cand, "one-sided benefit must not produce a candidate")

	require.NotNil(t, rec.cand)
	assert.Equal(t, 0.0, rec.cand.MutualityScore)
	assert.Contains(t, rec.reason, "mutuality")
}

func TestGate_OverallBelowThreshold(t *testing.T) {
	m := newMatcher(t, nil, nil)
	cand := &model.MatchCandidate{
		MutualityScore: 0.65,
		OverallScore:   0.68,
		Reasons: []model.MatchReason{
			{Type: model.ReasonNeedOffering, Score: 0.8, Evidence: "x matched y"},
		},
	}
	reason, ok := m.gate(cand)
	assert.False(t, ok, "mutuality passing its own threshold is not enough")
	assert.Contains(t, reason, "overall")
}

func TestGate_RequiresSubstantiveReason(t *testing.T) {
	m := newMatcher(t, nil, nil)
	cand := &model.MatchCandidate{
		MutualityScore: 0.9,
		OverallScore:   0.9,
		Reasons: []model.MatchReason{
			{Type: model.ReasonNeedOffering, Score: 0.4, Evidence: "weak"},
		},
	}
	_, ok := m.gate(cand)
	assert.False(t, ok, "many weak signals must not pass the gate")
}

func TestEvaluate_Idempotent(t *testing.T) {
	m := newMatcher(t, fixedFinder{path: &model.Path{Quality: 0.8}}, nil)
	a, b := mutualPair()

	first, err := m.Evaluate(context.Background(), a, b)
	require.NoError(t, err)
	second, err := m.Evaluate(context.Background(), a, b)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEvaluate_MutualitySymmetric(t *testing.T) {
	m := newMatcher(t, nil, nil)
	a, b := mutualPair()

	ab, err := m.Evaluate(context.Background(), a, b)
	require.NoError(t, err)
	ba, err := m.Evaluate(context.Background(), b, a)
	require.NoError(t, err)
	require.NotNil(t, ab)
	require.NotNil(t, ba)

	assert.Equal(t, ab.MutualityScore, ba.MutualityScore)
	assert.LessOrEqual(t, ab.MutualityScore, ab.SourceSatisfaction)
	assert.LessOrEqual(t, ab.MutualityScore, ab.TargetSatisfaction)
}

func TestEvaluate_EveryReasonCarriesEvidence(t *testing.T) {
	m := newMatcher(t, nil, nil)
	a, b := mutualPair()

	cand, err := m.Evaluate(context.Background(), a, b)
	require.NoError(t, err)
	require.NotNil(t, cand)
	require.NotEmpty(t, cand.Reasons)
	for _, r := range cand.Reasons {
		assert.NotEmpty(t, r.Evidence)
		if r.Type == model.ReasonNeedOffering {
			assert.True(t, strings.Contains(r.Evidence, "need") && strings.Contains(r.Evidence, "offering"))
		}
	}
}

func TestEvaluate_ComplementarySkillReason(t *testing.T) {
	m := newMatcher(t, nil, nil)
	a := profile("alice",
		[]model.NeedItem{{Text: "golang expertise", Category: model.CategoryExpertise}},
		[]model.OfferingItem{{Text: "design talent", Category: model.CategoryTalent}},
	)
	b := profile("bob",
		[]model.NeedItem{{Text: "design talent", Category: model.CategoryTalent}},
		[]model.OfferingItem{{Text: "golang expertise", Category: model.CategoryExpertise}},
	)

	cand, err := m.Evaluate(context.Background(), a, b)
	require.NoError(t, err)
	require.NotNil(t, cand)

	types := make(map[model.ReasonType]bool)
	for _, r := range cand.Reasons {
		types[r.Type] = true
	}
	assert.True(t, types[model.ReasonComplementarySkill])
	assert.True(t, types[model.ReasonMutualOpportunity])
}

func TestEvaluate_InferredNeedsWeighedLower(t *testing.T) {
	m := newMatcher(t, nil, nil)
	a := profile("alice",
		[]model.NeedItem{{Text: "seed funding", Category: model.CategoryFunding}},
		[]model.OfferingItem{{Text: "machine learning expertise", Category: model.CategoryExpertise}},
	)
	// Inferred need that nothing answers drags satisfaction by the 0.3
	// inferred share only.
	a.Needs.Inferred = []model.NeedItem{{Text: "quantum computing hardware", Category: model.CategoryServices}}
	b := profile("bob",
		[]model.NeedItem{{Text: "machine learning expertise", Category: model.CategoryExpertise}},
		[]model.OfferingItem{{Text: "seed funding", Category: model.CategoryFunding}},
	)

	cand, err := m.Evaluate(context.Background(), a, b)
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, 0.7, cand.SourceSatisfaction)
	assert.Equal(t, 1.0, cand.TargetSatisfaction)
}

func TestEvaluate_MalformedInput(t *testing.T) {
	m := newMatcher(t, nil, nil)
	a, b := mutualPair()

	empty := &model.Profile{ParticipantID: "carol"}
	_, err := m.Evaluate(context.Background(), empty, b)
	assert.Error(t, err, "empty profile must be rejected, not defaulted")

	_, err = m.Evaluate(context.Background(), a, a)
	assert.Error(t, err)
}

func TestEvaluateAll(t *testing.T) {
	m := newMatcher(t, nil, nil)
	a, b := mutualPair()
	stranger := profile("dave",
		[]model.NeedItem{{Text: "quantum computing hardware", Category: model.CategoryServices}},
		[]model.OfferingItem{{Text: "organic catering", Category: model.CategoryOther}},
	)

	out, err := m.EvaluateAll(context.Background(), a, []*model.Profile{b, stranger, a}, 4)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "bob", out[0].TargetID)
}

func TestNew_RejectsBadWeights(t *testing.T) {
	cfg := config.MatchConfig{
		MutualityWeight:     0.9,
		ValueExchangeWeight: 0.9,
		BalanceWeight:       0.15,
		ReachabilityWeight:  0.05,
	}
	_, err := New(cfg, nil, nil)
	assert.Error(t, err)
}
