// Package match scores participant pairs by bidirectional need
// satisfaction and applies the acceptance gate.
package match

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/network-cli/internal/config"
	"github.com/sells-group/network-cli/internal/model"
)

// qualifyingScore is the similarity floor for a match to anchor the
// complementary-skill and mutual-opportunity reasons.
const qualifyingScore = 0.5

// PathFinder supplies reachability quality for scored pairs.
type PathFinder interface {
	FindPath(ctx context.Context, source, target string) (*model.Path, error)
}

// Recorder receives gated-out candidates for analytics. Rejections are
// recorded with their full scores; they are never surfaced as matches.
type Recorder interface {
	RecordRejection(ctx context.Context, cand *model.MatchCandidate, reason string) error
}

// Matcher evaluates profile pairs. Stateless apart from configuration;
// safe for concurrent use.
type Matcher struct {
	cfg      config.MatchConfig
	finder   PathFinder
	recorder Recorder
}

// New creates a matcher. finder and recorder may be nil; a nil finder
// scores reachability as zero, a nil recorder drops rejection analytics.
func New(cfg config.MatchConfig, finder PathFinder, recorder Recorder) (*Matcher, error) {
	cfg = applyDefaults(cfg)
	sum := cfg.MutualityWeight + cfg.ValueExchangeWeight + cfg.BalanceWeight + cfg.ReachabilityWeight
	if math.Abs(sum-1) > 1e-9 {
		return nil, eris.Errorf("match: overall weights sum to %.4f, want 1", sum)
	}
	if math.Abs(cfg.ExplicitWeight+cfg.InferredWeight-1) > 1e-9 {
		return nil, eris.New("match: tier weights must sum to 1")
	}
	return &Matcher{cfg: cfg, finder: finder, recorder: recorder}, nil
}

func applyDefaults(cfg config.MatchConfig) config.MatchConfig {
	if cfg.ScoringVersion == "" {
		cfg.ScoringVersion = "v2-unbiased"
	}
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = 0.3
	}
	if cfg.ExplicitWeight <= 0 {
		cfg.ExplicitWeight = 0.7
	}
	if cfg.InferredWeight <= 0 {
		cfg.InferredWeight = 0.3
	}
	if cfg.MutualityWeight <= 0 {
		cfg.MutualityWeight = 0.50
	}
	if cfg.ValueExchangeWeight <= 0 {
		cfg.ValueExchangeWeight = 0.30
	}
	if cfg.BalanceWeight <= 0 {
		cfg.BalanceWeight = 0.15
	}
	if cfg.ReachabilityWeight <= 0 {
		cfg.ReachabilityWeight = 0.05
	}
	if cfg.MinMutuality <= 0 {
		cfg.MinMutuality = 0.5
	}
	if cfg.MinOverall <= 0 {
		cfg.MinOverall = 0.70
	}
	return cfg
}

type matchedPair struct {
	need model.NeedItem
	off  model.OfferingItem
	sim  float64
}

type directionResult struct {
	score   float64
	matches []matchedPair
}

// Evaluate scores the pair a/b and returns a candidate, or nil when the
// pair fails the acceptance gate. Nil is the expected "no match" outcome,
// not an error. Pure for fixed inputs: identical calls return identical
// candidates.
func (m *Matcher) Evaluate(ctx context.Context, a, b *model.Profile) (*model.MatchCandidate, error) {
	if err := a.Validate(); err != nil {
		return nil, eris.Wrap(err, "match: source profile")
	}
	if err := b.Validate(); err != nil {
		return nil, eris.Wrap(err, "match: target profile")
	}
	if a.ParticipantID == b.ParticipantID {
		return nil, eris.New("match: cannot match a participant with itself")
	}

	aToB := m.satisfy(a.Needs, b.Offerings)
	bToA := m.satisfy(b.Needs, a.Offerings)

	mutuality := math.Min(aToB.score, bToA.score)
	balance := 1 - math.Abs(aToB.score-bToA.score)
	valueExchange := (aToB.score + bToA.score) / 2

	reachQuality, err := m.reachQuality(ctx, a.ParticipantID, b.ParticipantID)
	if err != nil {
		return nil, err
	}

	overall := m.cfg.MutualityWeight*mutuality +
		m.cfg.ValueExchangeWeight*valueExchange +
		m.cfg.BalanceWeight*balance +
		m.cfg.ReachabilityWeight*reachQuality

	cand := &model.MatchCandidate{
		SourceID:            a.ParticipantID,
		TargetID:            b.ParticipantID,
		SourceSatisfaction:  round4(aToB.score),
		TargetSatisfaction:  round4(bToA.score),
		MutualityScore:      round4(mutuality),
		BalanceScore:        round4(balance),
		ValueExchangeScore:  round4(valueExchange),
		ReachabilityQuality: round4(reachQuality),
		OverallScore:        round4(overall),
		Reasons:             m.reasons(a, b, aToB, bToA),
		ScoringVersion:      m.cfg.ScoringVersion,
	}

	if reason, ok := m.gate(cand); !ok {
		m.recordRejection(ctx, cand, reason)
		return nil, nil
	}

	zap.L().Debug("match: candidate accepted",
		zap.String("source", cand.SourceID),
		zap.String("target", cand.TargetID),
		zap.Float64("mutuality", cand.MutualityScore),
		zap.Float64("overall", cand.OverallScore),
	)
	return cand, nil
}

// EvaluateAll scores source against every target and returns accepted
// candidates sorted by overall score. Targets failing validation abort the
// batch; gated-out pairs are skipped.
func (m *Matcher) EvaluateAll(ctx context.Context, source *model.Profile, targets []*model.Profile, maxConcurrent int) ([]*model.MatchCandidate, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}

	var mu sync.Mutex
	var out []*model.MatchCandidate

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for _, target := range targets {
		if target.ParticipantID == source.ParticipantID {
			continue
		}
		g.Go(func() error {
			cand, err := m.Evaluate(gctx, source, target)
			if err != nil {
				return err
			}
			if cand == nil {
				return nil
			}
			mu.Lock()
			out = append(out, cand)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].OverallScore != out[j].OverallScore {
			return out[i].OverallScore > out[j].OverallScore
		}
		return out[i].TargetID < out[j].TargetID
	})
	return out, nil
}

// satisfy scores one direction: how well the offerings answer the needs.
// Explicit needs dominate; the top three inferred needs contribute the
// remainder. A best match below the similarity floor counts as unmet.
func (m *Matcher) satisfy(needs model.TieredNeeds, offs model.TieredOfferings) directionResult {
	all := make([]model.OfferingItem, 0, len(offs.Explicit)+len(offs.Inferred))
	all = append(all, offs.Explicit...)
	all = append(all, offs.Inferred...)

	var res directionResult

	var explicitSum float64
	for _, need := range needs.Explicit {
		best, bestOff := m.bestOffering(need, all)
		if best < m.cfg.MinSimilarity {
			continue
		}
		explicitSum += best
		res.matches = append(res.matches, matchedPair{need: need, off: bestOff, sim: best})
	}
	explicitAvg := explicitSum / float64(len(needs.Explicit))

	if len(needs.Inferred) == 0 {
		res.score = explicitAvg
		return res
	}

	inferredBest := make([]float64, 0, len(needs.Inferred))
	for _, need := range needs.Inferred {
		best, _ := m.bestOffering(need, all)
		if best < m.cfg.MinSimilarity {
			best = 0
		}
		inferredBest = append(inferredBest, best)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(inferredBest)))
	top := inferredBest
	if len(top) > 3 {
		top = top[:3]
	}
	var inferredSum float64
	for _, s := range top {
		inferredSum += s
	}
	inferredAvg := inferredSum / float64(len(top))

	res.score = m.cfg.ExplicitWeight*explicitAvg + m.cfg.InferredWeight*inferredAvg
	return res
}

// bestOffering returns the strongest offering for a need. Ties resolve to
// the earliest offering, keeping evaluation deterministic for fixed input
// ordering.
func (m *Matcher) bestOffering(need model.NeedItem, offs []model.OfferingItem) (float64, model.OfferingItem) {
	var best float64
	var bestOff model.OfferingItem
	for _, off := range offs {
		if s := similarity(need, off); s > best {
			best = s
			bestOff = off
		}
	}
	return best, bestOff
}

func (m *Matcher) reachQuality(ctx context.Context, source, target string) (float64, error) {
	if m.finder == nil {
		return 0, nil
	}
	forward, err := m.finder.FindPath(ctx, source, target)
	if err != nil {
		return 0, eris.Wrap(err, "match: path quality forward")
	}
	backward, err := m.finder.FindPath(ctx, target, source)
	if err != nil {
		return 0, eris.Wrap(err, "match: path quality backward")
	}
	var q float64
	if forward != nil {
		q += forward.Quality
	}
	if backward != nil {
		q += backward.Quality
	}
	return q / 2, nil
}

// reasons builds the explainability record. Every reason carries literal
// evidence naming which need matched which offering.
func (m *Matcher) reasons(a, b *model.Profile, aToB, bToA directionResult) []model.MatchReason {
	var out []model.MatchReason

	appendMatches := func(needOwner, offOwner string, res directionResult) {
		for _, p := range res.matches {
			out = append(out, model.MatchReason{
				Type:  model.ReasonNeedOffering,
				Score: round4(p.sim),
				Evidence: fmt.Sprintf("%s's need %q matched by %s's offering %q (similarity %.2f)",
					needOwner, p.need.Text, offOwner, p.off.Text, p.sim),
			})
		}
	}
	appendMatches(a.ParticipantID, b.ParticipantID, aToB)
	appendMatches(b.ParticipantID, a.ParticipantID, bToA)

	if skill := complementarySkill(a, b, aToB, bToA); skill != nil {
		out = append(out, *skill)
	}

	bestAB := bestMatch(aToB)
	bestBA := bestMatch(bToA)
	if bestAB != nil && bestBA != nil && bestAB.sim >= qualifyingScore && bestBA.sim >= qualifyingScore {
		out = append(out, model.MatchReason{
			Type:  model.ReasonMutualOpportunity,
			Score: round4(math.Min(bestAB.sim, bestBA.sim)),
			Evidence: fmt.Sprintf("qualifying matches on both sides: %q for %s and %q for %s",
				bestAB.need.Text, a.ParticipantID, bestBA.need.Text, b.ParticipantID),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Evidence < out[j].Evidence
	})
	return out
}

func bestMatch(res directionResult) *matchedPair {
	var best *matchedPair
	for i := range res.matches {
		if best == nil || res.matches[i].sim > best.sim {
			best = &res.matches[i]
		}
	}
	return best
}

// complementarySkill fires when expertise or talent flows in both
// directions at qualifying strength.
func complementarySkill(a, b *model.Profile, aToB, bToA directionResult) *model.MatchReason {
	skillPair := func(res directionResult) *matchedPair {
		var best *matchedPair
		for i := range res.matches {
			p := &res.matches[i]
			if p.need.Category != model.CategoryExpertise && p.need.Category != model.CategoryTalent {
				continue
			}
			if p.sim < qualifyingScore {
				continue
			}
			if best == nil || p.sim > best.sim {
				best = p
			}
		}
		return best
	}
	forward := skillPair(aToB)
	backward := skillPair(bToA)
	if forward == nil || backward == nil {
		return nil
	}
	return &model.MatchReason{
		Type:  model.ReasonComplementarySkill,
		Score: round4(math.Min(forward.sim, backward.sim)),
		Evidence: fmt.Sprintf("skills flow both ways: %s gains %q, %s gains %q",
			a.ParticipantID, forward.need.Text, b.ParticipantID, backward.need.Text),
	}
}

// gate applies the acceptance thresholds. All must hold; the thresholds
// are never lowered to force a result.
func (m *Matcher) gate(c *model.MatchCandidate) (string, bool) {
	switch {
	case c.MutualityScore < m.cfg.MinMutuality:
		return fmt.Sprintf("mutuality %.4f below %.2f", c.MutualityScore, m.cfg.MinMutuality), false
	case c.OverallScore < m.cfg.MinOverall:
		return fmt.Sprintf("overall %.4f below %.2f", c.OverallScore, m.cfg.MinOverall), false
	case !c.HasSubstantiveReason():
		return "no substantive reason", false
	}
	return "", true
}

func (m *Matcher) recordRejection(ctx context.Context, cand *model.MatchCandidate, reason string) {
	zap.L().Debug("match: candidate rejected",
		zap.String("source", cand.SourceID),
		zap.String("target", cand.TargetID),
		zap.String("reason", reason),
	)
	if m.recorder == nil {
		return
	}
	if err := m.recorder.RecordRejection(ctx, cand, reason); err != nil {
		zap.L().Warn("match: record rejection", zap.Error(err))
	}
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
