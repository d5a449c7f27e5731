// Package trust computes transitive trust between participants by bounded
// exploration of the relationship graph.
package trust

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/network-cli/internal/cache"
	"github.com/sells-group/network-cli/internal/config"
	"github.com/sells-group/network-cli/internal/graph"
	"github.com/sells-group/network-cli/internal/model"
)

// Engine computes transitive trust over a graph store. Engines are
// stateless apart from the injected cache; parallel instances are safe.
type Engine struct {
	graph graph.Store
	cache cache.Cache
	cfg   config.TrustConfig
}

// New creates a trust engine. A nil cache disables memoization.
func New(g graph.Store, c cache.Cache, cfg config.TrustConfig) *Engine {
	if c == nil {
		c = cache.Nop{}
	}
	cfg = applyDefaults(cfg)
	return &Engine{graph: g, cache: c, cfg: cfg}
}

func applyDefaults(cfg config.TrustConfig) config.TrustConfig {
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = 4
	}
	if cfg.MinEdgeTrust <= 0 {
		cfg.MinEdgeTrust = 0.3
	}
	if cfg.DecayFactor <= 0 || cfg.DecayFactor >= 1 {
		cfg.DecayFactor = 0.85
	}
	if cfg.TopKPaths <= 0 {
		cfg.TopKPaths = 5
	}
	if cfg.CacheTTLSecs <= 0 {
		cfg.CacheTTLSecs = 300
	}
	return cfg
}

// CacheKey returns the memoization key for a source/target pair.
func CacheKey(source, target string) string {
	return fmt.Sprintf("trust:%s:%s", source, target)
}

// TransitiveTrust estimates how much source can trust target. A result
// with no evidence (no direct edge, no qualifying path) is a valid
// business outcome with band unknown, not an error.
func (e *Engine) TransitiveTrust(ctx context.Context, source, target string) (*model.TrustResult, error) {
	if source == "" || target == "" {
		return nil, eris.New("trust: source and target are required")
	}
	if source == target {
		return nil, eris.New("trust: source equals target")
	}

	key := CacheKey(source, target)
	if raw, ok := e.cache.Get(key); ok {
		var cached model.TrustResult
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &cached, nil
		}
		// Corrupt entry: fall through and recompute.
	}

	direct, err := e.graph.Edge(ctx, source, target)
	if err != nil {
		return nil, eris.Wrap(err, "trust: load direct edge")
	}

	paths, err := e.explorePaths(ctx, source, target)
	if err != nil {
		return nil, err
	}

	result := e.aggregate(source, target, direct, paths)

	if raw, err := json.Marshal(result); err == nil {
		e.cache.Set(key, raw, time.Duration(e.cfg.CacheTTLSecs)*time.Second)
	}

	zap.L().Debug("trust: computed",
		zap.String("source", source),
		zap.String("target", target),
		zap.Float64("trust", result.Trust),
		zap.Int("paths", len(result.Paths)),
		zap.String("band", string(result.Band)),
	)
	return result, nil
}

// pathState is one frontier entry during bounded BFS. Each path carries its
// own visited set so two disjoint routes through a shared intermediate are
// both retained.
type pathState struct {
	nodes   []string
	product float64
	visited map[string]struct{}
}

func (e *Engine) explorePaths(ctx context.Context, source, target string) ([]model.TrustPath, error) {
	start := pathState{
		nodes:   []string{source},
		product: 1.0,
		visited: map[string]struct{}{source: {}},
	}
	frontier := []pathState{start}

	var found []model.TrustPath
	for hop := 1; hop <= e.cfg.MaxHops && len(frontier) > 0; hop++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "trust: explore cancelled")
		}

		var next []pathState
		for _, ps := range frontier {
			current := ps.nodes[len(ps.nodes)-1]
			edges, err := e.graph.Edges(ctx, current)
			if err != nil {
				return nil, eris.Wrapf(err, "trust: load edges of %s", current)
			}
			// Deterministic expansion order.
			sort.Slice(edges, func(i, j int) bool { return edges[i].To < edges[j].To })

			for _, edge := range edges {
				if edge.Trust < e.cfg.MinEdgeTrust {
					continue // prune low-value branches early
				}
				if _, seen := ps.visited[edge.To]; seen {
					continue
				}
				product := ps.product * edge.Trust

				if edge.To == target {
					// Skip the 1-hop "path": that is the direct edge.
					if hop > 1 {
						length := hop
						decayed := product * math.Pow(e.cfg.DecayFactor, float64(length-1))
						nodes := append(append([]string{}, ps.nodes...), target)
						found = append(found, model.TrustPath{
							Nodes:      nodes,
							PathTrust:  round4(decayed),
							PathLength: length,
						})
					}
					continue
				}
				if hop == e.cfg.MaxHops {
					continue
				}
				visited := make(map[string]struct{}, len(ps.visited)+1)
				for k := range ps.visited {
					visited[k] = struct{}{}
				}
				visited[edge.To] = struct{}{}
				next = append(next, pathState{
					nodes:   append(append([]string{}, ps.nodes...), edge.To),
					product: product,
					visited: visited,
				})
			}
		}
		frontier = next
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].PathTrust != found[j].PathTrust {
			return found[i].PathTrust > found[j].PathTrust
		}
		return found[i].PathLength < found[j].PathLength
	})
	if len(found) > e.cfg.TopKPaths {
		found = found[:e.cfg.TopKPaths]
	}
	return found, nil
}

func (e *Engine) aggregate(source, target string, direct *model.Edge, paths []model.TrustPath) *model.TrustResult {
	result := &model.TrustResult{
		Source: source,
		Target: target,
		Paths:  paths,
	}

	if len(paths) > 0 {
		result.IndirectTrust = paths[0].PathTrust
	}
	if direct != nil {
		d := direct.Trust
		result.DirectTrust = &d
	}

	switch {
	case direct != nil && len(paths) > 0:
		result.Trust = round4(0.7*direct.Trust + 0.3*result.IndirectTrust)
	case direct != nil:
		result.Trust = round4(direct.Trust)
	default:
		result.Trust = result.IndirectTrust
	}

	result.Confidence = confidence(direct != nil, len(paths))
	result.Band = classify(result.Trust, result.Confidence, result.HasEvidence())
	return result
}

// confidence grows with independent evidence: each extra path adds weight,
// a direct edge adds more.
func confidence(hasDirect bool, pathCount int) float64 {
	if !hasDirect && pathCount == 0 {
		return 0
	}
	c := 0.3 + 0.15*math.Min(float64(pathCount), 3)
	if hasDirect {
		c += 0.25
	}
	return round4(math.Min(c, 1))
}

func classify(trust, conf float64, hasEvidence bool) model.TrustBand {
	if !hasEvidence {
		return model.BandUnknown
	}
	score := trust * conf
	switch {
	case score >= 0.55:
		return model.BandHighlyTrustworthy
	case score >= 0.35:
		return model.BandTrustworthy
	case score >= 0.18:
		return model.BandNeutral
	default:
		return model.BandCautious
	}
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
