// Package reach finds the best path between participants and computes
// whole-network analytics.
package reach

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/network-cli/internal/cache"
	"github.com/sells-group/network-cli/internal/config"
	"github.com/sells-group/network-cli/internal/graph"
	"github.com/sells-group/network-cli/internal/model"
)

// Engine answers reachability queries over a graph store.
type Engine struct {
	graph graph.Store
	cache cache.Cache
	cfg   config.ReachConfig

	now func() time.Time
}

// New creates a reachability engine. A nil cache disables memoization.
func New(g graph.Store, c cache.Cache, cfg config.ReachConfig) *Engine {
	if c == nil {
		c = cache.Nop{}
	}
	cfg = applyDefaults(cfg)
	return &Engine{graph: g, cache: c, cfg: cfg, now: time.Now}
}

func applyDefaults(cfg config.ReachConfig) config.ReachConfig {
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = 6
	}
	if cfg.MinEdgeTrust < 0 {
		cfg.MinEdgeTrust = 0
	}
	if cfg.CacheTTLSecs <= 0 {
		cfg.CacheTTLSecs = 300
	}
	if cfg.ConnectorReachHops <= 0 {
		cfg.ConnectorReachHops = 3
	}
	if cfg.BetweennessSamples <= 0 {
		cfg.BetweennessSamples = 32
	}
	if cfg.StaleAfterDays <= 0 {
		cfg.StaleAfterDays = 365
	}
	return cfg
}

// effectiveTrust applies the optional staleness discount: an edge with no
// interaction inside the configured window routes at 80% of its stored
// trust. The stored value is never modified.
func (e *Engine) effectiveTrust(edge model.Edge) float64 {
	if !e.cfg.StaleDiscountEnabled || edge.LastInteraction.IsZero() {
		return edge.Trust
	}
	cutoff := e.now().AddDate(0, 0, -e.cfg.StaleAfterDays)
	if edge.LastInteraction.Before(cutoff) {
		return edge.Trust * 0.8
	}
	return edge.Trust
}

// CacheKey returns the memoization key for a source/target pair.
func CacheKey(source, target string) string {
	return fmt.Sprintf("path:%s:%s", source, target)
}

// quality scores a candidate path: average trust dominates, inverse hop
// count rewards short routes. A 2-hop path through a low-trust intermediary
// can lose to a 3-hop path through high-trust ones.
func quality(avgTrust float64, hops int) float64 {
	return round4(0.6*avgTrust + 0.4/float64(hops))
}

// FindPath returns the best-quality path from source to target, or nil
// when the pair is unreachable within the hop bound. Unreachable is a
// valid result, never an error.
func (e *Engine) FindPath(ctx context.Context, source, target string) (*model.Path, error) {
	if source == "" || target == "" {
		return nil, eris.New("reach: source and target are required")
	}
	if source == target {
		return nil, eris.New("reach: source equals target")
	}

	key := CacheKey(source, target)
	if raw, ok := e.cache.Get(key); ok {
		var cached model.Path
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &cached, nil
		}
	}

	best, err := e.searchBest(ctx, source, target)
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, nil
	}

	if raw, err := json.Marshal(best); err == nil {
		e.cache.Set(key, raw, time.Duration(e.cfg.CacheTTLSecs)*time.Second)
	}
	zap.L().Debug("reach: path found",
		zap.String("source", source),
		zap.String("target", target),
		zap.Int("hops", best.Hops),
		zap.Float64("quality", best.Quality),
	)
	return best, nil
}

type walkState struct {
	nodes    []string
	trustSum float64
	visited  map[string]struct{}
}

// searchBest enumerates simple paths up to the hop bound and keeps the
// best by quality. Quality is not hop-monotone, so plain Dijkstra does not
// apply; the hop bound keeps enumeration tractable.
func (e *Engine) searchBest(ctx context.Context, source, target string) (*model.Path, error) {
	frontier := []walkState{{
		nodes:   []string{source},
		visited: map[string]struct{}{source: {}},
	}}

	var best *model.Path
	better := func(cand *model.Path) bool {
		if best == nil {
			return true
		}
		if cand.Quality != best.Quality {
			return cand.Quality > best.Quality
		}
		if cand.Hops != best.Hops {
			return cand.Hops < best.Hops
		}
		// Deterministic final tiebreak.
		return strings.Join(cand.Nodes, ",") < strings.Join(best.Nodes, ",")
	}

	for hop := 1; hop <= e.cfg.MaxHops && len(frontier) > 0; hop++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "reach: search cancelled")
		}
		var next []walkState
		for _, ws := range frontier {
			current := ws.nodes[len(ws.nodes)-1]
			edges, err := e.graph.Edges(ctx, current)
			if err != nil {
				return nil, eris.Wrapf(err, "reach: load edges of %s", current)
			}
			sort.Slice(edges, func(i, j int) bool { return edges[i].To < edges[j].To })

			for _, edge := range edges {
				trust := e.effectiveTrust(edge)
				if trust < e.cfg.MinEdgeTrust {
					continue
				}
				if _, seen := ws.visited[edge.To]; seen {
					continue
				}
				trustSum := ws.trustSum + trust
				if edge.To == target {
					avg := trustSum / float64(hop)
					cand := &model.Path{
						Nodes:    append(append([]string{}, ws.nodes...), target),
						Hops:     hop,
						AvgTrust: round4(avg),
						Quality:  quality(avg, hop),
					}
					if better(cand) {
						best = cand
					}
					continue
				}
				if hop == e.cfg.MaxHops {
					continue
				}
				visited := make(map[string]struct{}, len(ws.visited)+1)
				for k := range ws.visited {
					visited[k] = struct{}{}
				}
				visited[edge.To] = struct{}{}
				next = append(next, walkState{
					nodes:    append(append([]string{}, ws.nodes...), edge.To),
					trustSum: trustSum,
					visited:  visited,
				})
			}
		}
		frontier = next
	}
	return best, nil
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
