package reach

import (
	"context"
	"runtime"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/network-cli/internal/model"
)

// NetworkStatistics computes a whole-network snapshot. This is a batch
// read intended for an analytics cadence; it works from a graph snapshot
// and never blocks per-pair matching.
func (e *Engine) NetworkStatistics(ctx context.Context) (*model.NetworkStats, error) {
	snap, err := e.graph.Snapshot(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "reach: snapshot graph")
	}

	stats := &model.NetworkStats{
		Participants: len(snap.Nodes),
		Edges:        snap.EdgeCount(),
	}
	if stats.Participants == 0 {
		return stats, nil
	}
	stats.AvgDegree = round4(float64(stats.Edges) / float64(stats.Participants))

	adj := snap.Undirected()
	for _, id := range snap.Nodes {
		if len(adj[id]) == 0 {
			stats.IsolatedCount++
		}
	}

	largest := largestComponent(snap.Nodes, adj)
	stats.LargestComponent = len(largest)
	stats.ClusteringCoefficient = round4(clustering(snap.Nodes, adj))

	diameter, err := componentDiameter(ctx, largest, adj)
	if err != nil {
		return nil, err
	}
	stats.Diameter = diameter

	zap.L().Info("reach: network statistics computed",
		zap.Int("participants", stats.Participants),
		zap.Int("edges", stats.Edges),
		zap.Int("diameter", stats.Diameter),
		zap.Int("isolated", stats.IsolatedCount),
	)
	return stats, nil
}

func largestComponent(nodes []string, adj map[string]map[string]struct{}) []string {
	seen := make(map[string]struct{}, len(nodes))
	var largest []string
	for _, start := range nodes {
		if _, ok := seen[start]; ok {
			continue
		}
		comp := bfsComponent(start, adj)
		for _, id := range comp {
			seen[id] = struct{}{}
		}
		if len(comp) > len(largest) {
			largest = comp
		}
	}
	return largest
}

func bfsComponent(start string, adj map[string]map[string]struct{}) []string {
	visited := map[string]struct{}{start: {}}
	queue := []string{start}
	var comp []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		comp = append(comp, id)
		for n := range adj[id] {
			if _, ok := visited[n]; !ok {
				visited[n] = struct{}{}
				queue = append(queue, n)
			}
		}
	}
	return comp
}

// componentDiameter fans eccentricity BFS runs out over a worker pool;
// a disconnected or single-node component yields 0 without error.
func componentDiameter(ctx context.Context, comp []string, adj map[string]map[string]struct{}) (int, error) {
	if len(comp) < 2 {
		return 0, nil
	}

	var mu sync.Mutex
	diameter := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, start := range comp {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return eris.Wrap(err, "reach: diameter cancelled")
			}
			ecc := eccentricity(start, adj)
			mu.Lock()
			if ecc > diameter {
				diameter = ecc
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return diameter, nil
}

func eccentricity(start string, adj map[string]map[string]struct{}) int {
	dist := map[string]int{start: 0}
	queue := []string{start}
	max := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for n := range adj[id] {
			if _, ok := dist[n]; !ok {
				dist[n] = dist[id] + 1
				if dist[n] > max {
					max = dist[n]
				}
				queue = append(queue, n)
			}
		}
	}
	return max
}

// clustering returns the mean local clustering coefficient over nodes with
// degree >= 2.
func clustering(nodes []string, adj map[string]map[string]struct{}) float64 {
	var sum float64
	var counted int
	for _, id := range nodes {
		neighbors := adj[id]
		k := len(neighbors)
		if k < 2 {
			continue
		}
		links := 0
		for a := range neighbors {
			for b := range neighbors {
				if a >= b {
					continue
				}
				if _, ok := adj[a][b]; ok {
					links++
				}
			}
		}
		sum += 2 * float64(links) / float64(k*(k-1))
		counted++
	}
	if counted == 0 {
		return 0
	}
	return sum / float64(counted)
}
