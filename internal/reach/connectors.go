package reach

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/network-cli/internal/graph"
	"github.com/sells-group/network-cli/internal/model"
)

// FindSuperConnectors ranks participants by a blend of degree, a sampled
// betweenness estimate, and K-hop reach. Analytical read on a batch
// cadence, not part of the matching hot path.
func (e *Engine) FindSuperConnectors(ctx context.Context, topN int) ([]model.SuperConnector, error) {
	if topN <= 0 {
		return nil, eris.Errorf("reach: topN must be positive, got %d", topN)
	}
	snap, err := e.graph.Snapshot(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "reach: snapshot graph")
	}
	if len(snap.Nodes) == 0 {
		return nil, nil
	}

	degree := make(map[string]int, len(snap.Nodes))
	in := make(map[string]int, len(snap.Nodes))
	for from, edges := range snap.Out {
		degree[from] += len(edges)
		for _, edge := range edges {
			in[edge.To]++
		}
	}
	for id, n := range in {
		degree[id] += n
	}

	between := e.sampleBetweenness(ctx, snap)

	maxDegree, maxBetween, maxReach := 1.0, 1.0, 1.0
	reach := make(map[string]int, len(snap.Nodes))
	for _, id := range snap.Nodes {
		reach[id] = e.reachWithin(id, snap, e.cfg.ConnectorReachHops)
		if float64(degree[id]) > maxDegree {
			maxDegree = float64(degree[id])
		}
		if between[id] > maxBetween {
			maxBetween = between[id]
		}
		if float64(reach[id]) > maxReach {
			maxReach = float64(reach[id])
		}
	}

	out := make([]model.SuperConnector, 0, len(snap.Nodes))
	for _, id := range snap.Nodes {
		score := 0.4*float64(degree[id])/maxDegree +
			0.3*between[id]/maxBetween +
			0.3*float64(reach[id])/maxReach
		out = append(out, model.SuperConnector{
			ParticipantID: id,
			Degree:        degree[id],
			Betweenness:   round4(between[id]),
			Reach:         reach[id],
			Score:         round4(score),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ParticipantID < out[j].ParticipantID
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

// sampleBetweenness counts how often each node sits on a BFS shortest-path
// tree from a deterministic sample of sources. An estimate, not exact
// betweenness; good enough for ranking.
func (e *Engine) sampleBetweenness(ctx context.Context, snap *graph.Snapshot) map[string]float64 {
	counts := make(map[string]float64, len(snap.Nodes))
	step := len(snap.Nodes)/e.cfg.BetweennessSamples + 1
	for i := 0; i < len(snap.Nodes); i += step {
		if ctx.Err() != nil {
			break
		}
		source := snap.Nodes[i]
		parents := bfsParents(source, snap)
		for node := range parents {
			// Walk back to the source, crediting intermediates.
			for p := parents[node]; p != "" && p != source; p = parents[p] {
				counts[p]++
			}
		}
	}
	return counts
}

func bfsParents(source string, snap *graph.Snapshot) map[string]string {
	parents := map[string]string{source: ""}
	queue := []string{source}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		edges := snap.Out[id]
		for _, edge := range edges {
			if _, ok := parents[edge.To]; !ok {
				parents[edge.To] = id
				queue = append(queue, edge.To)
			}
		}
	}
	delete(parents, source)
	return parents
}

// reachWithin returns the number of nodes reachable from id in at most
// maxHops directed hops.
func (e *Engine) reachWithin(id string, snap *graph.Snapshot, maxHops int) int {
	visited := map[string]struct{}{id: {}}
	frontier := []string{id}
	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, cur := range frontier {
			for _, edge := range snap.Out[cur] {
				if _, ok := visited[edge.To]; !ok {
					visited[edge.To] = struct{}{}
					next = append(next, edge.To)
				}
			}
		}
		frontier = next
	}
	return len(visited) - 1
}
