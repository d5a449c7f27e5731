// Package graph holds the directed, weighted relationship graph. It exposes
// read/write access only; trust propagation and path search live in their
// own packages.
package graph

import (
	"context"
	"sort"
	"sync"

	"github.com/sells-group/network-cli/internal/model"
)

// Store is the read/write surface of the relationship graph.
type Store interface {
	// Edges returns all outgoing edges from a participant.
	Edges(ctx context.Context, from string) ([]model.Edge, error)
	// Edge returns the direct edge from->to, or nil if none exists.
	Edge(ctx context.Context, from, to string) (*model.Edge, error)
	// PutEdge inserts or replaces an edge atomically and notifies
	// invalidation listeners.
	PutEdge(ctx context.Context, e model.Edge) error
	// Participants lists every node that appears on any edge, sorted.
	Participants(ctx context.Context) ([]string, error)
	// Snapshot returns an immutable adjacency copy for batch analytics.
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Listener is notified after an edge changes, so cached trust/path results
// touching that edge can be invalidated. Coherence is explicit, not
// best-effort.
type Listener func(from, to string)

// Memory is an in-memory Store implementation guarded by a RWMutex.
// Reads are freely parallelizable; writes are atomic.
type Memory struct {
	mu        sync.RWMutex
	out       map[string][]model.Edge
	nodes     map[string]struct{}
	listeners []Listener
}

// NewMemory creates an empty in-memory graph store.
func NewMemory() *Memory {
	return &Memory{
		out:   make(map[string][]model.Edge),
		nodes: make(map[string]struct{}),
	}
}

// OnEdgeChange registers a listener fired after every PutEdge.
func (m *Memory) OnEdgeChange(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Memory) Edges(_ context.Context, from string) ([]model.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	edges := m.out[from]
	out := make([]model.Edge, len(edges))
	copy(out, edges)
	return out, nil
}

func (m *Memory) Edge(_ context.Context, from, to string) (*model.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.out[from] {
		if e.To == to {
			cp := e
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) PutEdge(_ context.Context, e model.Edge) error {
	if err := e.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	edges := m.out[e.From]
	replaced := false
	for i := range edges {
		if edges[i].To == e.To {
			edges[i] = e
			replaced = true
			break
		}
	}
	if !replaced {
		edges = append(edges, e)
	}
	m.out[e.From] = edges
	m.nodes[e.From] = struct{}{}
	m.nodes[e.To] = struct{}{}
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	// Fire outside the lock; listeners may take their own locks.
	for _, l := range listeners {
		l(e.From, e.To)
	}
	return nil
}

func (m *Memory) Participants(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.nodes))
	for id := range m.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) Snapshot(_ context.Context) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]model.Edge, len(m.out))
	for from, edges := range m.out {
		cp := make([]model.Edge, len(edges))
		copy(cp, edges)
		out[from] = cp
	}
	nodes := make([]string, 0, len(m.nodes))
	for id := range m.nodes {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)
	return &Snapshot{Out: out, Nodes: nodes}, nil
}

// Snapshot is a point-in-time adjacency copy, safe for long-running batch
// computations without holding graph locks.
type Snapshot struct {
	Out   map[string][]model.Edge
	Nodes []string
}

// EdgeCount returns the number of directed edges in the snapshot.
func (s *Snapshot) EdgeCount() int {
	n := 0
	for _, edges := range s.Out {
		n += len(edges)
	}
	return n
}

// Undirected builds an undirected neighbor view used by component and
// clustering computations.
func (s *Snapshot) Undirected() map[string]map[string]struct{} {
	adj := make(map[string]map[string]struct{}, len(s.Nodes))
	add := func(a, b string) {
		if adj[a] == nil {
			adj[a] = make(map[string]struct{})
		}
		adj[a][b] = struct{}{}
	}
	for _, id := range s.Nodes {
		if adj[id] == nil {
			adj[id] = make(map[string]struct{})
		}
	}
	for from, edges := range s.Out {
		for _, e := range edges {
			add(from, e.To)
			add(e.To, from)
		}
	}
	return adj
}
