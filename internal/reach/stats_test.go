package reach

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/network-cli/internal/model"
)

func TestNetworkStatistics_Empty(t *testing.T) {
	e := New(buildGraph(t), nil, defaultCfg())
	stats, err := e.NetworkStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Participants)
	assert.Equal(t, 0, stats.Diameter)
}

func TestNetworkStatistics_Disconnected(t *testing.T) {
	// Component {a,b,c} as a chain, plus a lone pair {x,y}.
	g := buildGraph(t,
		model.Edge{From: "a", To: "b", Trust: 0.8},
		model.Edge{From: "b", To: "c", Trust: 0.8},
		model.Edge{From: "x", To: "y", Trust: 0.8},
	)
	e := New(g, nil, defaultCfg())

	stats, err := e.NetworkStatistics(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Participants)
	assert.Equal(t, 3, stats.Edges)
	assert.Equal(t, 3, stats.LargestComponent)
	// Diameter over the largest component only: a..c = 2 undirected hops.
	assert.Equal(t, 2, stats.Diameter)
	assert.Equal(t, 0, stats.IsolatedCount)
}

func TestNetworkStatistics_Clustering(t *testing.T) {
	// Triangle: every local clustering coefficient is 1.
	g := buildGraph(t,
		model.Edge{From: "a", To: "b", Trust: 0.8},
		model.Edge{From: "b", To: "c", Trust: 0.8},
		model.Edge{From: "c", To: "a", Trust: 0.8},
	)
	e := New(g, nil, defaultCfg())

	stats, err := e.NetworkStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, stats.ClusteringCoefficient)
	assert.Equal(t, 1, stats.Diameter)
}

func TestFindSuperConnectors(t *testing.T) {
	// Hub h connects to four spokes; spokes have no other edges.
	g := buildGraph(t,
		model.Edge{From: "h", To: "s1", Trust: 0.8},
		model.Edge{From: "h", To: "s2", Trust: 0.8},
		model.Edge{From: "h", To: "s3", Trust: 0.8},
		model.Edge{From: "s4", To: "h", Trust: 0.8},
	)
	e := New(g, nil, defaultCfg())

	top, err := e.FindSuperConnectors(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "h", top[0].ParticipantID)
	assert.Equal(t, 4, top[0].Degree)
	assert.GreaterOrEqual(t, top[0].Score, top[1].Score)
}

func TestFindSuperConnectors_Validation(t *testing.T) {
	e := New(buildGraph(t), nil, defaultCfg())
	_, err := e.FindSuperConnectors(context.Background(), 0)
	assert.Error(t, err)

	top, err := e.FindSuperConnectors(context.Background(), 5)
	require.NoError(t, err)
	assert.Nil(t, top, "empty graph yields no connectors")
}
