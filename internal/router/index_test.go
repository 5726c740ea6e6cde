package router

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitcat/internal/domain"
	"transitcat/internal/graph"
)

func triangle() *graph.Graph {
	g := graph.New(3)
	g.AddEdge(graph.Edge{From: 0, To: 1, Weight: 1, Bus: 1}) // 0
	g.AddEdge(graph.Edge{From: 1, To: 2, Weight: 1, Bus: 1}) // 1
	g.AddEdge(graph.Edge{From: 0, To: 2, Weight: 5, Bus: 2}) // 2
	return g
}

func TestBuildIndex_ShortestPaths(t *testing.T) {
	g := triangle()
	idx, err := BuildIndex(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.VertexCount())

	e, ok := idx.Entry(0, 2)
	require.True(t, ok)
	assert.Equal(t, 2.0, e.Weight)
	assert.Equal(t, graph.EdgeID(1), e.PrevEdge)

	weight, path, ok := idx.Path(g, 0, 2)
	require.True(t, ok)
	assert.Equal(t, 2.0, weight)
	assert.Equal(t, []graph.EdgeID{0, 1}, path)

	_, ok = idx.Entry(2, 0)
	assert.False(t, ok)
	_, _, ok = idx.Path(g, 2, 0)
	assert.False(t, ok)

	_, ok = idx.Entry(0, 7)
	assert.False(t, ok, "out of range vertex")
}

func TestBuildIndex_Diagonal(t *testing.T) {
	g := triangle()
	idx, err := BuildIndex(context.Background(), g)
	require.NoError(t, err)

	for v := graph.VertexID(0); v < 3; v++ {
		e, ok := idx.Entry(v, v)
		require.True(t, ok)
		assert.Zero(t, e.Weight)
		assert.Equal(t, graph.NoEdge, e.PrevEdge)

		weight, path, ok := idx.Path(g, v, v)
		require.True(t, ok)
		assert.Zero(t, weight)
		assert.Empty(t, path)
	}
}

func TestBuildIndex_TiesKeepFirstFound(t *testing.T) {
	g := graph.New(3)
	g.AddEdge(graph.Edge{From: 0, To: 1, Weight: 1, Bus: 1}) // 0
	g.AddEdge(graph.Edge{From: 1, To: 2, Weight: 1, Bus: 1}) // 1
	g.AddEdge(graph.Edge{From: 0, To: 2, Weight: 2, Bus: 2}) // 2
	g.AddEdge(graph.Edge{From: 0, To: 1, Weight: 1, Bus: 3}) // 3

	idx, err := BuildIndex(context.Background(), g)
	require.NoError(t, err)

	e, _ := idx.Entry(0, 2)
	assert.Equal(t, graph.EdgeID(2), e.PrevEdge)
	e, _ = idx.Entry(0, 1)
	assert.Equal(t, graph.EdgeID(0), e.PrevEdge)
}

func TestBuildIndex_WorkerCountDoesNotChangeTable(t *testing.T) {
	g, err := BuildGraph(context.Background(), gridCatalogue(t), domain.DefaultRoutingSettings())
	require.NoError(t, err)

	serial, err := BuildIndex(context.Background(), g, WithWorkers(1))
	require.NoError(t, err)
	parallel, err := BuildIndex(context.Background(), g, WithWorkers(8))
	require.NoError(t, err)

	assert.Equal(t, serial.Entries(), parallel.Entries())
}

func TestBuildIndex_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := BuildIndex(ctx, triangle())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRestoreIndex(t *testing.T) {
	g := triangle()
	built, err := BuildIndex(context.Background(), g)
	require.NoError(t, err)

	clone := func() []Entry {
		return append([]Entry(nil), built.Entries()...)
	}

	restored, err := RestoreIndex(g, clone())
	require.NoError(t, err)
	assert.Equal(t, built.Entries(), restored.Entries())

	tests := []struct {
		name    string
		corrupt func([]Entry) []Entry
	}{
		{"short table", func(e []Entry) []Entry { return e[:8] }},
		{"unreachable diagonal", func(e []Entry) []Entry {
			e[4] = Entry{PrevEdge: graph.NoEdge}
			return e
		}},
		{"diagonal with predecessor", func(e []Entry) []Entry {
			e[0].PrevEdge = 0
			return e
		}},
		{"edge out of range", func(e []Entry) []Entry {
			e[2].PrevEdge = 42
			return e
		}},
		{"edge ends elsewhere", func(e []Entry) []Entry {
			e[2].PrevEdge = 0
			return e
		}},
		{"predecessor unreachable", func(e []Entry) []Entry {
			e[1] = Entry{PrevEdge: graph.NoEdge}
			return e
		}},
		{"diagonal with weight", func(e []Entry) []Entry {
			e[8].Weight = 1
			return e
		}},
		{"negative weight", func(e []Entry) []Entry {
			e[1].Weight = -1
			return e
		}},
		{"NaN weight", func(e []Entry) []Entry {
			e[2].Weight = math.NaN()
			return e
		}},
		{"infinite weight", func(e []Entry) []Entry {
			e[5].Weight = math.Inf(1)
			return e
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RestoreIndex(g, tt.corrupt(clone()))
			assert.ErrorIs(t, err, ErrInvalidIndex)
		})
	}
}
