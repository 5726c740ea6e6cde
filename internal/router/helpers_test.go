package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"transitcat/internal/geo"
	"transitcat/internal/graph"
	"transitcat/internal/store"
)

type testBus struct {
	name      string
	stops     []string
	roundtrip bool
}

type testDistance struct {
	from, to string
	meters   int
}

func newTestCatalogue(t *testing.T, stops []string, buses []testBus, distances []testDistance) *store.Catalogue {
	t.Helper()
	c := store.NewCatalogue()
	for i, name := range stops {
		c.AddStop(name, geo.Coordinates{Lat: 0, Lng: float64(i) * 0.01})
	}
	for _, d := range distances {
		from, ok := c.FindStop(d.from)
		require.True(t, ok, d.from)
		to, ok := c.FindStop(d.to)
		require.True(t, ok, d.to)
		require.NoError(t, c.SetDistance(from, to, d.meters))
	}
	for _, b := range buses {
		id := c.AddOrGetBus(b.name)
		for _, name := range b.stops {
			stop, ok := c.FindStop(name)
			require.True(t, ok, name)
			require.NoError(t, c.AppendStopToBus(id, stop))
		}
		require.NoError(t, c.SetRoundtrip(id, b.roundtrip))
	}
	return c
}

func edgesOf(g *graph.Graph) []graph.Edge {
	out := make([]graph.Edge, g.EdgeCount())
	for i := range out {
		out[i] = g.Edge(graph.EdgeID(i))
	}
	return out
}
