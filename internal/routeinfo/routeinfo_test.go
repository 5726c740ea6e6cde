package routeinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitcat/internal/geo"
	"transitcat/internal/store"
)

type fixture struct {
	cat *store.Catalogue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat := store.NewCatalogue()
	cat.AddStop("A", geo.Coordinates{Lat: 55.611087, Lng: 37.20829})
	cat.AddStop("B", geo.Coordinates{Lat: 55.595884, Lng: 37.209755})
	cat.AddStop("C", geo.Coordinates{Lat: 55.632761, Lng: 37.333324})
	return &fixture{cat: cat}
}

func (f *fixture) distance(t *testing.T, from, to string, meters int) {
	t.Helper()
	a, ok := f.cat.FindStop(from)
	require.True(t, ok)
	b, ok := f.cat.FindStop(to)
	require.True(t, ok)
	require.NoError(t, f.cat.SetDistance(a, b, meters))
}

func (f *fixture) bus(t *testing.T, name string, roundtrip bool, stops ...string) {
	t.Helper()
	id := f.cat.AddOrGetBus(name)
	require.NoError(t, f.cat.SetRoundtrip(id, roundtrip))
	for _, s := range stops {
		sid, ok := f.cat.FindStop(s)
		require.True(t, ok)
		require.NoError(t, f.cat.AppendStopToBus(id, sid))
	}
}

func TestCompute_Roundtrip(t *testing.T) {
	f := newFixture(t)
	f.distance(t, "A", "B", 100)
	f.distance(t, "B", "C", 200)
	f.bus(t, "loop", true, "A", "B", "C")

	info, err := Compute(f.cat, "loop")
	require.NoError(t, err)
	assert.Equal(t, 3, info.StopCount)
	assert.Equal(t, 3, info.UniqueStopCount)
	assert.Equal(t, 300.0, info.RouteLength)
	assert.Greater(t, info.Curvature, 0.0)
}

func TestCompute_ThereAndBackFallsBackToReverseDistance(t *testing.T) {
	f := newFixture(t)
	f.distance(t, "A", "B", 500)
	f.bus(t, "line", false, "A", "B")

	info, err := Compute(f.cat, "line")
	require.NoError(t, err)
	assert.Equal(t, 3, info.StopCount)
	assert.Equal(t, 2, info.UniqueStopCount)
	assert.Equal(t, 1000.0, info.RouteLength)
}

func TestCompute_ThereAndBackUsesDirectedDistances(t *testing.T) {
	f := newFixture(t)
	f.distance(t, "A", "B", 500)
	f.distance(t, "B", "A", 300)
	f.distance(t, "B", "C", 200)
	f.bus(t, "line", false, "A", "B", "C")

	info, err := Compute(f.cat, "line")
	require.NoError(t, err)
	assert.Equal(t, 5, info.StopCount)
	assert.Equal(t, 3, info.UniqueStopCount)
	assert.Equal(t, float64(500+200+200+300), info.RouteLength)

	geoOneWay := geo.Distance(geo.Coordinates{Lat: 55.611087, Lng: 37.20829}, geo.Coordinates{Lat: 55.595884, Lng: 37.209755}) +
		geo.Distance(geo.Coordinates{Lat: 55.595884, Lng: 37.209755}, geo.Coordinates{Lat: 55.632761, Lng: 37.333324})
	assert.InDelta(t, 1200/(2*geoOneWay), info.Curvature, 1e-9)
}

func TestCompute_DuplicateStops(t *testing.T) {
	f := newFixture(t)
	f.distance(t, "A", "B", 10)
	f.distance(t, "B", "A", 20)
	f.bus(t, "loop", true, "A", "B", "A")

	info, err := Compute(f.cat, "loop")
	require.NoError(t, err)
	assert.Equal(t, 3, info.StopCount)
	assert.Equal(t, 2, info.UniqueStopCount)
	assert.Equal(t, 30.0, info.RouteLength)
}

func TestCompute_ShortRoutes(t *testing.T) {
	f := newFixture(t)
	f.bus(t, "empty", true)
	f.bus(t, "single", false, "A")

	info, err := Compute(f.cat, "empty")
	require.NoError(t, err)
	assert.Zero(t, info.StopCount)
	assert.Zero(t, info.RouteLength)
	assert.Zero(t, info.Curvature)

	info, err = Compute(f.cat, "single")
	require.NoError(t, err)
	assert.Equal(t, 1, info.StopCount)
	assert.Equal(t, 1, info.UniqueStopCount)
	assert.Zero(t, info.RouteLength)
	assert.Zero(t, info.Curvature, "zero geo length must not divide")
}

func TestCompute_Errors(t *testing.T) {
	f := newFixture(t)
	f.bus(t, "broken", true, "A", "C")

	_, err := Compute(f.cat, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Compute(f.cat, "broken")
	assert.ErrorIs(t, err, store.ErrNoDistance)
}
