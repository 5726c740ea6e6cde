// Package router builds the routing graph and the all-pairs route index over
// a catalogue and answers fastest-itinerary queries against them.
package router

import (
	"context"
	"errors"
	"fmt"

	"transitcat/internal/domain"
	"transitcat/internal/graph"
	"transitcat/internal/store"
)

var (
	ErrNotFound       = errors.New("route not found")
	ErrNotInitialized = errors.New("router is not initialized")
)

// Router answers route queries from a precomputed index. It never searches
// at query time.
type Router struct {
	catalogue *store.Catalogue
	settings  domain.RoutingSettings
	graph     *graph.Graph
	index     *Index
}

// New assembles a router from parts that were built or restored elsewhere.
func New(cat *store.Catalogue, settings domain.RoutingSettings, g *graph.Graph, idx *Index) *Router {
	return &Router{
		catalogue: cat,
		settings:  settings.Normalize(),
		graph:     g,
		index:     idx,
	}
}

// Build constructs the graph and the index for the catalogue.
func Build(ctx context.Context, cat *store.Catalogue, settings domain.RoutingSettings, opts ...Option) (*Router, error) {
	g, err := BuildGraph(ctx, cat, settings, opts...)
	if err != nil {
		return nil, fmt.Errorf("build routing graph: %w", err)
	}
	idx, err := BuildIndex(ctx, g, opts...)
	if err != nil {
		return nil, err
	}
	return New(cat, settings, g, idx), nil
}

func (r *Router) IsInitialized() bool {
	return r != nil && r.catalogue != nil && r.graph != nil && r.index != nil
}

func (r *Router) Catalogue() *store.Catalogue {
	return r.catalogue
}

func (r *Router) Settings() domain.RoutingSettings {
	return r.settings
}

func (r *Router) Graph() *graph.Graph {
	return r.graph
}

func (r *Router) Index() *Index {
	return r.index
}

// Query returns the fastest itinerary between two stops. Every ride edge is
// reported as a wait at its origin stop followed by the ride itself. A
// query from a stop to itself costs nothing and has no legs.
func (r *Router) Query(from, to string) (domain.Itinerary, error) {
	if !r.IsInitialized() {
		panic(ErrNotInitialized)
	}

	fromID, ok := r.catalogue.FindStop(from)
	if !ok {
		return domain.Itinerary{}, fmt.Errorf("stop %q: %w", from, ErrNotFound)
	}
	toID, ok := r.catalogue.FindStop(to)
	if !ok {
		return domain.Itinerary{}, fmt.Errorf("stop %q: %w", to, ErrNotFound)
	}

	total, edges, ok := r.index.Path(r.graph, graph.VertexID(fromID), graph.VertexID(toID))
	if !ok {
		return domain.Itinerary{}, fmt.Errorf("%q -> %q: %w", from, to, ErrNotFound)
	}

	wait := float64(r.settings.BusWaitTime)
	itinerary := domain.Itinerary{
		TotalTime: total,
		Legs:      make([]domain.Leg, 0, 2*len(edges)),
	}
	for _, id := range edges {
		e := r.graph.Edge(id)
		if e.IsWait() {
			continue
		}
		stop, _ := r.catalogue.Stop(e.Stop)
		bus, _ := r.catalogue.BusName(e.Bus)
		itinerary.Legs = append(itinerary.Legs,
			domain.Leg{Type: domain.LegWait, Stop: stop.Name, Time: wait},
			domain.Leg{Type: domain.LegRide, Bus: bus, SpanCount: e.SpanCount, Time: e.Weight - wait},
		)
	}
	return itinerary, nil
}

type Stats struct {
	Vertices int `json:"vertices"`
	Edges    int `json:"edges"`
}

func (r *Router) Stats() Stats {
	if !r.IsInitialized() {
		return Stats{}
	}
	return Stats{Vertices: r.graph.VertexCount(), Edges: r.graph.EdgeCount()}
}
