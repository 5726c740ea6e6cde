// Package graph is a directed weighted multigraph whose edges are addressed
// by their insertion index.
package graph

import (
	"errors"
	"fmt"

	"transitcat/internal/domain"
)

type VertexID uint32

// EdgeID is the insertion index of an edge. NoEdge marks the absence of one.
type EdgeID int64

const NoEdge EdgeID = -1

var ErrInvalidGraph = errors.New("invalid graph")

// Edge carries the weight in minutes plus the transit labels needed to turn
// a path back into an itinerary. Bus is domain.NoBus for wait edges.
type Edge struct {
	From      VertexID
	To        VertexID
	Weight    float64
	Bus       domain.BusID
	Stop      domain.StopID
	SpanCount int
}

func (e Edge) IsWait() bool {
	return e.Bus == domain.NoBus
}

type Graph struct {
	edges     []Edge
	incidence [][]EdgeID
}

func New(vertexCount int) *Graph {
	return &Graph{
		incidence: make([][]EdgeID, vertexCount),
	}
}

// Restore rebuilds a graph from a persisted edge list and incidence lists.
// Every edge must appear exactly once, in the list of its origin vertex.
func Restore(edges []Edge, incidence [][]EdgeID) (*Graph, error) {
	seen := make([]bool, len(edges))
	for v, list := range incidence {
		for _, id := range list {
			if id < 0 || int(id) >= len(edges) {
				return nil, fmt.Errorf("%w: vertex %d lists edge %d of %d", ErrInvalidGraph, v, id, len(edges))
			}
			if seen[id] {
				return nil, fmt.Errorf("%w: edge %d listed twice", ErrInvalidGraph, id)
			}
			seen[id] = true
			if e := edges[id]; int(e.From) != v || int(e.To) >= len(incidence) {
				return nil, fmt.Errorf("%w: edge %d (%d -> %d) listed under vertex %d", ErrInvalidGraph, id, e.From, e.To, v)
			}
		}
	}
	for id, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("%w: edge %d has no incidence entry", ErrInvalidGraph, id)
		}
	}
	return &Graph{edges: edges, incidence: incidence}, nil
}

// AddEdge appends e and returns its identifier. It panics if an endpoint is
// not a vertex of g.
func (g *Graph) AddEdge(e Edge) EdgeID {
	if int(e.From) >= len(g.incidence) || int(e.To) >= len(g.incidence) {
		panic(fmt.Sprintf("graph: edge %d -> %d outside %d vertices", e.From, e.To, len(g.incidence)))
	}
	id := EdgeID(len(g.edges))
	g.edges = append(g.edges, e)
	g.incidence[e.From] = append(g.incidence[e.From], id)
	return id
}

func (g *Graph) VertexCount() int {
	return len(g.incidence)
}

func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

func (g *Graph) Edge(id EdgeID) Edge {
	return g.edges[id]
}

// IncidentEdges returns the edges leaving v. The slice must not be modified.
func (g *Graph) IncidentEdges(v VertexID) []EdgeID {
	return g.incidence[v]
}
