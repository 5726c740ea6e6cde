package router

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"transitcat/internal/graph"
)

var ErrInvalidIndex = errors.New("invalid route index")

// Entry is the best known way to reach a target from a source: the total
// weight and the last edge used. PrevEdge is graph.NoEdge on the diagonal.
type Entry struct {
	Reachable bool
	Weight    float64
	PrevEdge  graph.EdgeID
}

// Index is the all-pairs minimum-weight table over a finished graph. It is
// read-only once built.
type Index struct {
	vertexCount int
	entries     []Entry // row-major, entries[s*vertexCount+t]
}

// BuildIndex runs Dijkstra from every vertex. Rows are independent and are
// filled in parallel; relaxation is strict and heap ties resolve by vertex
// ID, so the table only depends on the graph's edge order.
func BuildIndex(ctx context.Context, g *graph.Graph, opts ...Option) (*Index, error) {
	o := newOptions(opts)
	start := time.Now()

	n := g.VertexCount()
	idx := &Index{
		vertexCount: n,
		entries:     make([]Entry, n*n),
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	var cancelled atomic.Bool
	workers := workerCount(o, n)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var pq vertexQueue
			for s := range jobs {
				if ctx.Err() != nil {
					cancelled.Store(true)
					continue
				}
				shortestPaths(g, graph.VertexID(s), idx.row(s), &pq)
			}
		}()
	}
	for s := 0; s < n; s++ {
		jobs <- s
	}
	close(jobs)
	wg.Wait()

	if cancelled.Load() {
		return nil, fmt.Errorf("build route index: %w", ctx.Err())
	}

	o.logger.Info("route index built",
		"vertices", n,
		"edges", g.EdgeCount(),
		"workers", workers,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return idx, nil
}

// RestoreIndex rebuilds an index from persisted entries, validating them
// against g so that path reconstruction cannot leave the graph.
func RestoreIndex(g *graph.Graph, entries []Entry) (*Index, error) {
	n := g.VertexCount()
	if len(entries) != n*n {
		return nil, fmt.Errorf("%w: %d entries for %d vertices", ErrInvalidIndex, len(entries), n)
	}
	idx := &Index{vertexCount: n, entries: entries}
	for s := 0; s < n; s++ {
		for t := 0; t < n; t++ {
			e := entries[s*n+t]
			if s == t {
				if !e.Reachable || e.PrevEdge != graph.NoEdge || e.Weight != 0 {
					return nil, fmt.Errorf("%w: diagonal entry %d must be the empty path", ErrInvalidIndex, s)
				}
				continue
			}
			if !e.Reachable {
				continue
			}
			if math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) || e.Weight < 0 {
				return nil, fmt.Errorf("%w: entry %d -> %d has weight %v", ErrInvalidIndex, s, t, e.Weight)
			}
			if e.PrevEdge < 0 || int(e.PrevEdge) >= g.EdgeCount() {
				return nil, fmt.Errorf("%w: entry %d -> %d references edge %d", ErrInvalidIndex, s, t, e.PrevEdge)
			}
			edge := g.Edge(e.PrevEdge)
			if int(edge.To) != t || !entries[s*n+int(edge.From)].Reachable {
				return nil, fmt.Errorf("%w: entry %d -> %d is not reached by edge %d", ErrInvalidIndex, s, t, e.PrevEdge)
			}
		}
	}
	return idx, nil
}

func (idx *Index) VertexCount() int {
	return idx.vertexCount
}

// Entry returns the table cell for (from, to); ok is false if to is
// unreachable from from.
func (idx *Index) Entry(from, to graph.VertexID) (Entry, bool) {
	if int(from) >= idx.vertexCount || int(to) >= idx.vertexCount {
		return Entry{}, false
	}
	e := idx.entries[int(from)*idx.vertexCount+int(to)]
	return e, e.Reachable
}

// Entries exposes the row-major table for persistence.
func (idx *Index) Entries() []Entry {
	return idx.entries
}

// Path reconstructs the edges of an optimal path by walking predecessor
// edges back from the target.
func (idx *Index) Path(g *graph.Graph, from, to graph.VertexID) (float64, []graph.EdgeID, bool) {
	last, ok := idx.Entry(from, to)
	if !ok {
		return 0, nil, false
	}
	var edges []graph.EdgeID
	cur := last
	for cur.PrevEdge != graph.NoEdge {
		if len(edges) > idx.vertexCount {
			return 0, nil, false
		}
		edges = append(edges, cur.PrevEdge)
		prev, ok := idx.Entry(from, g.Edge(cur.PrevEdge).From)
		if !ok {
			return 0, nil, false
		}
		cur = prev
	}
	for i, j := 0, len(edges)-1; i < j; i, j = i+1, j-1 {
		edges[i], edges[j] = edges[j], edges[i]
	}
	return last.Weight, edges, true
}

func (idx *Index) row(s int) []Entry {
	return idx.entries[s*idx.vertexCount : (s+1)*idx.vertexCount]
}

func shortestPaths(g *graph.Graph, source graph.VertexID, row []Entry, pq *vertexQueue) {
	for i := range row {
		row[i] = Entry{PrevEdge: graph.NoEdge}
	}
	row[source] = Entry{Reachable: true, PrevEdge: graph.NoEdge}

	*pq = (*pq)[:0]
	heap.Push(pq, queueItem{vertex: source})
	for pq.Len() > 0 {
		item := heap.Pop(pq).(queueItem)
		if item.weight > row[item.vertex].Weight {
			continue
		}
		for _, id := range g.IncidentEdges(item.vertex) {
			e := g.Edge(id)
			w := item.weight + e.Weight
			if target := &row[e.To]; !target.Reachable || w < target.Weight {
				*target = Entry{Reachable: true, Weight: w, PrevEdge: id}
				heap.Push(pq, queueItem{vertex: e.To, weight: w})
			}
		}
	}
}

type queueItem struct {
	vertex graph.VertexID
	weight float64
}

type vertexQueue []queueItem

func (q vertexQueue) Len() int { return len(q) }
func (q vertexQueue) Less(i, j int) bool {
	if q[i].weight != q[j].weight {
		return q[i].weight < q[j].weight
	}
	return q[i].vertex < q[j].vertex
}
func (q vertexQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *vertexQueue) Push(x interface{}) {
	*q = append(*q, x.(queueItem))
}

func (q *vertexQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
