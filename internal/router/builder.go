package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"transitcat/internal/domain"
	"transitcat/internal/graph"
	"transitcat/internal/store"
)

var ErrZeroVelocity = errors.New("bus velocity must be positive")

// BuildGraph turns the catalogue into the routing graph: one zero-weight
// wait loop per stop, then one ride edge for every (board, alight) pair of
// every bus. Ride edges are computed per bus in parallel and appended in
// catalogue bus order, so edge IDs do not depend on the worker count.
func BuildGraph(ctx context.Context, cat *store.Catalogue, settings domain.RoutingSettings, opts ...Option) (*graph.Graph, error) {
	o := newOptions(opts)
	start := time.Now()
	settings = settings.Normalize()

	stops := cat.Stops()
	g := graph.New(len(stops))
	for i := range stops {
		v := graph.VertexID(i)
		g.AddEdge(graph.Edge{From: v, To: v, Stop: domain.StopID(i)})
	}

	buses := cat.Buses()
	batches := make([][]graph.Edge, len(buses))
	errs := make([]error, len(buses))

	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := workerCount(o, len(buses))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					errs[i] = err
					continue
				}
				batches[i], errs[i] = rideEdges(cat, domain.BusID(i+1), &buses[i], settings)
			}
		}()
	}
	for i := range buses {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	for _, batch := range batches {
		for _, e := range batch {
			g.AddEdge(e)
		}
	}

	o.logger.Info("routing graph built",
		"stops", len(stops),
		"buses", len(buses),
		"edges", g.EdgeCount(),
		"workers", workers,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return g, nil
}

// rideEdges emits the forward pass over the stop list and, for a
// there-and-back bus, the backward pass. Edges never cross the terminus.
func rideEdges(cat *store.Catalogue, id domain.BusID, bus *domain.Bus, settings domain.RoutingSettings) ([]graph.Edge, error) {
	n := len(bus.Stops)
	if n < 2 {
		return nil, nil
	}
	speed := settings.MetersPerMinute()
	if speed <= 0 {
		return nil, fmt.Errorf("bus %q: %w", bus.Name, ErrZeroVelocity)
	}
	wait := float64(settings.BusWaitTime)

	// forward[k] is the road length from stops[0] to stops[k]
	forward := make([]int, n)
	for k := 1; k < n; k++ {
		d, err := cat.Distance(bus.Stops[k-1], bus.Stops[k])
		if err != nil {
			return nil, fmt.Errorf("bus %q: %w", bus.Name, err)
		}
		forward[k] = forward[k-1] + d
	}

	size := n * (n - 1) / 2
	if !bus.IsRoundtrip {
		size *= 2
	}
	edges := make([]graph.Edge, 0, size)

	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			edges = append(edges, graph.Edge{
				From:      graph.VertexID(bus.Stops[i]),
				To:        graph.VertexID(bus.Stops[j]),
				Weight:    wait + float64(forward[j]-forward[i])/speed,
				Bus:       id,
				Stop:      bus.Stops[i],
				SpanCount: j - i,
			})
		}
	}
	if bus.IsRoundtrip {
		return edges, nil
	}

	// backward[k] is the road length from stops[k] down to stops[0]
	backward := make([]int, n)
	for k := 1; k < n; k++ {
		d, err := cat.Distance(bus.Stops[k], bus.Stops[k-1])
		if err != nil {
			return nil, fmt.Errorf("bus %q: %w", bus.Name, err)
		}
		backward[k] = backward[k-1] + d
	}
	for i := n - 1; i > 0; i-- {
		for j := i - 1; j >= 0; j-- {
			edges = append(edges, graph.Edge{
				From:      graph.VertexID(bus.Stops[i]),
				To:        graph.VertexID(bus.Stops[j]),
				Weight:    wait + float64(backward[i]-backward[j])/speed,
				Bus:       id,
				Stop:      bus.Stops[i],
				SpanCount: i - j,
			})
		}
	}
	return edges, nil
}
