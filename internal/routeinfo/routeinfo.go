// Package routeinfo computes per-bus statistics from the catalogue.
package routeinfo

import (
	"errors"
	"fmt"

	"transitcat/internal/domain"
	"transitcat/internal/geo"
	"transitcat/internal/store"
)

var ErrNotFound = errors.New("bus not found")

// Compute returns stop counts, road length and curvature of the named bus.
// A hop without a recorded road distance in either direction is an error.
func Compute(cat *store.Catalogue, busName string) (domain.RouteInfo, error) {
	id, ok := cat.FindBus(busName)
	if !ok {
		return domain.RouteInfo{}, fmt.Errorf("%q: %w", busName, ErrNotFound)
	}
	bus, _ := cat.Bus(id)

	roadLength, err := RoadLength(cat, &bus)
	if err != nil {
		return domain.RouteInfo{}, fmt.Errorf("bus %q: %w", busName, err)
	}

	info := domain.RouteInfo{
		StopCount:       StopCount(&bus),
		UniqueStopCount: UniqueStopCount(&bus),
		RouteLength:     float64(roadLength),
	}
	if geoLength := GeoLength(cat, &bus); geoLength > 0 {
		info.Curvature = info.RouteLength / geoLength
	}
	return info, nil
}

// StopCount is the number of stop visits along the traversal.
func StopCount(bus *domain.Bus) int {
	n := len(bus.Stops)
	if n == 0 || bus.IsRoundtrip {
		return n
	}
	return 2*n - 1
}

func UniqueStopCount(bus *domain.Bus) int {
	seen := make(map[domain.StopID]struct{}, len(bus.Stops))
	for _, s := range bus.Stops {
		seen[s] = struct{}{}
	}
	return len(seen)
}

// RoadLength sums directed road distances along the traversal.
func RoadLength(cat *store.Catalogue, bus *domain.Bus) (int, error) {
	stops := bus.Traversal()
	total := 0
	for i := 1; i < len(stops); i++ {
		d, err := cat.Distance(stops[i-1], stops[i])
		if err != nil {
			return 0, err
		}
		total += d
	}
	return total, nil
}

// GeoLength sums great-circle distances along the traversal.
func GeoLength(cat *store.Catalogue, bus *domain.Bus) float64 {
	stops := bus.Traversal()
	total := 0.0
	for i := 1; i < len(stops); i++ {
		from, _ := cat.Stop(stops[i-1])
		to, _ := cat.Stop(stops[i])
		total += geo.Distance(from.Coords, to.Coords)
	}
	return total
}
