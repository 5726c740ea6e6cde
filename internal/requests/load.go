package requests

import (
	"fmt"
	"sort"

	"transitcat/internal/geo"
	"transitcat/internal/store"
)

// ApplyBase loads base requests in three passes: all stops, then all road
// distances, then all buses. A distance or bus naming an unknown stop fails
// the load.
func ApplyBase(cat *store.Catalogue, reqs []BaseRequest) error {
	for _, req := range reqs {
		if req.Type == TypeStop {
			cat.AddStop(req.Name, geo.Coordinates{Lat: req.Latitude, Lng: req.Longitude})
		}
	}

	for _, req := range reqs {
		if req.Type != TypeStop || len(req.RoadDistances) == 0 {
			continue
		}
		from, ok := cat.FindStop(req.Name)
		if !ok {
			return fmt.Errorf("stop %q: %w", req.Name, store.ErrUnknownStop)
		}
		// sorted so distances land in the catalogue in a stable order
		names := make([]string, 0, len(req.RoadDistances))
		for name := range req.RoadDistances {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			to, ok := cat.FindStop(name)
			if !ok {
				return fmt.Errorf("distance %q -> %q: %w", req.Name, name, store.ErrUnknownStop)
			}
			if err := cat.SetDistance(from, to, req.RoadDistances[name]); err != nil {
				return err
			}
		}
	}

	for _, req := range reqs {
		if req.Type != TypeBus {
			continue
		}
		bus := cat.AddOrGetBus(req.Name)
		for _, name := range req.Stops {
			stop, ok := cat.FindStop(name)
			if !ok {
				return fmt.Errorf("bus %q stop %q: %w", req.Name, name, store.ErrUnknownStop)
			}
			if err := cat.AppendStopToBus(bus, stop); err != nil {
				return err
			}
		}
		if err := cat.SetRoundtrip(bus, req.IsRoundtrip); err != nil {
			return err
		}
	}
	return nil
}
