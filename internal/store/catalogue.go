package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"transitcat/internal/domain"
	"transitcat/internal/geo"
)

var (
	ErrUnknownStop = errors.New("unknown stop")
	ErrUnknownBus  = errors.New("unknown bus")
	ErrNoDistance  = errors.New("no road distance between stops")
)

type stopPair struct {
	from, to domain.StopID
}

// Catalogue owns stops, buses and road distances. Entities are appended
// during a single load and addressed by their insertion index afterwards.
type Catalogue struct {
	mu sync.RWMutex

	stops      []domain.Stop
	stopByName map[string]domain.StopID

	buses     []domain.Bus
	busByName map[string]domain.BusID

	// distances keeps insertion order; distanceAt indexes into it
	distances  []domain.DistanceEntry
	distanceAt map[stopPair]int

	stopBuses map[domain.StopID]map[string]struct{}
}

func NewCatalogue() *Catalogue {
	return &Catalogue{
		stopByName: make(map[string]domain.StopID),
		busByName:  make(map[string]domain.BusID),
		distanceAt: make(map[stopPair]int),
		stopBuses:  make(map[domain.StopID]map[string]struct{}),
	}
}

// AddStop registers a stop. Adding a name twice returns the existing ID.
func (c *Catalogue) AddStop(name string, coords geo.Coordinates) domain.StopID {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.stopByName[name]; ok {
		return id
	}
	id := domain.StopID(len(c.stops))
	c.stops = append(c.stops, domain.Stop{Name: name, Coords: coords})
	c.stopByName[name] = id
	return id
}

// AddOrGetBus returns the bus with the given name, creating an empty one if
// it is not registered yet.
func (c *Catalogue) AddOrGetBus(name string) domain.BusID {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.busByName[name]; ok {
		return id
	}
	c.buses = append(c.buses, domain.Bus{Name: name})
	id := domain.BusID(len(c.buses))
	c.busByName[name] = id
	return id
}

func (c *Catalogue) AppendStopToBus(bus domain.BusID, stop domain.StopID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, err := c.busLocked(bus)
	if err != nil {
		return err
	}
	if int(stop) >= len(c.stops) {
		return fmt.Errorf("append stop %d to bus %q: %w", stop, b.Name, ErrUnknownStop)
	}
	b.Stops = append(b.Stops, stop)

	names, ok := c.stopBuses[stop]
	if !ok {
		names = make(map[string]struct{})
		c.stopBuses[stop] = names
	}
	names[b.Name] = struct{}{}
	return nil
}

func (c *Catalogue) SetRoundtrip(bus domain.BusID, roundtrip bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, err := c.busLocked(bus)
	if err != nil {
		return err
	}
	b.IsRoundtrip = roundtrip
	return nil
}

// SetDistance records the road distance for the ordered pair, overwriting a
// previous value for exactly that pair.
func (c *Catalogue) SetDistance(from, to domain.StopID, meters int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if int(from) >= len(c.stops) || int(to) >= len(c.stops) {
		return fmt.Errorf("distance %d -> %d: %w", from, to, ErrUnknownStop)
	}
	key := stopPair{from: from, to: to}
	if i, ok := c.distanceAt[key]; ok {
		c.distances[i].Meters = meters
		return nil
	}
	c.distanceAt[key] = len(c.distances)
	c.distances = append(c.distances, domain.DistanceEntry{From: from, To: to, Meters: meters})
	return nil
}

// Distance looks up from -> to, falling back to to -> from. It returns
// ErrNoDistance if neither direction is recorded.
func (c *Catalogue) Distance(from, to domain.StopID) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.distanceLocked(from, to)
}

func (c *Catalogue) distanceLocked(from, to domain.StopID) (int, error) {
	if i, ok := c.distanceAt[stopPair{from: from, to: to}]; ok {
		return c.distances[i].Meters, nil
	}
	if i, ok := c.distanceAt[stopPair{from: to, to: from}]; ok {
		return c.distances[i].Meters, nil
	}
	return 0, fmt.Errorf("%w: %s -> %s", ErrNoDistance, c.stopNameLocked(from), c.stopNameLocked(to))
}

func (c *Catalogue) FindStop(name string) (domain.StopID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.stopByName[name]
	return id, ok
}

func (c *Catalogue) FindBus(name string) (domain.BusID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.busByName[name]
	return id, ok
}

// BusesThrough returns the sorted names of buses passing the stop. ok is
// false when the stop itself is unknown.
func (c *Catalogue) BusesThrough(stopName string) (names []string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.stopByName[stopName]
	if !ok {
		return nil, false
	}
	set := c.stopBuses[id]
	names = make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, true
}

func (c *Catalogue) Stop(id domain.StopID) (domain.Stop, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if int(id) >= len(c.stops) {
		return domain.Stop{}, false
	}
	return c.stops[id], true
}

// Bus returns a copy of the bus.
func (c *Catalogue) Bus(id domain.BusID) (domain.Bus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id == domain.NoBus || int(id) > len(c.buses) {
		return domain.Bus{}, false
	}
	return copyBus(c.buses[id-1]), true
}

// BusName returns the name of the bus without copying its stops.
func (c *Catalogue) BusName(id domain.BusID) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id == domain.NoBus || int(id) > len(c.buses) {
		return "", false
	}
	return c.buses[id-1].Name, true
}

// Stops returns all stops in insertion order; the index is the StopID.
func (c *Catalogue) Stops() []domain.Stop {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]domain.Stop, len(c.stops))
	copy(result, c.stops)
	return result
}

// Buses returns all buses in insertion order; index i holds BusID i+1.
func (c *Catalogue) Buses() []domain.Bus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]domain.Bus, len(c.buses))
	for i, b := range c.buses {
		result[i] = copyBus(b)
	}
	return result
}

// Distances returns the recorded entries in insertion order.
func (c *Catalogue) Distances() []domain.DistanceEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]domain.DistanceEntry, len(c.distances))
	copy(result, c.distances)
	return result
}

func (c *Catalogue) StopCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.stops)
}

func (c *Catalogue) BusCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.buses)
}

type CatalogueStats struct {
	StopsCount     int `json:"stops_count"`
	BusesCount     int `json:"buses_count"`
	DistancesCount int `json:"distances_count"`
}

func (c *Catalogue) Stats() CatalogueStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CatalogueStats{
		StopsCount:     len(c.stops),
		BusesCount:     len(c.buses),
		DistancesCount: len(c.distances),
	}
}

func (c *Catalogue) busLocked(id domain.BusID) (*domain.Bus, error) {
	if id == domain.NoBus || int(id) > len(c.buses) {
		return nil, fmt.Errorf("bus %d: %w", id, ErrUnknownBus)
	}
	return &c.buses[id-1], nil
}

func (c *Catalogue) stopNameLocked(id domain.StopID) string {
	if int(id) >= len(c.stops) {
		return fmt.Sprintf("#%d", id)
	}
	return c.stops[id].Name
}

func copyBus(b domain.Bus) domain.Bus {
	stops := make([]domain.StopID, len(b.Stops))
	copy(stops, b.Stops)
	b.Stops = stops
	return b
}
