package domain

import "transitcat/internal/geo"

// StopID is the 0-based insertion index of a stop in the catalogue.
type StopID uint32

// BusID is the 1-based insertion index of a bus in the catalogue.
// NoBus marks edges that are not ridden on any bus.
type BusID uint32

const NoBus BusID = 0

// Stop is a named point of the network
type Stop struct {
	Name   string          `json:"name"`
	Coords geo.Coordinates `json:"coordinates"`
}

// Bus is a named route over catalogue stops. A non-roundtrip bus runs
// there and back along Stops.
type Bus struct {
	Name        string   `json:"name"`
	Stops       []StopID `json:"stops"`
	IsRoundtrip bool     `json:"is_roundtrip"`
}

// Traversal returns the stops in the order a vehicle visits them.
func (b *Bus) Traversal() []StopID {
	if b.IsRoundtrip || len(b.Stops) == 0 {
		out := make([]StopID, len(b.Stops))
		copy(out, b.Stops)
		return out
	}
	out := make([]StopID, 0, 2*len(b.Stops)-1)
	out = append(out, b.Stops...)
	for i := len(b.Stops) - 2; i >= 0; i-- {
		out = append(out, b.Stops[i])
	}
	return out
}

// DistanceEntry is one directed road distance in meters.
type DistanceEntry struct {
	From   StopID `json:"from"`
	To     StopID `json:"to"`
	Meters int    `json:"meters"`
}

const (
	DefaultBusWaitTime = 6
	DefaultBusVelocity = 40.0
)

// RoutingSettings configure the weights of the routing graph.
type RoutingSettings struct {
	BusWaitTime int     `json:"bus_wait_time" yaml:"bus_wait_time"` // minutes
	BusVelocity float64 `json:"bus_velocity" yaml:"bus_velocity"`   // km/h
}

func DefaultRoutingSettings() RoutingSettings {
	return RoutingSettings{
		BusWaitTime: DefaultBusWaitTime,
		BusVelocity: DefaultBusVelocity,
	}
}

// Normalize clamps negative values to zero.
func (s RoutingSettings) Normalize() RoutingSettings {
	if s.BusWaitTime < 0 {
		s.BusWaitTime = 0
	}
	if s.BusVelocity < 0 {
		s.BusVelocity = 0
	}
	return s
}

// MetersPerMinute converts the bus velocity to the unit used for edge weights.
func (s RoutingSettings) MetersPerMinute() float64 {
	return s.BusVelocity * 1000.0 / 60.0
}

// RouteInfo summarises one bus route.
type RouteInfo struct {
	StopCount       int     `json:"stop_count"`
	UniqueStopCount int     `json:"unique_stop_count"`
	RouteLength     float64 `json:"route_length"`
	Curvature       float64 `json:"curvature"`
}

// LegType distinguishes waiting at a stop from riding a bus
type LegType string

const (
	LegWait LegType = "Wait"
	LegRide LegType = "Bus"
)

// Leg is one item of an itinerary. Stop is set for wait legs, Bus and
// SpanCount for ride legs.
type Leg struct {
	Type      LegType `json:"type"`
	Stop      string  `json:"stop_name,omitempty"`
	Bus       string  `json:"bus,omitempty"`
	SpanCount int     `json:"span_count,omitempty"`
	Time      float64 `json:"time"`
}

// Itinerary is the fastest way between two stops.
type Itinerary struct {
	TotalTime float64 `json:"total_time"`
	Legs      []Leg   `json:"items"`
}
