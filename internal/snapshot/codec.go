// Package snapshot persists a built router (catalogue, routing settings,
// graph and route index) as a checksummed protobuf wire-format blob and
// restores it without rebuilding anything.
package snapshot

import (
	"errors"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"google.golang.org/protobuf/encoding/protowire"

	"transitcat/internal/domain"
	"transitcat/internal/graph"
	"transitcat/internal/router"
	"transitcat/internal/store"
)

var (
	ErrMalformed = errors.New("malformed snapshot")
	ErrNotFound  = errors.New("snapshot not found")
)

const (
	magic         = "transitcat"
	formatVersion = 1
)

// Field numbers. They are part of the on-disk format and must never be
// reused for a different meaning.
const (
	envMagic    protowire.Number = 1
	envVersion  protowire.Number = 2
	envPayload  protowire.Number = 3
	envChecksum protowire.Number = 4

	payloadStop     protowire.Number = 1
	payloadBus      protowire.Number = 2
	payloadDistance protowire.Number = 3
	payloadSettings protowire.Number = 4
	payloadGraph    protowire.Number = 5
	payloadIndex    protowire.Number = 6

	stopName protowire.Number = 1
	stopLat  protowire.Number = 2
	stopLng  protowire.Number = 3

	busName      protowire.Number = 1
	busStops     protowire.Number = 2
	busRoundtrip protowire.Number = 3

	distanceFrom   protowire.Number = 1
	distanceTo     protowire.Number = 2
	distanceMeters protowire.Number = 3

	settingsWait     protowire.Number = 1
	settingsVelocity protowire.Number = 2

	graphVertices  protowire.Number = 1
	graphEdge      protowire.Number = 2
	graphIncidence protowire.Number = 3

	edgeFrom     protowire.Number = 1
	edgeTo       protowire.Number = 2
	edgeWeight   protowire.Number = 3
	edgeBus      protowire.Number = 4
	edgeStopName protowire.Number = 5
	edgeSpan     protowire.Number = 6

	incidenceEdges protowire.Number = 1

	indexVertices protowire.Number = 1
	indexRow      protowire.Number = 2

	rowCell protowire.Number = 1

	cellNoRoute  protowire.Number = 1
	cellWeight   protowire.Number = 2
	cellPrevEdge protowire.Number = 3
)

func malformed(err error) error {
	return fmt.Errorf("%w: %w", ErrMalformed, err)
}

// Encode serialises r. The output depends only on the router's contents, so
// two builds of the same input produce identical bytes.
func Encode(r *router.Router) ([]byte, error) {
	if !r.IsInitialized() {
		return nil, router.ErrNotInitialized
	}
	payload := encodePayload(r.Catalogue(), r.Settings(), r.Graph(), r.Index())

	b := make([]byte, 0, len(payload)+32)
	b = appendString(b, envMagic, magic)
	b = appendUint(b, envVersion, formatVersion)
	b = appendBytes(b, envPayload, payload)
	b = protowire.AppendTag(b, envChecksum, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, xxhash.Sum64(payload))
	return b, nil
}

func encodePayload(cat *store.Catalogue, settings domain.RoutingSettings, g *graph.Graph, idx *router.Index) []byte {
	var b, msg []byte

	stops := cat.Stops()
	for _, s := range stops {
		msg = appendString(msg[:0], stopName, s.Name)
		msg = appendDouble(msg, stopLat, s.Coords.Lat)
		msg = appendDouble(msg, stopLng, s.Coords.Lng)
		b = appendBytes(b, payloadStop, msg)
	}

	for _, bus := range cat.Buses() {
		msg = appendString(msg[:0], busName, bus.Name)
		msg = appendPacked(msg, busStops, bus.Stops)
		msg = appendBool(msg, busRoundtrip, bus.IsRoundtrip)
		b = appendBytes(b, payloadBus, msg)
	}

	for _, d := range cat.Distances() {
		msg = appendUint(msg[:0], distanceFrom, uint64(d.From))
		msg = appendUint(msg, distanceTo, uint64(d.To))
		msg = appendSint(msg, distanceMeters, int64(d.Meters))
		b = appendBytes(b, payloadDistance, msg)
	}

	msg = appendUint(msg[:0], settingsWait, uint64(settings.BusWaitTime))
	msg = appendDouble(msg, settingsVelocity, settings.BusVelocity)
	b = appendBytes(b, payloadSettings, msg)

	b = appendBytes(b, payloadGraph, encodeGraph(g, stops))
	b = appendBytes(b, payloadIndex, encodeIndex(idx))
	return b
}

func encodeGraph(g *graph.Graph, stops []domain.Stop) []byte {
	var b, msg []byte
	b = appendUint(b, graphVertices, uint64(g.VertexCount()))
	for id := 0; id < g.EdgeCount(); id++ {
		e := g.Edge(graph.EdgeID(id))
		msg = appendUint(msg[:0], edgeFrom, uint64(e.From))
		msg = appendUint(msg, edgeTo, uint64(e.To))
		msg = appendDouble(msg, edgeWeight, e.Weight)
		msg = appendUint(msg, edgeBus, uint64(e.Bus))
		msg = appendString(msg, edgeStopName, stops[e.Stop].Name)
		msg = appendUint(msg, edgeSpan, uint64(e.SpanCount))
		b = appendBytes(b, graphEdge, msg)
	}
	for v := 0; v < g.VertexCount(); v++ {
		msg = appendPacked(msg[:0], incidenceEdges, g.IncidentEdges(graph.VertexID(v)))
		b = appendBytes(b, graphIncidence, msg)
	}
	return b
}

func encodeIndex(idx *router.Index) []byte {
	var b, row, cell []byte
	n := idx.VertexCount()
	entries := idx.Entries()
	b = appendUint(b, indexVertices, uint64(n))
	for s := 0; s < n; s++ {
		row = row[:0]
		for _, e := range entries[s*n : (s+1)*n] {
			if !e.Reachable {
				cell = appendBool(cell[:0], cellNoRoute, true)
			} else {
				cell = appendDouble(cell[:0], cellWeight, e.Weight)
				cell = appendSint(cell, cellPrevEdge, int64(e.PrevEdge))
			}
			row = appendBytes(row, rowCell, cell)
		}
		b = appendBytes(b, indexRow, row)
	}
	return b
}

// Decode validates and restores a blob written by Encode. Any structural
// problem is reported as ErrMalformed.
func Decode(data []byte) (*router.Router, error) {
	payload, err := openEnvelope(data)
	if err != nil {
		return nil, err
	}
	var s decoded
	if err := s.decodePayload(payload); err != nil {
		return nil, err
	}
	return s.assemble()
}

func openEnvelope(data []byte) ([]byte, error) {
	var (
		gotMagic    string
		version     uint64
		payload     []byte
		checksum    uint64
		hasChecksum bool
		hasPayload  bool
	)
	err := eachField(data, func(f field) (err error) {
		switch f.num {
		case envMagic:
			gotMagic, err = f.text()
		case envVersion:
			version, err = f.varint()
		case envPayload:
			payload, err = f.message()
			hasPayload = true
		case envChecksum:
			checksum, err = f.scalar, f.expect(protowire.Fixed64Type)
			hasChecksum = true
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if gotMagic != magic {
		return nil, malformed(fmt.Errorf("bad magic %q", gotMagic))
	}
	if version != formatVersion {
		return nil, malformed(fmt.Errorf("unsupported format version %d", version))
	}
	if !hasPayload || !hasChecksum {
		return nil, malformed(errors.New("envelope is incomplete"))
	}
	if sum := xxhash.Sum64(payload); sum != checksum {
		return nil, malformed(fmt.Errorf("checksum mismatch: %016x != %016x", sum, checksum))
	}
	return payload, nil
}

type decodedEdge struct {
	edge     graph.Edge
	stopName string
}

type decoded struct {
	stops     []domain.Stop
	buses     []domain.Bus
	distances []domain.DistanceEntry
	settings  domain.RoutingSettings

	vertexCount uint64
	edges       []decodedEdge
	incidence   [][]graph.EdgeID

	indexVertexCount uint64
	rows             [][]router.Entry
}

func (s *decoded) decodePayload(payload []byte) error {
	return eachField(payload, func(f field) error {
		if f.num < payloadStop || f.num > payloadIndex {
			return nil
		}
		msg, err := f.message()
		if err != nil {
			return err
		}
		switch f.num {
		case payloadStop:
			return s.decodeStop(msg)
		case payloadBus:
			return s.decodeBus(msg)
		case payloadDistance:
			return s.decodeDistance(msg)
		case payloadSettings:
			return s.decodeSettings(msg)
		case payloadGraph:
			return s.decodeGraph(msg)
		case payloadIndex:
			return s.decodeIndex(msg)
		}
		return nil
	})
}

func (s *decoded) decodeStop(msg []byte) error {
	var stop domain.Stop
	err := eachField(msg, func(f field) (err error) {
		switch f.num {
		case stopName:
			stop.Name, err = f.text()
		case stopLat:
			stop.Coords.Lat, err = f.double()
		case stopLng:
			stop.Coords.Lng, err = f.double()
		}
		return err
	})
	if err != nil {
		return err
	}
	s.stops = append(s.stops, stop)
	return nil
}

func (s *decoded) decodeBus(msg []byte) error {
	var bus domain.Bus
	err := eachField(msg, func(f field) error {
		switch f.num {
		case busName:
			name, err := f.text()
			bus.Name = name
			return err
		case busStops:
			ids, err := f.packedU32s()
			for _, id := range ids {
				bus.Stops = append(bus.Stops, domain.StopID(id))
			}
			return err
		case busRoundtrip:
			v, err := f.flag()
			bus.IsRoundtrip = v
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.buses = append(s.buses, bus)
	return nil
}

func (s *decoded) decodeDistance(msg []byte) error {
	var d domain.DistanceEntry
	err := eachField(msg, func(f field) error {
		switch f.num {
		case distanceFrom:
			v, err := f.u32()
			d.From = domain.StopID(v)
			return err
		case distanceTo:
			v, err := f.u32()
			d.To = domain.StopID(v)
			return err
		case distanceMeters:
			v, err := f.zigzag()
			if err == nil && (v < math.MinInt32 || v > math.MaxInt32) {
				err = malformed(fmt.Errorf("distance %d out of range", v))
			}
			d.Meters = int(v)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.distances = append(s.distances, d)
	return nil
}

func (s *decoded) decodeSettings(msg []byte) error {
	return eachField(msg, func(f field) error {
		switch f.num {
		case settingsWait:
			v, err := f.varint()
			if err == nil && v > math.MaxInt32 {
				err = malformed(fmt.Errorf("bus wait time %d out of range", v))
			}
			s.settings.BusWaitTime = int(v)
			return err
		case settingsVelocity:
			v, err := f.double()
			if err == nil && (math.IsNaN(v) || math.IsInf(v, 0) || v < 0) {
				err = malformed(fmt.Errorf("bus velocity %v out of range", v))
			}
			s.settings.BusVelocity = v
			return err
		}
		return nil
	})
}

func (s *decoded) decodeGraph(msg []byte) error {
	return eachField(msg, func(f field) error {
		switch f.num {
		case graphVertices:
			v, err := f.varint()
			s.vertexCount = v
			return err
		case graphEdge:
			m, err := f.message()
			if err != nil {
				return err
			}
			return s.decodeEdge(m)
		case graphIncidence:
			m, err := f.message()
			if err != nil {
				return err
			}
			var list []graph.EdgeID
			err = eachField(m, func(f field) error {
				if f.num != incidenceEdges {
					return nil
				}
				ids, err := f.packedVarints()
				for _, id := range ids {
					if id > math.MaxInt64 {
						return malformed(fmt.Errorf("edge id %d out of range", id))
					}
					list = append(list, graph.EdgeID(id))
				}
				return err
			})
			if err != nil {
				return err
			}
			s.incidence = append(s.incidence, list)
		}
		return nil
	})
}

func (s *decoded) decodeEdge(msg []byte) error {
	var e decodedEdge
	err := eachField(msg, func(f field) error {
		switch f.num {
		case edgeFrom:
			v, err := f.u32()
			e.edge.From = graph.VertexID(v)
			return err
		case edgeTo:
			v, err := f.u32()
			e.edge.To = graph.VertexID(v)
			return err
		case edgeWeight:
			v, err := f.double()
			e.edge.Weight = v
			return err
		case edgeBus:
			v, err := f.u32()
			e.edge.Bus = domain.BusID(v)
			return err
		case edgeStopName:
			v, err := f.text()
			e.stopName = v
			return err
		case edgeSpan:
			v, err := f.u32()
			e.edge.SpanCount = int(v)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.edges = append(s.edges, e)
	return nil
}

func (s *decoded) decodeIndex(msg []byte) error {
	return eachField(msg, func(f field) error {
		switch f.num {
		case indexVertices:
			v, err := f.varint()
			s.indexVertexCount = v
			return err
		case indexRow:
			m, err := f.message()
			if err != nil {
				return err
			}
			var row []router.Entry
			err = eachField(m, func(f field) error {
				if f.num != rowCell {
					return nil
				}
				c, err := f.message()
				if err != nil {
					return err
				}
				entry, err := decodeCell(c)
				row = append(row, entry)
				return err
			})
			if err != nil {
				return err
			}
			s.rows = append(s.rows, row)
		}
		return nil
	})
}

func decodeCell(msg []byte) (router.Entry, error) {
	entry := router.Entry{Reachable: true, PrevEdge: graph.NoEdge}
	var noRoute bool
	err := eachField(msg, func(f field) (err error) {
		switch f.num {
		case cellNoRoute:
			noRoute, err = f.flag()
		case cellWeight:
			entry.Weight, err = f.double()
		case cellPrevEdge:
			var v int64
			v, err = f.zigzag()
			entry.PrevEdge = graph.EdgeID(v)
		}
		return err
	})
	if noRoute {
		return router.Entry{PrevEdge: graph.NoEdge}, err
	}
	return entry, err
}

// assemble rebuilds the catalogue through its public API so every restored
// identifier is checked against the one the blob claims.
func (s *decoded) assemble() (*router.Router, error) {
	cat := store.NewCatalogue()
	for i, stop := range s.stops {
		if id := cat.AddStop(stop.Name, stop.Coords); int(id) != i {
			return nil, malformed(fmt.Errorf("duplicate stop %q", stop.Name))
		}
	}
	for _, d := range s.distances {
		if err := cat.SetDistance(d.From, d.To, d.Meters); err != nil {
			return nil, malformed(err)
		}
	}
	for i, bus := range s.buses {
		id := cat.AddOrGetBus(bus.Name)
		if int(id) != i+1 {
			return nil, malformed(fmt.Errorf("duplicate bus %q", bus.Name))
		}
		for _, stop := range bus.Stops {
			if err := cat.AppendStopToBus(id, stop); err != nil {
				return nil, malformed(err)
			}
		}
		if err := cat.SetRoundtrip(id, bus.IsRoundtrip); err != nil {
			return nil, malformed(err)
		}
	}

	if s.vertexCount != uint64(len(s.stops)) || len(s.incidence) != len(s.stops) {
		return nil, malformed(fmt.Errorf("graph has %d vertices and %d incidence lists for %d stops",
			s.vertexCount, len(s.incidence), len(s.stops)))
	}
	edges := make([]graph.Edge, len(s.edges))
	for i, de := range s.edges {
		e := de.edge
		stop, ok := cat.FindStop(de.stopName)
		if !ok {
			return nil, malformed(fmt.Errorf("edge %d names unknown stop %q", i, de.stopName))
		}
		e.Stop = stop
		if int(e.Bus) > len(s.buses) {
			return nil, malformed(fmt.Errorf("edge %d references bus %d of %d", i, e.Bus, len(s.buses)))
		}
		if e.IsWait() && e.From != e.To {
			return nil, malformed(fmt.Errorf("wait edge %d is not a loop", i))
		}
		if math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) || e.Weight < 0 {
			return nil, malformed(fmt.Errorf("edge %d has weight %v", i, e.Weight))
		}
		edges[i] = e
	}
	g, err := graph.Restore(edges, s.incidence)
	if err != nil {
		return nil, malformed(err)
	}

	if s.indexVertexCount != uint64(len(s.stops)) || len(s.rows) != len(s.stops) {
		return nil, malformed(fmt.Errorf("route index has %d rows for %d stops", len(s.rows), len(s.stops)))
	}
	entries := make([]router.Entry, 0, len(s.stops)*len(s.stops))
	for i, row := range s.rows {
		if len(row) != len(s.stops) {
			return nil, malformed(fmt.Errorf("route index row %d has %d cells", i, len(row)))
		}
		entries = append(entries, row...)
	}
	idx, err := router.RestoreIndex(g, entries)
	if err != nil {
		return nil, malformed(err)
	}

	return router.New(cat, s.settings, g, idx), nil
}
