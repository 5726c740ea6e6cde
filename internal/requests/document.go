// Package requests reads the JSON request document, loads its base requests
// into a catalogue and answers its stat requests.
package requests

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"

	"transitcat/internal/domain"
)

const (
	TypeStop  = "Stop"
	TypeBus   = "Bus"
	TypeRoute = "Route"
	TypeMap   = "Map"
)

// Document is the top-level request document. make_base reads the base
// requests and settings, process_requests reads the stat requests.
type Document struct {
	BaseRequests          []BaseRequest          `json:"base_requests"`
	StatRequests          []StatRequest          `json:"stat_requests"`
	RoutingSettings       domain.RoutingSettings `json:"routing_settings"`
	SerializationSettings SerializationSettings  `json:"serialization_settings"`
}

type SerializationSettings struct {
	File string `json:"file" validate:"required"`
}

// BaseRequest adds a stop (with its outgoing road distances) or a bus.
type BaseRequest struct {
	Type          string         `json:"type" validate:"oneof=Stop Bus"`
	Name          string         `json:"name" validate:"required"`
	Latitude      float64        `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude     float64        `json:"longitude" validate:"gte=-180,lte=180"`
	RoadDistances map[string]int `json:"road_distances,omitempty" validate:"dive,gte=0"`
	Stops         []string       `json:"stops,omitempty" validate:"dive,required"`
	IsRoundtrip   bool           `json:"is_roundtrip,omitempty"`
}

// StatRequest is one query. ID is echoed back as request_id.
type StatRequest struct {
	ID   int    `json:"id"`
	Type string `json:"type" validate:"oneof=Bus Stop Route Map"`
	Name string `json:"name,omitempty" validate:"required_if=Type Bus,required_if=Type Stop"`
	From string `json:"from,omitempty" validate:"required_if=Type Route"`
	To   string `json:"to,omitempty" validate:"required_if=Type Route"`
}

// Decode reads a document. Routing settings missing from the input keep
// their defaults.
func Decode(r io.Reader) (*Document, error) {
	doc := &Document{RoutingSettings: domain.DefaultRoutingSettings()}
	if err := json.NewDecoder(r).Decode(doc); err != nil {
		return nil, fmt.Errorf("decode request document: %w", err)
	}
	doc.RoutingSettings = doc.RoutingSettings.Normalize()
	return doc, nil
}

// Validate checks the serialization settings and every base request.
func (d *Document) Validate(v *validator.Validate) error {
	if err := v.Struct(d.SerializationSettings); err != nil {
		return fmt.Errorf("serialization_settings: %w", err)
	}
	for i := range d.BaseRequests {
		if err := v.Struct(&d.BaseRequests[i]); err != nil {
			return fmt.Errorf("base_requests[%d] %q: %w", i, d.BaseRequests[i].Name, err)
		}
	}
	return nil
}
