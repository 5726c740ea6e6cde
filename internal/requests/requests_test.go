package requests

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitcat/internal/domain"
	"transitcat/internal/router"
	"transitcat/internal/store"
)

const baseDocument = `{
	"serialization_settings": {"file": "transport.db"},
	"routing_settings": {"bus_wait_time": 6, "bus_velocity": 60},
	"render_settings": {"width": 200},
	"base_requests": [
		{"type": "Bus", "name": "1", "stops": ["A", "B", "A"], "is_roundtrip": true},
		{"type": "Stop", "name": "A", "latitude": 0, "longitude": 0, "road_distances": {"B": 1000}},
		{"type": "Stop", "name": "B", "latitude": 0, "longitude": 1},
		{"type": "Stop", "name": "C", "latitude": 0.5, "longitude": 0.5}
	],
	"stat_requests": [
		{"id": 1, "type": "Route", "from": "A", "to": "B"},
		{"id": 2, "type": "Stop", "name": "C"},
		{"id": 3, "type": "Stop", "name": "A"},
		{"id": 4, "type": "Stop", "name": "Z"},
		{"id": 5, "type": "Bus", "name": "1"},
		{"id": 6, "type": "Bus", "name": "404"},
		{"id": 7, "type": "Route", "from": "A", "to": "C"},
		{"id": 8, "type": "Map"},
		{"id": 9, "type": "Route", "from": "B", "to": "B"}
	]
}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadRouter(t *testing.T, doc *Document) *router.Router {
	t.Helper()
	require.NoError(t, doc.Validate(validator.New()))
	cat := store.NewCatalogue()
	require.NoError(t, ApplyBase(cat, doc.BaseRequests))
	r, err := router.Build(context.Background(), cat, doc.RoutingSettings)
	require.NoError(t, err)
	return r
}

func TestDecode(t *testing.T) {
	doc, err := Decode(strings.NewReader(baseDocument))
	require.NoError(t, err)

	assert.Equal(t, "transport.db", doc.SerializationSettings.File)
	assert.Equal(t, domain.RoutingSettings{BusWaitTime: 6, BusVelocity: 60}, doc.RoutingSettings)
	assert.Len(t, doc.BaseRequests, 4)
	assert.Len(t, doc.StatRequests, 9)
	assert.Equal(t, StatRequest{ID: 1, Type: TypeRoute, From: "A", To: "B"}, doc.StatRequests[0])
}

func TestDecode_DefaultsAndClamping(t *testing.T) {
	doc, err := Decode(strings.NewReader(`{"routing_settings": {"bus_velocity": -3}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.RoutingSettings{BusWaitTime: domain.DefaultBusWaitTime, BusVelocity: 0}, doc.RoutingSettings)

	_, err = Decode(strings.NewReader(`{"base_requests": [`))
	assert.Error(t, err)
}

func TestDocument_Validate(t *testing.T) {
	v := validator.New()

	doc := &Document{}
	assert.Error(t, doc.Validate(v), "serialization file is required")

	doc.SerializationSettings.File = "x.db"
	doc.BaseRequests = []BaseRequest{{Type: "Tram", Name: "T1"}}
	assert.Error(t, doc.Validate(v))

	doc.BaseRequests = []BaseRequest{{Type: TypeStop, Name: "A", Latitude: 91}}
	assert.Error(t, doc.Validate(v))

	doc.BaseRequests = []BaseRequest{{Type: TypeStop, Name: "A", RoadDistances: map[string]int{"B": -1}}}
	assert.Error(t, doc.Validate(v))

	doc.BaseRequests = []BaseRequest{{Type: TypeStop, Name: "A", Latitude: 55.6, Longitude: 37.2}}
	assert.NoError(t, doc.Validate(v))
}

func TestApplyBase_LoadOrder(t *testing.T) {
	doc, err := Decode(strings.NewReader(baseDocument))
	require.NoError(t, err)

	cat := store.NewCatalogue()
	require.NoError(t, ApplyBase(cat, doc.BaseRequests))

	assert.Equal(t, 3, cat.StopCount())
	assert.Equal(t, 1, cat.BusCount())

	a, _ := cat.FindStop("A")
	b, _ := cat.FindStop("B")
	d, err := cat.Distance(b, a)
	require.NoError(t, err)
	assert.Equal(t, 1000, d, "distance declared on A answers B -> A")

	bus, ok := cat.FindBus("1")
	require.True(t, ok)
	info, _ := cat.Bus(bus)
	assert.True(t, info.IsRoundtrip)
	assert.Equal(t, []domain.StopID{a, b, a}, info.Stops)
}

func TestApplyBase_UnknownStop(t *testing.T) {
	tests := map[string][]BaseRequest{
		"distance": {
			{Type: TypeStop, Name: "A", RoadDistances: map[string]int{"Nowhere": 10}},
		},
		"bus": {
			{Type: TypeStop, Name: "A"},
			{Type: TypeBus, Name: "1", Stops: []string{"A", "Nowhere"}},
		},
	}
	for name, reqs := range tests {
		t.Run(name, func(t *testing.T) {
			err := ApplyBase(store.NewCatalogue(), reqs)
			assert.ErrorIs(t, err, store.ErrUnknownStop)
		})
	}
}

func TestHandler_AnswerAll(t *testing.T) {
	doc, err := Decode(strings.NewReader(baseDocument))
	require.NoError(t, err)
	h := NewHandler(loadRouter(t, doc), validator.New(), discardLogger())

	answers := h.AnswerAll(doc.StatRequests)
	require.Len(t, answers, len(doc.StatRequests))
	for i, ans := range answers {
		assert.Equal(t, doc.StatRequests[i].ID, ans.RequestID)
	}

	out, err := json.Marshal(answers[:4])
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"request_id": 1, "total_time": 7, "items": [
			{"type": "Wait", "stop_name": "A", "time": 6},
			{"type": "Bus", "bus": "1", "span_count": 1, "time": 1}
		]},
		{"request_id": 2, "buses": []},
		{"request_id": 3, "buses": ["1"]},
		{"request_id": 4, "error_message": "not found"}
	]`, string(out))

	bus := answers[4]
	require.NotNil(t, bus.RouteInfo)
	assert.Equal(t, 3, bus.StopCount)
	assert.Equal(t, 2, bus.UniqueStopCount)
	assert.Equal(t, 2000.0, bus.RouteLength)
	assert.InDelta(t, 2000.0/(2*111194.93), bus.Curvature, 1e-6)

	assert.Equal(t, "not found", answers[5].ErrorMessage)
	assert.Equal(t, "not found", answers[6].ErrorMessage)
	assert.Equal(t, "not supported", answers[7].ErrorMessage)

	out, err = json.Marshal(answers[8])
	require.NoError(t, err)
	assert.JSONEq(t, `{"request_id": 9, "total_time": 0, "items": []}`, string(out))
}

func TestHandler_InvalidRequest(t *testing.T) {
	doc, err := Decode(strings.NewReader(baseDocument))
	require.NoError(t, err)
	h := NewHandler(loadRouter(t, doc), validator.New(), discardLogger())

	tests := []struct {
		req  StatRequest
		want string
	}{
		{StatRequest{ID: 1, Type: TypeRoute, From: "A"}, "invalid request: to failed required_if"},
		{StatRequest{ID: 2, Type: TypeBus}, "invalid request: name failed required_if"},
		{StatRequest{ID: 3, Type: "Tram"}, "invalid request: type failed oneof"},
	}
	for _, tt := range tests {
		ans := h.Answer(tt.req)
		assert.Equal(t, tt.req.ID, ans.RequestID)
		assert.Equal(t, tt.want, ans.ErrorMessage)
		assert.Nil(t, ans.Itinerary)
	}
}
