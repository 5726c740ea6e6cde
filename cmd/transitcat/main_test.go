package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitcat/internal/config"
	"transitcat/internal/snapshot"
)

const makeBaseInput = `{
	"serialization_settings": {"file": "transport.db"},
	"routing_settings": {"bus_wait_time": 2, "bus_velocity": 30},
	"base_requests": [
		{"type": "Bus", "name": "114", "stops": ["Morskoy vokzal", "Rivyerskiy most"], "is_roundtrip": false},
		{"type": "Stop", "name": "Rivyerskiy most", "latitude": 43.587795, "longitude": 39.716901, "road_distances": {"Morskoy vokzal": 1000}},
		{"type": "Stop", "name": "Morskoy vokzal", "latitude": 43.581969, "longitude": 39.719848, "road_distances": {"Rivyerskiy most": 1000}}
	]
}`

const processInput = `{
	"serialization_settings": {"file": "transport.db"},
	"stat_requests": [
		{"id": 1, "type": "Bus", "name": "114"},
		{"id": 2, "type": "Stop", "name": "Rivyerskiy most"},
		{"id": 3, "type": "Route", "from": "Morskoy vokzal", "to": "Rivyerskiy most"},
		{"id": 4, "type": "Route", "from": "Morskoy vokzal", "to": "Nowhere"}
	]
}`

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		BuildWorkers:             2,
		SnapshotBackend:          config.BackendFile,
		SnapshotDir:              t.TempDir(),
		SnapshotCompressionLevel: 6,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMakeBaseThenProcessRequests(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	require.NoError(t, makeBase(ctx, cfg, discardLogger(), strings.NewReader(makeBaseInput)))
	assert.FileExists(t, filepath.Join(cfg.SnapshotDir, "transport.db"))

	var out bytes.Buffer
	require.NoError(t, processRequests(ctx, cfg, discardLogger(), strings.NewReader(processInput), &out))

	// 1000 m at 500 m/min
	assert.JSONEq(t, `[
		{"request_id": 1, "stop_count": 3, "unique_stop_count": 2, "route_length": 2000, "curvature": `+curvatureOf(t, out.Bytes())+`},
		{"request_id": 2, "buses": ["114"]},
		{"request_id": 3, "total_time": 4, "items": [
			{"type": "Wait", "stop_name": "Morskoy vokzal", "time": 2},
			{"type": "Bus", "bus": "114", "span_count": 1, "time": 2}
		]},
		{"request_id": 4, "error_message": "not found"}
	]`, out.String())
}

// curvatureOf pulls the computed curvature out of the first answer so the
// comparison above does not depend on the last digits of the geo length.
func curvatureOf(t *testing.T, out []byte) string {
	t.Helper()
	const key = `"curvature":`
	i := bytes.Index(out, []byte(key))
	require.GreaterOrEqual(t, i, 0)
	rest := out[i+len(key):]
	j := bytes.IndexAny(rest, ",}")
	require.Greater(t, j, 0)
	return string(rest[:j])
}

func TestProcessRequests_MissingSnapshot(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	var out bytes.Buffer
	err := processRequests(ctx, cfg, discardLogger(), strings.NewReader(processInput), &out)
	assert.ErrorIs(t, err, snapshot.ErrNotFound)

	cfg.SnapshotTolerateMissing = true
	require.NoError(t, processRequests(ctx, cfg, discardLogger(), strings.NewReader(processInput), &out))
	assert.Contains(t, out.String(), `"error_message":"not found"`)
}

func TestMakeBase_Errors(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	err := makeBase(ctx, cfg, discardLogger(), strings.NewReader(`{"base_requests": []}`))
	assert.Error(t, err, "serialization file is required")

	err = makeBase(ctx, cfg, discardLogger(), strings.NewReader(`{
		"serialization_settings": {"file": "x.db"},
		"base_requests": [
			{"type": "Stop", "name": "A"},
			{"type": "Stop", "name": "B"},
			{"type": "Bus", "name": "1", "stops": ["A", "B"]}
		]
	}`))
	assert.Error(t, err, "bus without road distances cannot be routed")
}
