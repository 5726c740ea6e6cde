package handler

import (
	"log/slog"
	"net/http"
)

// Routes wires the query surface. The WebSocket endpoint bypasses gzip.
func Routes(api *HTTPHandler, ws *WSHandler, health *HealthHandler, stats *StatsHandler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/buses/{name}", api.GetBus)
	mux.HandleFunc("GET /v1/stops/{name}", api.GetStop)
	mux.HandleFunc("GET /v1/route", api.GetRoute)
	mux.HandleFunc("POST /v1/requests", api.PostRequests)
	mux.HandleFunc("GET /v1/stats", stats.GetStats)

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz)

	root := http.NewServeMux()
	root.Handle("/v1/ws", ws)
	root.Handle("/", GzipMiddleware(mux))

	return RequestIDMiddleware(logger)(CORSMiddleware(root))
}
