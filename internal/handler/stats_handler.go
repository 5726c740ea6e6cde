package handler

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"transitcat/internal/middleware"
	"transitcat/internal/router"
	"transitcat/internal/store"
)

// Stats tracks server-wide metrics
type Stats struct {
	startTime     time.Time
	requestCount  atomic.Int64
	wsConnections atomic.Int64
	wsMessagesIn  atomic.Int64
	wsMessagesOut atomic.Int64
}

// Global stats instance
var ServerStats = &Stats{
	startTime: time.Now(),
}

func (s *Stats) IncRequests()      { s.requestCount.Add(1) }
func (s *Stats) IncWSConnections() { s.wsConnections.Add(1) }
func (s *Stats) DecWSConnections() { s.wsConnections.Add(-1) }
func (s *Stats) IncWSMessagesIn()  { s.wsMessagesIn.Add(1) }
func (s *Stats) IncWSMessagesOut() { s.wsMessagesOut.Add(1) }

type StatsHandler struct {
	router  *router.Router
	limiter *middleware.RateLimiter
}

func NewStatsHandler(r *router.Router) *StatsHandler {
	return &StatsHandler{router: r}
}

// WithRateLimiter adds the limiter's counters to the stats response.
func (h *StatsHandler) WithRateLimiter(rl *middleware.RateLimiter) *StatsHandler {
	h.limiter = rl
	return h
}

type StatsResponse struct {
	Server    ServerStatsResponse      `json:"server"`
	Catalogue store.CatalogueStats     `json:"catalogue"`
	Graph     router.Stats             `json:"graph"`
	WebSocket WebSocketStatsResponse   `json:"websocket"`
	Go        GoStatsResponse          `json:"go"`
	RateLimit *middleware.LimiterStats `json:"rate_limit,omitempty"`
}

type ServerStatsResponse struct {
	Uptime        string    `json:"uptime"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	StartTime     time.Time `json:"start_time"`
	RequestCount  int64     `json:"request_count"`
}

type WebSocketStatsResponse struct {
	Connections int64 `json:"connections"`
	MessagesIn  int64 `json:"messages_in"`
	MessagesOut int64 `json:"messages_out"`
}

type GoStatsResponse struct {
	Goroutines  int     `json:"goroutines"`
	HeapAlloc   uint64  `json:"heap_alloc_bytes"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
	GoVersion   string  `json:"go_version"`
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(ServerStats.startTime)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	response := StatsResponse{
		Server: ServerStatsResponse{
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			StartTime:     ServerStats.startTime,
			RequestCount:  ServerStats.requestCount.Load(),
		},
		Graph: h.router.Stats(),
		WebSocket: WebSocketStatsResponse{
			Connections: ServerStats.wsConnections.Load(),
			MessagesIn:  ServerStats.wsMessagesIn.Load(),
			MessagesOut: ServerStats.wsMessagesOut.Load(),
		},
		Go: GoStatsResponse{
			Goroutines:  runtime.NumGoroutine(),
			HeapAlloc:   mem.HeapAlloc,
			HeapAllocMB: float64(mem.HeapAlloc) / 1024 / 1024,
			NumGC:       mem.NumGC,
			GoVersion:   runtime.Version(),
		},
	}
	if h.router.IsInitialized() {
		response.Catalogue = h.router.Catalogue().Stats()
	}
	if h.limiter != nil {
		rl := h.limiter.Stats()
		response.RateLimit = &rl
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	json.NewEncoder(w).Encode(response)
}
