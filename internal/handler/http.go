package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"transitcat/internal/domain"
	"transitcat/internal/requests"
	"transitcat/internal/routeinfo"
	"transitcat/internal/router"
)

const maxRequestBody = 1 << 20

type HTTPHandler struct {
	router   *router.Router
	requests *requests.Handler
	logger   *slog.Logger
}

func NewHTTPHandler(r *router.Router, reqs *requests.Handler, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{
		router:   r,
		requests: reqs,
		logger:   logger.With("handler", "http"),
	}
}

type BusResponse struct {
	Name string `json:"name"`
	domain.RouteInfo
}

type StopResponse struct {
	Name  string   `json:"name"`
	Buses []string `json:"buses"`
}

func (h *HTTPHandler) GetBus(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "missing bus name")
		return
	}

	info, err := routeinfo.Compute(h.router.Catalogue(), name)
	if errors.Is(err, routeinfo.ErrNotFound) {
		respondError(w, http.StatusNotFound, "bus not found")
		return
	}
	if err != nil {
		h.logger.Error("GetBus failed", "bus", name, "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, BusResponse{Name: name, RouteInfo: info})
}

func (h *HTTPHandler) GetStop(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "missing stop name")
		return
	}

	buses, ok := h.router.Catalogue().BusesThrough(name)
	if !ok {
		respondError(w, http.StatusNotFound, "stop not found")
		return
	}

	respondJSON(w, http.StatusOK, StopResponse{Name: name, Buses: buses})
}

func (h *HTTPHandler) GetRoute(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		respondError(w, http.StatusBadRequest, "from and to parameters are required")
		return
	}

	itinerary, err := h.router.Query(from, to)
	if errors.Is(err, router.ErrNotFound) {
		respondError(w, http.StatusNotFound, "route not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Debug("GetRoute response",
		"from", from,
		"to", to,
		"legs", len(itinerary.Legs),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	respondJSON(w, http.StatusOK, itinerary)
}

// PostRequests answers a JSON array of stat requests in one round trip.
func (h *HTTPHandler) PostRequests(w http.ResponseWriter, r *http.Request) {
	var reqs []requests.StatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&reqs); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, h.requests.AnswerAll(reqs))
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
