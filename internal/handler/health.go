package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"transitcat/internal/router"
)

type HealthHandler struct {
	router *router.Router
}

func NewHealthHandler(r *router.Router) *HealthHandler {
	return &HealthHandler{router: r}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready      bool      `json:"ready"`
	StopCount  int       `json:"stopCount"`
	BusCount   int       `json:"busCount"`
	ServerTime time.Time `json:"serverTime"`
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ready := h.router.IsInitialized()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	resp := ReadyResponse{Ready: ready, ServerTime: time.Now()}
	if ready {
		resp.StopCount = h.router.Catalogue().StopCount()
		resp.BusCount = h.router.Catalogue().BusCount()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
