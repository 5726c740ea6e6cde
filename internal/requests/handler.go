package requests

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"transitcat/internal/domain"
	"transitcat/internal/routeinfo"
	"transitcat/internal/router"
)

const (
	msgNotFound     = "not found"
	msgNotSupported = "not supported"
)

// StopInfo lists the buses through a stop. Buses is never null.
type StopInfo struct {
	Buses []string `json:"buses"`
}

// Answer is the response to one stat request. Exactly one of the embedded
// payloads or ErrorMessage is set.
type Answer struct {
	RequestID int `json:"request_id"`
	*domain.RouteInfo
	*StopInfo
	*domain.Itinerary
	ErrorMessage string `json:"error_message,omitempty"`
}

type Handler struct {
	router   *router.Router
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler answers requests against r, which must be initialized.
func NewHandler(r *router.Router, v *validator.Validate, logger *slog.Logger) *Handler {
	return &Handler{
		router:   r,
		validate: v,
		logger:   logger.With("component", "requests"),
	}
}

func (h *Handler) Answer(req StatRequest) Answer {
	ans := Answer{RequestID: req.ID}
	if err := h.validate.Struct(&req); err != nil {
		ans.ErrorMessage = invalidMessage(err)
		return ans
	}

	switch req.Type {
	case TypeBus:
		info, err := routeinfo.Compute(h.router.Catalogue(), req.Name)
		if err != nil {
			ans.ErrorMessage = h.errorMessage(req, err, routeinfo.ErrNotFound)
			return ans
		}
		ans.RouteInfo = &info

	case TypeStop:
		buses, ok := h.router.Catalogue().BusesThrough(req.Name)
		if !ok {
			ans.ErrorMessage = msgNotFound
			return ans
		}
		ans.StopInfo = &StopInfo{Buses: buses}

	case TypeRoute:
		itinerary, err := h.router.Query(req.From, req.To)
		if err != nil {
			ans.ErrorMessage = h.errorMessage(req, err, router.ErrNotFound)
			return ans
		}
		ans.Itinerary = &itinerary

	case TypeMap:
		ans.ErrorMessage = msgNotSupported
	}
	return ans
}

// AnswerAll answers reqs in order.
func (h *Handler) AnswerAll(reqs []StatRequest) []Answer {
	answers := make([]Answer, 0, len(reqs))
	for _, req := range reqs {
		answers = append(answers, h.Answer(req))
	}
	return answers
}

func (h *Handler) errorMessage(req StatRequest, err, notFound error) string {
	if errors.Is(err, notFound) {
		return msgNotFound
	}
	h.logger.Error("request failed", "request_id", req.ID, "type", req.Type, "error", err)
	return err.Error()
}

func invalidMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return "invalid request: " + err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return "invalid request: " + strings.Join(parts, ", ")
}
