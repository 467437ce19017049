// Package httpapi serves RUT evaluation over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"rutkit/internal/telemetry"
	"rutkit/pkg/rut"
)

const maxBody = 4 << 10

// EvaluateRequest is the body of POST /v1/rut/evaluate.
type EvaluateRequest struct {
	Value string `json:"value"`
}

// EvaluateResponse carries the transform result and the display message.
type EvaluateResponse struct {
	Cleaned   string `json:"cleaned"`
	Formatted string `json:"formatted"`
	Valid     bool   `json:"valid"`
	Message   string `json:"message"`
}

func fromResult(r rut.Result) EvaluateResponse {
	return EvaluateResponse{
		Cleaned:   r.Cleaned,
		Formatted: r.Formatted,
		Valid:     r.Valid,
		Message:   r.Message(),
	}
}

// Handler wires the evaluation endpoints.
type Handler struct {
	logger *slog.Logger
}

// New constructs a handler. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger}
}

// Register mounts the endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/rut/evaluate", h.HandleEvaluate)
	r.Get("/v1/rut/{value}", h.HandleGet)
	r.Get("/healthz", h.HandleHealth)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())
}

// Router returns a ready to serve router with the endpoints mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	h.Register(r)
	return r
}

// HandleEvaluate handles POST /v1/rut/evaluate.
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(&req); err != nil {
		h.logger.WarnContext(r.Context(), "httpapi: bad request",
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	h.respond(w, r, req.Value)
}

// HandleGet handles GET /v1/rut/{value}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, chi.URLParam(r, "value"))
}

// HandleHealth handles GET /healthz.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, value string) {
	res := rut.Evaluate(value)
	telemetry.ObserveEvaluation(res)
	h.logger.DebugContext(r.Context(), "httpapi: evaluated",
		"request_id", middleware.GetReqID(r.Context()),
		"outcome", telemetry.Outcome(res),
	)
	writeJSON(w, http.StatusOK, fromResult(res))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
