package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/sherox/internal/config"
	"github.com/gyaneshwarpardhi/sherox/internal/connectivity"
	"github.com/gyaneshwarpardhi/sherox/internal/engine"
	"github.com/gyaneshwarpardhi/sherox/internal/event"
	"github.com/gyaneshwarpardhi/sherox/internal/metrics"
	"github.com/gyaneshwarpardhi/sherox/internal/outbox"
)

const maxBatchSize = 100

// Handler holds all HTTP handler dependencies.
type Handler struct {
	eng    *engine.Engine
	outbox *outbox.Outbox
	conn   connectivity.Provider
	loader *config.Loader
	logger *slog.Logger
	mux    *http.ServeMux
}

// Deps wires the handler to the running service. Loader may be nil, which
// disables the reload endpoint.
type Deps struct {
	Engine       *engine.Engine
	Outbox       *outbox.Outbox
	Connectivity connectivity.Provider
	Loader       *config.Loader
	Logger       *slog.Logger
}

// New creates an HTTP handler and registers all routes.
func New(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		eng:    d.Engine,
		outbox: d.Outbox,
		conn:   d.Connectivity,
		loader: d.Loader,
		logger: logger,
		mux:    http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /v1/emergencies", h.trigger)
	h.mux.HandleFunc("POST /v1/emergencies/batch", h.triggerBatch)
	h.mux.HandleFunc("GET /v1/emergencies/pending", h.listPending)
	h.mux.HandleFunc("POST /v1/drain", h.drain)
	h.mux.HandleFunc("GET /v1/connectivity", h.getConnectivity)
	h.mux.HandleFunc("PUT /v1/connectivity", h.putConnectivity)
	h.mux.HandleFunc("POST /v1/config/reload", h.reloadConfig)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(logger, h.mux)
}

type triggerRequest struct {
	Source      string `json:"source"`
	PlateNumber string `json:"plateNumber"`
}

func (req triggerRequest) input() (engine.Input, error) {
	if req.Source == "" {
		return engine.Input{Source: event.SourceManual, PlateNumber: req.PlateNumber}, nil
	}
	src, err := event.ParseSource(req.Source)
	if err != nil {
		return engine.Input{}, err
	}
	return engine.Input{Source: src, PlateNumber: req.PlateNumber}, nil
}

// POST /v1/emergencies — synchronous trigger.
func (h *Handler) trigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out := h.eng.Trigger(r.Context(), in)
	status := http.StatusOK
	switch out.Status {
	case engine.StatusBuffered:
		status = http.StatusAccepted
	case engine.StatusLost:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, out)
}

// POST /v1/emergencies/batch — async triggers (up to 100).
func (h *Handler) triggerBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(reqs) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one trigger")
		return
	}
	if len(reqs) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(reqs), maxBatchSize))
		return
	}
	inputs := make([]engine.Input, len(reqs))
	for i, req := range reqs {
		in, err := req.input()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("trigger %d: %s", i, err))
			return
		}
		inputs[i] = in
	}

	queued := 0
	for _, in := range inputs {
		if h.eng.TriggerAsync(in) {
			queued++
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":   uuid.New().String(),
		"total":    len(inputs),
		"queued":   queued,
		"rejected": len(inputs) - queued,
	})
}

// GET /v1/emergencies/pending — buffered events awaiting delivery.
func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	recs, err := h.outbox.Records(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(recs),
		"events": recs,
	})
}

// POST /v1/drain — run a drain now.
func (h *Handler) drain(w http.ResponseWriter, r *http.Request) {
	rep, err := h.eng.Drain(r.Context())
	if errors.Is(err, engine.ErrDrainInFlight) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"error":  err.Error(),
			"report": rep,
		})
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type connectivityState struct {
	Online bool   `json:"online"`
	Mode   string `json:"mode"`
}

func (h *Handler) mode() string {
	if _, ok := h.conn.(*connectivity.Manual); ok {
		return "manual"
	}
	return "probe"
}

// GET /v1/connectivity
func (h *Handler) getConnectivity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, connectivityState{Online: h.conn.Online(), Mode: h.mode()})
}

// PUT /v1/connectivity — the device reports its own network state.
func (h *Handler) putConnectivity(w http.ResponseWriter, r *http.Request) {
	m, ok := h.conn.(*connectivity.Manual)
	if !ok {
		writeError(w, http.StatusConflict, "connectivity is probed; manual updates are disabled")
		return
	}
	var body struct {
		Online *bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if body.Online == nil {
		writeError(w, http.StatusBadRequest, "online is required")
		return
	}
	changed := m.Set(*body.Online)
	if changed {
		h.logger.Info("connectivity reported", "online", *body.Online)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"online":  *body.Online,
		"mode":    "manual",
		"changed": changed,
	})
}

// POST /v1/config/reload — re-read the config file. Registered OnChange
// callbacks apply it to the engine; an invalid file is rejected with 422.
func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		writeError(w, http.StatusNotImplemented, "config reload not available")
		return
	}
	cfg, err := h.loader.Reload()
	if errors.Is(err, config.ErrInvalidConfig) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded": true,
		"version":  cfg.Version,
		"routes":   cfg.Routes,
	})
}

// GET /healthz — always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz — 503 if the trigger queue is >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.eng.QueueUtilization()
	metrics.QueueUtilization.Set(util)
	body := map[string]interface{}{
		"queue_utilization": util,
		"online":            h.conn.Online(),
		"draining":          h.eng.Draining(),
	}
	if util > 0.8 {
		body["status"] = "overloaded"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "ready"
	writeJSON(w, http.StatusOK, body)
}
