package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/ewfx/sradg-ai-innovators/internal/domain"
)

// Runner is the pipeline contract the transport layer depends on.
type Runner interface {
	Run(ctx context.Context, records []domain.TradeRecord) ([]domain.AnomalyRecord, error)
}

// Handlers holds the request handlers and their dependencies.
type Handlers struct {
	runner Runner
	conns  *ConnectionManager
}

func NewHandlers(runner Runner) *Handlers {
	return &Handlers{
		runner: runner,
		conns:  NewConnectionManager(),
	}
}

type anomalyResponse struct {
	Count     int                    `json:"count"`
	Anomalies []domain.AnomalyRecord `json:"anomalies"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// RealtimeAnomaly runs the pipeline over a single trade record.
func (h *Handlers) RealtimeAnomaly(w http.ResponseWriter, r *http.Request) {
	var record domain.TradeRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeError(w, http.StatusBadRequest, "invalid trade record payload")
		return
	}
	h.run(w, r, []domain.TradeRecord{record})
}

// BatchAnomaly runs the pipeline over an array of trade records.
func (h *Handlers) BatchAnomaly(w http.ResponseWriter, r *http.Request) {
	var records []domain.TradeRecord
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		writeError(w, http.StatusBadRequest, "invalid trade record array payload")
		return
	}
	h.run(w, r, records)
}

func (h *Handlers) run(w http.ResponseWriter, r *http.Request, records []domain.TradeRecord) {
	anomalies, err := h.runner.Run(r.Context(), records)
	if err != nil {
		log.Error().Err(err).Msg("pipeline run failed")
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, anomalyResponse{Count: len(anomalies), Anomalies: anomalies})
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NotFound is the fallback handler for unknown routes.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeError(w, http.StatusNotFound, "not found")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
