// Package handlers contains the HTTP API handlers.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/anveshkr/stockscout/internal/research"
	"github.com/anveshkr/stockscout/pkg/logger"
)

// ReportHandler handles report generation endpoints.
type ReportHandler struct {
	service *research.Service
	logger  *logger.Logger
}

// NewReportHandler creates a new report handler.
func NewReportHandler(svc *research.Service, log *logger.Logger) *ReportHandler {
	return &ReportHandler{
		service: svc,
		logger:  log,
	}
}

// reportRequest is the POST /api/reports body.
type reportRequest struct {
	Symbol       string `json:"symbol"`
	ForceRefresh bool   `json:"force_refresh,omitempty"`
	TimeoutSecs  int    `json:"timeout_secs,omitempty"`
}

// CreateReport runs the research pipeline for a symbol.
// POST /api/reports
func (h *ReportHandler) CreateReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	report, err := h.service.Run(r.Context(), research.RunRequest{
		Symbol:       req.Symbol,
		ForceRefresh: req.ForceRefresh,
		Timeout:      time.Duration(req.TimeoutSecs) * time.Second,
	})
	if err != nil {
		h.logger.WithError(err).WithField("symbol", req.Symbol).Warn("Report request rejected")
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    report,
	})
}

// ListStages returns the configured pipeline stages.
// GET /api/stages
func (h *ReportHandler) ListStages(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"stages": h.service.Stages(),
		},
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
