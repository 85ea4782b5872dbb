package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"patscan/internal/middleware"
)

type CheckpointStats interface {
	ScannedCount() int
	PendingCounts() (balancer int, gptLoad int)
}

type FindingCounter interface {
	CountByOutcome(ctx context.Context) (map[string]int, error)
}

type Handler struct {
	checkpoint CheckpointStats
	findings   FindingCounter
}

// NewHandler takes a nil findings counter when no database is configured.
func NewHandler(c CheckpointStats, f FindingCounter) *Handler {
	return &Handler{checkpoint: c, findings: f}
}

type StatsResponse struct {
	ScannedSHAs     int            `json:"scanned_shas"`
	PendingBalancer int            `json:"pending_balancer"`
	PendingGPTLoad  int            `json:"pending_gpt_load"`
	Outcomes        map[string]int `json:"outcomes,omitempty"`
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	balancer, gptLoad := h.checkpoint.PendingCounts()
	resp := StatsResponse{
		ScannedSHAs:     h.checkpoint.ScannedCount(),
		PendingBalancer: balancer,
		PendingGPTLoad:  gptLoad,
	}

	if h.findings != nil {
		outcomes, err := h.findings.CountByOutcome(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to count findings", "error", err, "correlationId", correlationID)
			h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count findings", http.StatusInternalServerError)
			return
		}
		resp.Outcomes = outcomes
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
