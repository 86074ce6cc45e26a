package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// History lists persisted snapshots, newest first.
type History interface {
	ListSnapshots(ctx context.Context, limit int) ([]Stats, error)
}

type Handler struct {
	aggregator *Aggregator
	history    History
	logger     *slog.Logger
}

// NewHandler serves aggregator stats. history may be nil.
func NewHandler(aggregator *Aggregator, history History) *Handler {
	return &Handler{
		aggregator: aggregator,
		history:    history,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Stats writes the live aggregates. With ?history=N and a configured
// History, the last N snapshots are included as well.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"current": h.aggregator.Stats()}
	if n, err := strconv.Atoi(r.URL.Query().Get("history")); err == nil && n > 0 && h.history != nil {
		if n > 100 {
			n = 100
		}
		snapshots, err := h.history.ListSnapshots(r.Context(), n)
		if err != nil {
			h.logger.Error("failed to list analytics snapshots", "error", err)
		} else {
			body["history"] = snapshots
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
