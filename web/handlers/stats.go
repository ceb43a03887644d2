package handlers

import (
	"net/http"

	"github.com/loupelabs/loupe/internal/engine"
	"github.com/loupelabs/loupe/internal/storage"
)

// StatsResponse is the GET /api/stats body: the shape of the stored graph
// plus the current lens lineup.
type StatsResponse struct {
	Graph            *storage.GraphStats `json:"graph"`
	RegisteredLenses int                 `json:"registeredLenses"`
	ActiveLenses     []string            `json:"activeLenses"`
	Adapters         []string            `json:"adapters"`
}

// StatsHandler handles statistics endpoint requests.
type StatsHandler struct {
	engine *engine.ContextEngine
}

// NewStatsHandler creates a new StatsHandler instance.
func NewStatsHandler(eng *engine.ContextEngine) *StatsHandler {
	return &StatsHandler{engine: eng}
}

// GetStats handles GET /api/stats.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load graph stats", err)
		return
	}

	active := h.engine.CurrentlyActiveLenses()
	if active == nil {
		active = []string{}
	}

	adapters := make([]string, 0)
	for _, a := range h.engine.Adapters().Adapters() {
		adapters = append(adapters, a.Name())
	}

	respondJSON(w, http.StatusOK, StatsResponse{
		Graph:            stats,
		RegisteredLenses: len(h.engine.Lenses().RegisteredLenses()),
		ActiveLenses:     active,
		Adapters:         adapters,
	})
}
