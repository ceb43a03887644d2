package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/loupelabs/loupe/internal/engine"
	"github.com/loupelabs/loupe/pkg/types"
)

// LensSummary is one lens in the GET /api/lenses listing.
type LensSummary struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Priority          int    `json:"priority"`
	EffectivePriority int    `json:"effectivePriority"`
	Enabled           bool   `json:"enabled"`
	Active            bool   `json:"active"`
}

// LensListResponse is the GET /api/lenses body.
type LensListResponse struct {
	Lenses         []LensSummary `json:"lenses"`
	ActiveIDs      []string      `json:"activeIds"`
	ManualOverride string        `json:"manualOverride,omitempty"`
}

// OverrideRequest is the POST /api/lenses/override body.
type OverrideRequest struct {
	LensID string `json:"lensId"`
}

// OverrideResponse reports the manual override state after a change.
type OverrideResponse struct {
	ManualOverride string `json:"manualOverride,omitempty"`
	Registered     bool   `json:"registered"`
}

// AutoResolveRequest is the POST /api/lenses/auto-resolve body.
type AutoResolveRequest struct {
	Enabled bool `json:"enabled"`
}

// ConflictsResponse is the GET /api/conflicts body.
type ConflictsResponse struct {
	Conflicts []types.Conflict `json:"conflicts"`
	Total     int              `json:"total"`
}

// LensHandlers contains the HTTP handlers for lens management: listing,
// configuration, manual override, and conflict detection.
type LensHandlers struct {
	engine *engine.ContextEngine
}

// NewLensHandlers creates lens handlers over a started engine.
func NewLensHandlers(eng *engine.ContextEngine) *LensHandlers {
	return &LensHandlers{engine: eng}
}

// ListLenses handles GET /api/lenses.
func (h *LensHandlers) ListLenses(w http.ResponseWriter, r *http.Request) {
	reg := h.engine.Lenses()

	activeIDs := h.engine.CurrentlyActiveLenses()
	activeSet := make(map[string]bool, len(activeIDs))
	for _, id := range activeIDs {
		activeSet[id] = true
	}

	registered := reg.RegisteredLenses()
	summaries := make([]LensSummary, 0, len(registered))
	for _, l := range registered {
		effective := l.Priority()
		if p, ok := reg.EffectivePriority(l.ID()); ok {
			effective = p
		}
		summaries = append(summaries, LensSummary{
			ID:                l.ID(),
			Name:              l.Name(),
			Priority:          l.Priority(),
			EffectivePriority: effective,
			Enabled:           l.Config().Enabled,
			Active:            activeSet[l.ID()],
		})
	}

	if activeIDs == nil {
		activeIDs = []string{}
	}

	respondJSON(w, http.StatusOK, LensListResponse{
		Lenses:         summaries,
		ActiveIDs:      activeIDs,
		ManualOverride: reg.ManualOverride(),
	})
}

// GetLensConfig handles GET /api/lenses/{id}.
func (h *LensHandlers) GetLensConfig(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	l, ok := h.engine.Lenses().GetLens(id)
	if !ok {
		respondError(w, http.StatusNotFound, "lens not found", nil)
		return
	}
	respondJSON(w, http.StatusOK, l.Config())
}

// ConfigureLens handles PUT /api/lenses/{id}. The body is a full LensConfig;
// invalid configurations are rejected with 400 and the lens keeps its
// previous configuration.
func (h *LensHandlers) ConfigureLens(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.engine.Lenses().IsRegistered(id) {
		respondError(w, http.StatusNotFound, "lens not found", nil)
		return
	}

	var cfg types.LensConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := h.engine.Lenses().Configure(id, cfg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid lens config", err)
		return
	}

	l, _ := h.engine.Lenses().GetLens(id)
	respondJSON(w, http.StatusOK, l.Config())
}

// GetOverride handles GET /api/lenses/override.
func (h *LensHandlers) GetOverride(w http.ResponseWriter, r *http.Request) {
	reg := h.engine.Lenses()
	override := reg.ManualOverride()
	respondJSON(w, http.StatusOK, OverrideResponse{
		ManualOverride: override,
		Registered:     override != "" && reg.IsRegistered(override),
	})
}

// SetOverride handles POST /api/lenses/override. The named lens does not
// have to be registered: an unknown id pins activation to an empty set
// rather than failing.
func (h *LensHandlers) SetOverride(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.LensID == "" {
		respondError(w, http.StatusBadRequest, "lensId is required", nil)
		return
	}

	reg := h.engine.Lenses()
	reg.SetManualOverride(req.LensID)

	respondJSON(w, http.StatusOK, OverrideResponse{
		ManualOverride: req.LensID,
		Registered:     reg.IsRegistered(req.LensID),
	})
}

// ClearOverride handles DELETE /api/lenses/override.
func (h *LensHandlers) ClearOverride(w http.ResponseWriter, r *http.Request) {
	h.engine.Lenses().ClearManualOverride()
	respondJSON(w, http.StatusOK, OverrideResponse{})
}

// SetAutoResolve handles POST /api/lenses/auto-resolve, toggling
// deterministic priority perturbation for tied lenses.
func (h *LensHandlers) SetAutoResolve(w http.ResponseWriter, r *http.Request) {
	var req AutoResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	h.engine.Lenses().SetAutoResolveConflicts(req.Enabled)
	respondJSON(w, http.StatusOK, map[string]bool{"autoResolve": req.Enabled})
}

// GetConflicts handles GET /api/conflicts.
func (h *LensHandlers) GetConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts := h.engine.Lenses().DetectConflicts()
	if conflicts == nil {
		conflicts = []types.Conflict{}
	}
	respondJSON(w, http.StatusOK, ConflictsResponse{
		Conflicts: conflicts,
		Total:     len(conflicts),
	})
}
