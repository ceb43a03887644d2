package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/loupelabs/loupe/internal/engine"
	"github.com/loupelabs/loupe/pkg/types"
)

// ContextRequest is the POST /api/context body: the caller's view of what
// is currently open and which project it belongs to.
type ContextRequest struct {
	CurrentFiles []string             `json:"currentFiles"`
	Project      types.ProjectContext `json:"projectContext"`
}

// ContextResponse reports which lenses the new context activates.
type ContextResponse struct {
	ActiveLenses []string `json:"activeLenses"`
}

// ActionRequest is the POST /api/actions body. The timestamp is optional;
// a zero value is filled with the time of receipt.
type ActionRequest struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ContextHandlers contains the HTTP handlers for the engine's rolling
// activation context: pushing file/project snapshots and recording actions.
type ContextHandlers struct {
	engine *engine.ContextEngine
}

// NewContextHandlers creates context handlers over a started engine.
func NewContextHandlers(eng *engine.ContextEngine) *ContextHandlers {
	return &ContextHandlers{engine: eng}
}

// UpdateContext handles POST /api/context, replacing the current-files and
// project portions of the rolling context and returning the lenses the new
// snapshot activates.
func (h *ContextHandlers) UpdateContext(w http.ResponseWriter, r *http.Request) {
	var req ContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	active := h.engine.UpdateActiveContext(req.CurrentFiles, req.Project)
	if active == nil {
		active = []string{}
	}
	respondJSON(w, http.StatusOK, ContextResponse{ActiveLenses: active})
}

// RecordAction handles POST /api/actions, appending one action to the
// rolling context window.
func (h *ContextHandlers) RecordAction(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Type == "" {
		respondError(w, http.StatusBadRequest, "type is required", nil)
		return
	}

	h.engine.RecordAction(types.ActionEvent{
		Type:      types.ActionType(req.Type),
		Timestamp: req.Timestamp,
		Metadata:  req.Metadata,
	})

	active := h.engine.CurrentlyActiveLenses()
	if active == nil {
		active = []string{}
	}
	respondJSON(w, http.StatusOK, ContextResponse{ActiveLenses: active})
}
