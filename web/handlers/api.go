// Package handlers provides the HTTP handlers and middleware for the Loupe
// web API: extraction, graph queries and traversal, lens management, and the
// WebSocket event feed.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/loupelabs/loupe/internal/config"
	"github.com/loupelabs/loupe/internal/engine"
	"github.com/loupelabs/loupe/internal/storage"
	"github.com/loupelabs/loupe/pkg/types"
)

// ErrorResponse is the JSON shape of every handler error.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ExtractRequest is the POST /api/extract body. With both content and path,
// the path drives adapter routing and source identity; with only a path,
// the file is read from disk.
type ExtractRequest struct {
	Content string `json:"content"`
	Path    string `json:"path"`
}

// ExtractResponse reports what an extraction pass produced.
type ExtractResponse struct {
	Source        string `json:"source"`
	Adapter       string `json:"adapter"`
	Entities      int    `json:"entities"`
	Relationships int    `json:"relationships"`
	Replaced      int    `json:"replaced"`
	DurationMs    int64  `json:"duration_ms"`
}

// QueryRequest is the POST /api/query body. A nil activation leaves lens
// selection to the engine's rolling context.
type QueryRequest struct {
	Query      types.Query              `json:"query"`
	Activation *types.ActivationContext `json:"activation,omitempty"`
}

// GraphHandlers contains the HTTP handlers for the graph REST API.
type GraphHandlers struct {
	engine *engine.ContextEngine
	config *config.Config
}

// NewGraphHandlers creates handlers over a started engine.
func NewGraphHandlers(eng *engine.ContextEngine, cfg *config.Config) *GraphHandlers {
	return &GraphHandlers{
		engine: eng,
		config: cfg,
	}
}

// Extract handles POST /api/extract.
func (h *GraphHandlers) Extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Content == "" && req.Path == "" {
		respondError(w, http.StatusBadRequest, "content or path is required", nil)
		return
	}

	var summary *engine.ExtractionSummary
	var err error
	if req.Content == "" {
		summary, err = h.engine.ExtractFile(r.Context(), req.Path)
	} else {
		var meta types.FileMetadata
		if req.Path != "" {
			meta = types.FileMetadataFor(req.Path, int64(len(req.Content)))
		}
		summary, err = h.engine.ExtractContent(r.Context(), req.Content, meta)
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "extraction failed", err)
		return
	}

	respondJSON(w, http.StatusOK, ExtractResponse{
		Source:        summary.Source,
		Adapter:       summary.Adapter,
		Entities:      summary.Entities,
		Relationships: summary.Relationships,
		Replaced:      summary.Replaced,
		DurationMs:    summary.Duration.Milliseconds(),
	})
}

// Query handles POST /api/query.
func (h *GraphHandlers) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	resp, err := h.engine.Query(r.Context(), req.Query, req.Activation)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "query failed", err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// GetEntity handles GET /api/entities/{id}.
func (h *GraphHandlers) GetEntity(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "entity id is required", nil)
		return
	}

	entity, err := h.engine.GetEntity(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, fmt.Sprintf("entity %s not found", id), nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load entity", err)
		return
	}

	respondJSON(w, http.StatusOK, entity)
}

// Traverse handles GET /api/traverse. Query parameters: node_id (required),
// max_depth, direction (outgoing, incoming, both), edge_kinds (comma list).
func (h *GraphHandlers) Traverse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	nodeID := q.Get("node_id")
	if nodeID == "" {
		respondError(w, http.StatusBadRequest, "node_id is required", nil)
		return
	}

	direction, err := parseTraversalDirection(q.Get("direction"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	maxDepth := parseInt(q.Get("max_depth"), 2)

	var kinds []types.RelationshipKind
	if raw := q.Get("edge_kinds"); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				kinds = append(kinds, types.RelationshipKind(k))
			}
		}
	}

	result, err := h.engine.Expand(r.Context(), nodeID, engine.ExpandOptions{
		MaxDepth:  maxDepth,
		Direction: direction,
		EdgeKinds: kinds,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "traversal failed", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Connected handles GET /api/connected. Query parameters: node_id
// (required), depth. Returns the ids reachable from the node in either
// edge direction, the node itself excluded.
func (h *GraphHandlers) Connected(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	nodeID := q.Get("node_id")
	if nodeID == "" {
		respondError(w, http.StatusBadRequest, "node_id is required", nil)
		return
	}

	ids, err := h.engine.FindConnected(r.Context(), nodeID, parseInt(q.Get("depth"), 1))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "traversal failed", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"nodeId":    nodeID,
		"connected": ids,
		"total":     len(ids),
	})
}

// parseTraversalDirection maps the direction query parameter to a typed
// direction, defaulting to outgoing.
func parseTraversalDirection(s string) (types.Direction, error) {
	switch strings.ToLower(s) {
	case "", "outgoing":
		return types.DirectionOutgoing, nil
	case "incoming":
		return types.DirectionIncoming, nil
	case "both":
		return types.DirectionBoth, nil
	default:
		return "", fmt.Errorf("invalid direction: %s (use outgoing, incoming, or both)", s)
	}
}

// parseInt parses an integer, returning defaultValue on empty or malformed
// input.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent; nothing left to do but note it.
		fmt.Printf("failed to encode JSON response: %v\n", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}

	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}

	respondJSON(w, statusCode, errResp)
}
