// Package mcp implements the Model Context Protocol (MCP) server for Loupe.
// It provides JSON-RPC 2.0 based tools for extracting files into the
// knowledge graph, querying it through the lens pipeline, and steering lens
// activation.
package mcp

import (
	"encoding/json"
	"strings"

	"github.com/loupelabs/loupe/internal/discovery"
	"github.com/loupelabs/loupe/pkg/types"
)

// ExtractContentArgs contains arguments for the extract_content tool.
type ExtractContentArgs struct {
	Content string `json:"content,omitempty"` // Inline content; when empty the file at path is read from disk
	Path    string `json:"path,omitempty"`    // File path used for adapter routing and source identity
}

// ExtractContentResult reports what an extraction pass produced.
type ExtractContentResult struct {
	Source        string `json:"source"`        // Source key the entities were stored under
	Adapter       string `json:"adapter"`       // Adapter that handled the content
	Entities      int    `json:"entities"`      // Entities extracted and stored
	Relationships int    `json:"relationships"` // Cross-entity relationships detected
	Replaced      int    `json:"replaced"`      // Entities from a prior extraction that were replaced
	DurationMs    int64  `json:"duration_ms"`   // Wall time of the extraction pass
}

// AnalyzeFileArgs contains arguments for the analyze_file tool.
type AnalyzeFileArgs struct {
	Path string `json:"path"` // File to analyze (required)
}

// ScanProjectArgs contains arguments for the scan_project tool.
type ScanProjectArgs struct {
	Root         string   `json:"root"`                    // Project root to walk (required)
	Workers      int      `json:"workers,omitempty"`       // Concurrent extraction workers (default from config)
	Extensions   []string `json:"extensions,omitempty"`    // Override the eligible file extensions
	IncludeFiles bool     `json:"include_files,omitempty"` // Include the per-file breakdown in the result
}

// ScanProjectResult summarizes a completed scan. The per-file breakdown is
// included only when requested; large repositories produce thousands of
// entries.
type ScanProjectResult struct {
	Root          string                 `json:"root"`
	FilesScanned  int                    `json:"files_scanned"`
	FilesFailed   int                    `json:"files_failed"`
	Entities      int                    `json:"entities"`
	Relationships int                    `json:"relationships"`
	DurationMs    int64                  `json:"duration_ms"`
	Files         []discovery.FileReport `json:"files,omitempty"`
}

// QueryGraphArgs contains arguments for the query_graph tool.
type QueryGraphArgs struct {
	// Query is the structured graph query: conditions, ordering, depth,
	// pagination, performance hints.
	Query types.Query `json:"query"`

	// Activation is the situational context used to resolve active lenses.
	// Omit it to use the engine's rolling context (current files and
	// recent actions recorded by the watcher and update calls).
	Activation *types.ActivationContext `json:"activation,omitempty"`
}

// TraverseGraphArgs contains arguments for the traverse_graph tool.
type TraverseGraphArgs struct {
	NodeID    string   `json:"node_id"`              // Start entity (required)
	MaxDepth  int      `json:"max_depth,omitempty"`  // Hops from the start (default 2)
	Direction string   `json:"direction,omitempty"`  // outgoing, incoming, or both (default outgoing)
	EdgeKinds []string `json:"edge_kinds,omitempty"` // Relationship kinds to follow (default all)
}

// UnmarshalJSON handles the case where some MCP clients send array fields
// like "edge_kinds" as a JSON-encoded string ("[\"calls\"]") or a
// comma-separated list rather than a proper JSON array. All forms are
// accepted.
func (a *TraverseGraphArgs) UnmarshalJSON(data []byte) error {
	type Alias TraverseGraphArgs
	aux := &struct {
		EdgeKinds json.RawMessage `json:"edge_kinds,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if aux.EdgeKinds == nil {
		return nil
	}
	// Try direct array unmarshal first.
	var kinds []string
	if err := json.Unmarshal(aux.EdgeKinds, &kinds); err == nil {
		a.EdgeKinds = kinds
		return nil
	}
	// Fall back: client sent the array as a JSON-encoded string.
	var s string
	if err := json.Unmarshal(aux.EdgeKinds, &s); err != nil {
		return nil // ignore unrecognised formats rather than failing
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		_ = json.Unmarshal([]byte(s), &kinds)
		a.EdgeKinds = kinds
	} else if s != "" {
		// Comma-separated fallback.
		for _, k := range strings.Split(s, ",") {
			if k = strings.TrimSpace(k); k != "" {
				a.EdgeKinds = append(a.EdgeKinds, k)
			}
		}
	}
	return nil
}

// FindConnectedArgs contains arguments for the find_connected tool.
type FindConnectedArgs struct {
	NodeID string `json:"node_id"`         // Start entity (required)
	Depth  int    `json:"depth,omitempty"` // Search radius in hops (default 2)
}

// FindConnectedResult lists entities reachable from a start node.
type FindConnectedResult struct {
	NodeID    string   `json:"node_id"`   // The start entity
	Connected []string `json:"connected"` // Reachable entity ids, start excluded
	Total     int      `json:"total"`     // len(Connected)
}

// LensSummary describes one registered lens.
type LensSummary struct {
	ID                string `json:"id"`                 // Stable lens id
	Name              string `json:"name"`               // Human-readable name
	Priority          int    `json:"priority"`           // Declared priority
	EffectivePriority int    `json:"effective_priority"` // Priority after conflict auto-resolution
	Enabled           bool   `json:"enabled"`            // Whether the lens may activate at all
	Active            bool   `json:"active"`             // Whether the lens is active for the current context
}

// ListLensesResult contains the result of the list_lenses tool.
type ListLensesResult struct {
	Lenses         []LensSummary `json:"lenses"`                    // All registered lenses
	ActiveIDs      []string      `json:"active_ids"`                // Lenses active for the current rolling context
	ManualOverride string        `json:"manual_override,omitempty"` // Set when activation heuristics are bypassed
}

// ConfigureLensArgs contains arguments for the configure_lens tool.
type ConfigureLensArgs struct {
	LensID string           `json:"lens_id"` // Lens to configure (required)
	Config types.LensConfig `json:"config"`  // Full replacement configuration
}

// ConfigureLensResult contains the result of configuring a lens.
type ConfigureLensResult struct {
	LensID  string `json:"lens_id"`
	Message string `json:"message"`
}

// SetLensOverrideArgs contains arguments for the set_lens_override tool.
type SetLensOverrideArgs struct {
	LensID string `json:"lens_id"` // Only this lens may activate (required)
}

// LensOverrideResult reports the manual override state after a change.
type LensOverrideResult struct {
	ManualOverride string `json:"manual_override,omitempty"`
	Message        string `json:"message"`
}

// DetectConflictsResult contains the result of lens conflict detection.
type DetectConflictsResult struct {
	Conflicts []types.Conflict `json:"conflicts"` // Detected conflicts with resolutions
	Total     int              `json:"total"`     // Number of conflicts
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"` // Must be "2.0"
	Method  string      `json:"method"`  // Method name
	Params  interface{} `json:"params"`  // Method parameters
	ID      interface{} `json:"id"`      // Request ID (string, number, or null)
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`          // Must be "2.0"
	Result  interface{}   `json:"result,omitempty"` // Result (if successful)
	Error   *JSONRPCError `json:"error,omitempty"`  // Error (if failed)
	ID      interface{}   `json:"id"`               // Request ID
}

// JSONRPCError represents a JSON-RPC 2.0 error.
type JSONRPCError struct {
	Code    int         `json:"code"`           // Error code
	Message string      `json:"message"`        // Error message
	Data    interface{} `json:"data,omitempty"` // Additional error data
}

// JSON-RPC error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrCodeServerError    = -32000 // Server error
)

// ---------------------------------------------------------------------------
// Standard MCP protocol types (initialize / tools/list / tools/call)
// ---------------------------------------------------------------------------

// MCPInitializeParams holds the parameters sent by an MCP client in the
// initialize request.
type MCPInitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities,omitempty"`
	ClientInfo      MCPClientInfo          `json:"clientInfo"`
}

// MCPClientInfo identifies the connecting MCP client.
type MCPClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerInfo identifies this MCP server.
type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerCapabilities describes what this server supports.
type MCPServerCapabilities struct {
	Tools *MCPToolsCapability `json:"tools,omitempty"`
}

// MCPToolsCapability signals that the server exposes tools.
type MCPToolsCapability struct{}

// MCPInitializeResult is the response to the initialize request.
type MCPInitializeResult struct {
	ProtocolVersion string                `json:"protocolVersion"`
	Capabilities    MCPServerCapabilities `json:"capabilities"`
	ServerInfo      MCPServerInfo         `json:"serverInfo"`
}

// MCPTool describes a single tool exposed via the MCP tools/list endpoint.
type MCPTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// MCPToolsListResult is the response to the tools/list request.
type MCPToolsListResult struct {
	Tools []MCPTool `json:"tools"`
}

// MCPToolCallParams holds the parameters sent in a tools/call request.
type MCPToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// MCPToolCallContent is a single content block in a tool call response.
type MCPToolCallContent struct {
	Type string `json:"type"` // always "text" for now
	Text string `json:"text"`
}

// MCPToolCallResult is the response to a tools/call request.
type MCPToolCallResult struct {
	Content []MCPToolCallContent `json:"content"`
	IsError bool                 `json:"isError,omitempty"`
}
