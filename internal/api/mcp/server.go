package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/loupelabs/loupe/internal/config"
	"github.com/loupelabs/loupe/internal/discovery"
	"github.com/loupelabs/loupe/internal/engine"
	"github.com/loupelabs/loupe/internal/graph"
	"github.com/loupelabs/loupe/internal/source"
	"github.com/loupelabs/loupe/internal/storage"
	"github.com/loupelabs/loupe/pkg/types"
)

// Server implements the Model Context Protocol (MCP) for Loupe. It exposes
// JSON-RPC 2.0 tools that let AI assistants extract files into the
// knowledge graph, query it through the lens pipeline, and steer lens
// activation.
type Server struct {
	engine    *engine.ContextEngine
	analyzer  *source.Analyzer
	config    *config.Config
	sessionID string // unique ID generated once per MCP server lifetime
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// WithConfig injects a *config.Config into the Server. Without it the
// server falls back to package defaults for scan workers and extensions.
func WithConfig(cfg *config.Config) ServerOption {
	return func(s *Server) {
		s.config = cfg
	}
}

// WithAnalyzer injects a source analyzer. Without it the server builds one
// over the engine's adapter registry.
func WithAnalyzer(a *source.Analyzer) ServerOption {
	return func(s *Server) {
		s.analyzer = a
	}
}

// NewServer creates a new MCP server instance over a started engine.
func NewServer(eng *engine.ContextEngine, opts ...ServerOption) *Server {
	s := &Server{
		engine:    eng,
		sessionID: uuid.New().String(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.analyzer == nil && eng != nil {
		s.analyzer = source.NewAnalyzer(eng.Adapters())
	}
	log.Printf("loupe-mcp: session ID: %s", s.sessionID)
	return s
}

// Config returns the configuration injected via WithConfig, or nil.
func (s *Server) Config() *config.Config {
	return s.config
}

// HandleRequest processes a JSON-RPC 2.0 request and returns a response.
// This is the main entry point for MCP protocol handling.
func (s *Server) HandleRequest(ctx context.Context, requestJSON []byte) ([]byte, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return s.errorResponse(nil, ErrCodeParseError, "Parse error", err)
	}

	if req.JSONRPC != "2.0" {
		return s.errorResponse(req.ID, ErrCodeInvalidRequest, "Invalid JSON-RPC version", nil)
	}

	var result interface{}
	var err error

	switch req.Method {
	// Standard MCP protocol methods
	case "initialize":
		result, err = s.handleInitialize(ctx, req.Params)
	case "initialized":
		// Notification, no response body required; return empty object.
		result = map[string]interface{}{}
	case "tools/list":
		result, err = s.handleToolsList(ctx, req.Params)
	case "tools/call":
		result, err = s.handleToolsCall(ctx, req.Params)

	// Native JSON-RPC methods (kept for direct callers that skip the MCP
	// envelope)
	case "extract_content":
		result, err = s.handleExtractContent(ctx, req.Params)
	case "analyze_file":
		result, err = s.handleAnalyzeFile(ctx, req.Params)
	case "scan_project":
		result, err = s.handleScanProject(ctx, req.Params)
	case "query_graph":
		result, err = s.handleQueryGraph(ctx, req.Params)
	case "traverse_graph":
		result, err = s.handleTraverseGraph(ctx, req.Params)
	case "find_connected":
		result, err = s.handleFindConnected(ctx, req.Params)
	case "list_lenses":
		result, err = s.handleListLenses(ctx, req.Params)
	case "configure_lens":
		result, err = s.handleConfigureLens(ctx, req.Params)
	case "set_lens_override":
		result, err = s.handleSetLensOverride(ctx, req.Params)
	case "clear_lens_override":
		result, err = s.handleClearLensOverride(ctx, req.Params)
	case "detect_conflicts":
		result, err = s.handleDetectConflicts(ctx, req.Params)
	case "graph_stats":
		result, err = s.handleGraphStats(ctx, req.Params)
	default:
		return s.errorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}

	if err != nil {
		return s.errorResponse(req.ID, ErrCodeServerError, err.Error(), nil)
	}

	return s.successResponse(req.ID, result)
}

// ExtractContent extracts inline content or a file from disk into the
// graph. With both content and path, the path drives adapter routing and
// source identity; with only a path, the file is read from disk.
func (s *Server) ExtractContent(ctx context.Context, args ExtractContentArgs) (*ExtractContentResult, error) {
	if args.Content == "" && args.Path == "" {
		return nil, fmt.Errorf("content or path is required")
	}

	var summary *engine.ExtractionSummary
	var err error
	if args.Content == "" {
		summary, err = s.engine.ExtractFile(ctx, args.Path)
	} else {
		var meta types.FileMetadata
		if args.Path != "" {
			meta = types.FileMetadataFor(args.Path, int64(len(args.Content)))
		}
		summary, err = s.engine.ExtractContent(ctx, args.Content, meta)
	}
	if err != nil {
		return nil, err
	}

	return &ExtractContentResult{
		Source:        summary.Source,
		Adapter:       summary.Adapter,
		Entities:      summary.Entities,
		Relationships: summary.Relationships,
		Replaced:      summary.Replaced,
		DurationMs:    summary.Duration.Milliseconds(),
	}, nil
}

// AnalyzeFile reports the imports, exports and resolved local dependencies
// of a single source file.
func (s *Server) AnalyzeFile(ctx context.Context, args AnalyzeFileArgs) (*source.FileAnalysis, error) {
	if args.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	return s.analyzer.AnalyzeFile(args.Path)
}

// ScanProject walks a project root and extracts every eligible file.
func (s *Server) ScanProject(ctx context.Context, args ScanProjectArgs) (*ScanProjectResult, error) {
	if args.Root == "" {
		return nil, fmt.Errorf("root is required")
	}

	cfg := discovery.DefaultScanConfig()
	if s.config != nil && s.config.Discovery.ScanWorkers > 0 {
		cfg.NumWorkers = s.config.Discovery.ScanWorkers
	}
	if args.Workers > 0 {
		cfg.NumWorkers = args.Workers
	}
	cfg.Extensions = args.Extensions

	scanner, err := discovery.NewScanner(s.engine, cfg)
	if err != nil {
		return nil, err
	}

	res, err := scanner.Scan(ctx, args.Root)
	if err != nil {
		return nil, err
	}

	out := &ScanProjectResult{
		Root:          res.Root,
		FilesScanned:  res.FilesScanned,
		FilesFailed:   res.FilesFailed,
		Entities:      res.Entities,
		Relationships: res.Relationships,
		DurationMs:    res.Duration.Milliseconds(),
	}
	if args.IncludeFiles {
		out.Files = res.Files
	}
	return out, nil
}

// QueryGraph runs a structured query through the lens pipeline. Without an
// explicit activation context the engine's rolling context decides which
// lenses apply.
func (s *Server) QueryGraph(ctx context.Context, args QueryGraphArgs) (*engine.QueryResponse, error) {
	return s.engine.Query(ctx, args.Query, args.Activation)
}

// TraverseGraph runs a breadth-first expansion from a start entity.
func (s *Server) TraverseGraph(ctx context.Context, args TraverseGraphArgs) (*graph.TraversalResult, error) {
	if args.NodeID == "" {
		return nil, fmt.Errorf("node_id is required")
	}

	direction, err := parseDirection(args.Direction)
	if err != nil {
		return nil, err
	}

	maxDepth := args.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 2
	}

	kinds := make([]types.RelationshipKind, 0, len(args.EdgeKinds))
	for _, k := range args.EdgeKinds {
		kinds = append(kinds, types.RelationshipKind(k))
	}

	return s.engine.Expand(ctx, args.NodeID, engine.ExpandOptions{
		MaxDepth:  maxDepth,
		Direction: direction,
		EdgeKinds: kinds,
	})
}

// FindConnected lists every entity reachable from a start node within the
// given number of hops, following edges in both directions.
func (s *Server) FindConnected(ctx context.Context, args FindConnectedArgs) (*FindConnectedResult, error) {
	if args.NodeID == "" {
		return nil, fmt.Errorf("node_id is required")
	}

	depth := args.Depth
	if depth <= 0 {
		depth = 2
	}

	ids, err := s.engine.FindConnected(ctx, args.NodeID, depth)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}

	return &FindConnectedResult{
		NodeID:    args.NodeID,
		Connected: ids,
		Total:     len(ids),
	}, nil
}

// ListLenses reports every registered lens with its priority, enabled flag
// and whether it is active for the engine's current rolling context.
func (s *Server) ListLenses(ctx context.Context) (*ListLensesResult, error) {
	reg := s.engine.Lenses()

	activeIDs := s.engine.CurrentlyActiveLenses()
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

	return &ListLensesResult{
		Lenses:         summaries,
		ActiveIDs:      activeIDs,
		ManualOverride: reg.ManualOverride(),
	}, nil
}

// ConfigureLens replaces a lens's configuration after validating it.
func (s *Server) ConfigureLens(ctx context.Context, args ConfigureLensArgs) (*ConfigureLensResult, error) {
	if args.LensID == "" {
		return nil, fmt.Errorf("lens_id is required")
	}

	if err := s.engine.Lenses().Configure(args.LensID, args.Config); err != nil {
		return nil, err
	}

	return &ConfigureLensResult{
		LensID:  args.LensID,
		Message: fmt.Sprintf("lens %s configured", args.LensID),
	}, nil
}

// SetLensOverride pins lens activation to a single lens, bypassing the
// activation heuristics until the override is cleared.
func (s *Server) SetLensOverride(ctx context.Context, args SetLensOverrideArgs) (*LensOverrideResult, error) {
	if args.LensID == "" {
		return nil, fmt.Errorf("lens_id is required")
	}

	reg := s.engine.Lenses()
	reg.SetManualOverride(args.LensID)

	msg := fmt.Sprintf("manual override set to %s", args.LensID)
	if !reg.IsRegistered(args.LensID) {
		msg += " (no lens with that id is registered; the active set will be empty)"
	}

	return &LensOverrideResult{ManualOverride: args.LensID, Message: msg}, nil
}

// ClearLensOverride restores heuristic lens activation.
func (s *Server) ClearLensOverride(ctx context.Context) (*LensOverrideResult, error) {
	s.engine.Lenses().ClearManualOverride()
	return &LensOverrideResult{Message: "manual override cleared"}, nil
}

// DetectConflicts reports lenses whose configurations pull queries in
// incompatible directions.
func (s *Server) DetectConflicts(ctx context.Context) (*DetectConflictsResult, error) {
	conflicts := s.engine.Lenses().DetectConflicts()
	if conflicts == nil {
		conflicts = []types.Conflict{}
	}
	return &DetectConflictsResult{Conflicts: conflicts, Total: len(conflicts)}, nil
}

// GraphStats reports the current shape of the graph.
func (s *Server) GraphStats(ctx context.Context) (*storage.GraphStats, error) {
	return s.engine.Stats(ctx)
}

// ---------------------------------------------------------------------------
// JSON-RPC handler wrappers
// ---------------------------------------------------------------------------

func (s *Server) handleExtractContent(ctx context.Context, params interface{}) (interface{}, error) {
	var args ExtractContentArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.ExtractContent(ctx, args)
}

func (s *Server) handleAnalyzeFile(ctx context.Context, params interface{}) (interface{}, error) {
	var args AnalyzeFileArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.AnalyzeFile(ctx, args)
}

func (s *Server) handleScanProject(ctx context.Context, params interface{}) (interface{}, error) {
	var args ScanProjectArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.ScanProject(ctx, args)
}

func (s *Server) handleQueryGraph(ctx context.Context, params interface{}) (interface{}, error) {
	var args QueryGraphArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.QueryGraph(ctx, args)
}

func (s *Server) handleTraverseGraph(ctx context.Context, params interface{}) (interface{}, error) {
	var args TraverseGraphArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.TraverseGraph(ctx, args)
}

func (s *Server) handleFindConnected(ctx context.Context, params interface{}) (interface{}, error) {
	var args FindConnectedArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.FindConnected(ctx, args)
}

func (s *Server) handleListLenses(ctx context.Context, params interface{}) (interface{}, error) {
	return s.ListLenses(ctx)
}

func (s *Server) handleConfigureLens(ctx context.Context, params interface{}) (interface{}, error) {
	var args ConfigureLensArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.ConfigureLens(ctx, args)
}

func (s *Server) handleSetLensOverride(ctx context.Context, params interface{}) (interface{}, error) {
	var args SetLensOverrideArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.SetLensOverride(ctx, args)
}

func (s *Server) handleClearLensOverride(ctx context.Context, params interface{}) (interface{}, error) {
	return s.ClearLensOverride(ctx)
}

func (s *Server) handleDetectConflicts(ctx context.Context, params interface{}) (interface{}, error) {
	return s.DetectConflicts(ctx)
}

func (s *Server) handleGraphStats(ctx context.Context, params interface{}) (interface{}, error) {
	return s.GraphStats(ctx)
}

// ---------------------------------------------------------------------------
// MCP protocol handlers
// ---------------------------------------------------------------------------

func (s *Server) handleInitialize(ctx context.Context, params interface{}) (interface{}, error) {
	return MCPInitializeResult{
		ProtocolVersion: "2024-11-05",
		Capabilities: MCPServerCapabilities{
			Tools: &MCPToolsCapability{},
		},
		ServerInfo: MCPServerInfo{
			Name:    "loupe",
			Version: "1.0.0",
		},
	}, nil
}

// handleToolsList returns the list of all tools this server exposes.
func (s *Server) handleToolsList(ctx context.Context, params interface{}) (interface{}, error) {
	return MCPToolsListResult{Tools: s.buildToolsList()}, nil
}

// handleToolsCall dispatches a tools/call request to the appropriate
// handler and wraps the result in the MCP content envelope.
func (s *Server) handleToolsCall(ctx context.Context, params interface{}) (interface{}, error) {
	var p MCPToolCallParams
	if err := s.unmarshalParams(params, &p); err != nil {
		return nil, err
	}

	// Re-marshal arguments so they can be passed to the handlers, which
	// expect an interface{} produced by JSON unmarshal.
	argsJSON, err := json.Marshal(p.Arguments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal arguments: %w", err)
	}
	var rawParams interface{}
	if err := json.Unmarshal(argsJSON, &rawParams); err != nil {
		return nil, fmt.Errorf("failed to unmarshal arguments: %w", err)
	}

	var result interface{}
	var handlerErr error

	switch p.Name {
	case "extract_content":
		result, handlerErr = s.handleExtractContent(ctx, rawParams)
	case "analyze_file":
		result, handlerErr = s.handleAnalyzeFile(ctx, rawParams)
	case "scan_project":
		result, handlerErr = s.handleScanProject(ctx, rawParams)
	case "query_graph":
		result, handlerErr = s.handleQueryGraph(ctx, rawParams)
	case "traverse_graph":
		result, handlerErr = s.handleTraverseGraph(ctx, rawParams)
	case "find_connected":
		result, handlerErr = s.handleFindConnected(ctx, rawParams)
	case "list_lenses":
		result, handlerErr = s.handleListLenses(ctx, rawParams)
	case "configure_lens":
		result, handlerErr = s.handleConfigureLens(ctx, rawParams)
	case "set_lens_override":
		result, handlerErr = s.handleSetLensOverride(ctx, rawParams)
	case "clear_lens_override":
		result, handlerErr = s.handleClearLensOverride(ctx, rawParams)
	case "detect_conflicts":
		result, handlerErr = s.handleDetectConflicts(ctx, rawParams)
	case "graph_stats":
		result, handlerErr = s.handleGraphStats(ctx, rawParams)
	default:
		return &MCPToolCallResult{
			Content: []MCPToolCallContent{{Type: "text", Text: fmt.Sprintf("unknown tool: %s", p.Name)}},
			IsError: true,
		}, nil
	}

	if handlerErr != nil {
		return &MCPToolCallResult{
			Content: []MCPToolCallContent{{Type: "text", Text: handlerErr.Error()}},
			IsError: true,
		}, nil
	}

	text, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &MCPToolCallResult{
		Content: []MCPToolCallContent{{Type: "text", Text: string(text)}},
	}, nil
}

// buildToolsList returns the canonical list of MCP tool definitions.
func (s *Server) buildToolsList() []MCPTool {
	return []MCPTool{
		{
			Name:        "extract_content",
			Description: "Extract a file or inline content into the knowledge graph. The path routes the content to the right adapter (code, record, narrative, fallback) and becomes the source key, so extracting the same path again replaces its previous entities. Pass only a path to read the file from disk.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"content": map[string]interface{}{"type": "string", "description": "Inline content to extract. Omit to read the file at path from disk."},
					"path":    map[string]interface{}{"type": "string", "description": "File path for adapter routing and source identity."},
				},
			},
		},
		{
			Name:        "analyze_file",
			Description: "Analyze a single source file: imports (with specifiers), exports, and local dependencies resolved to real paths on disk. Never fails for a file that exists; syntax problems are reported in the errors field.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"path"},
				"properties": map[string]interface{}{
					"path": map[string]interface{}{"type": "string", "description": "File to analyze (required)"},
				},
			},
		},
		{
			Name:        "scan_project",
			Description: "Walk a project root and extract every eligible file into the graph, skipping .git, node_modules, vendor, dist and build. Returns aggregate counts; set include_files for the per-file breakdown.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"root"},
				"properties": map[string]interface{}{
					"root":          map[string]interface{}{"type": "string", "description": "Project root directory (required)"},
					"workers":       map[string]interface{}{"type": "integer", "description": "Concurrent extraction workers (default from server config)"},
					"extensions":    map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "description": "Override the eligible file extensions (e.g. [\".ts\", \".md\"])"},
					"include_files": map[string]interface{}{"type": "boolean", "description": "Include per-file extraction reports in the result"},
				},
			},
		},
		{
			Name:        "query_graph",
			Description: "Query the knowledge graph through the lens pipeline. Active lenses transform the query and annotate/reorder results; the response lists which lenses were applied. Omit activation to use the server's rolling context (current files, recent actions).",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query":      map[string]interface{}{"type": "object", "description": "Structured query: conditions, ordering, depth, pagination, performanceHints"},
					"activation": map[string]interface{}{"type": "object", "description": "Situational context: currentFiles, recentActions, projectContext, manualOverride"},
				},
			},
		},
		{
			Name:        "traverse_graph",
			Description: "Breadth-first expansion from a start entity. Returns visited ids in discovery order, the depth reached, and whether a cycle was seen. Restrict by direction and relationship kinds.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"node_id"},
				"properties": map[string]interface{}{
					"node_id":    map[string]interface{}{"type": "string", "description": "Start entity id (required)"},
					"max_depth":  map[string]interface{}{"type": "integer", "description": "Hops from the start (default 2; clamped to the engine limit)"},
					"direction":  map[string]interface{}{"type": "string", "description": "outgoing, incoming, or both (default outgoing)"},
					"edge_kinds": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "description": "Relationship kinds to follow, e.g. [\"calls\", \"imports\"] (default all)"},
				},
			},
		},
		{
			Name:        "find_connected",
			Description: "List every entity connected to a start node within N hops, following edges in both directions. The start node itself is excluded.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"node_id"},
				"properties": map[string]interface{}{
					"node_id": map[string]interface{}{"type": "string", "description": "Start entity id (required)"},
					"depth":   map[string]interface{}{"type": "integer", "description": "Search radius in hops (default 2)"},
				},
			},
		},
		{
			Name:        "list_lenses",
			Description: "List all registered lenses with their priorities, enabled flags, and which are active for the current context. Also reports the manual override if one is set.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "configure_lens",
			Description: "Replace a lens's configuration: enabled flag, activation rules, query modifications, result transformations. The configuration is validated before being applied; invalid configs are rejected and the previous one stays in effect.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"lens_id", "config"},
				"properties": map[string]interface{}{
					"lens_id": map[string]interface{}{"type": "string", "description": "Lens to configure (required)"},
					"config":  map[string]interface{}{"type": "object", "description": "Full replacement configuration: enabled, priority, activationRules, queryModifications, resultTransformations"},
				},
			},
		},
		{
			Name:        "set_lens_override",
			Description: "Pin lens activation to a single lens, bypassing activation heuristics until cleared. An id that matches no registered lens yields an empty active set.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"lens_id"},
				"properties": map[string]interface{}{
					"lens_id": map[string]interface{}{"type": "string", "description": "The only lens allowed to activate (required)"},
				},
			},
		},
		{
			Name:        "clear_lens_override",
			Description: "Clear the manual lens override and restore heuristic activation.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "detect_conflicts",
			Description: "Detect lenses whose configurations pull queries in incompatible directions: same-priority overlaps and contradictory query modifications. Each conflict includes a suggested resolution.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "graph_stats",
			Description: "Report the shape of the knowledge graph: entity and relationship counts, breakdowns by kind, and the number of distinct extraction sources.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func parseDirection(s string) (types.Direction, error) {
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

// unmarshalParams unmarshals JSON-RPC parameters into a typed struct.
func (s *Server) unmarshalParams(params interface{}, dest interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal params: %w", err)
	}

	return nil
}

// successResponse creates a JSON-RPC success response.
func (s *Server) successResponse(id interface{}, result interface{}) ([]byte, error) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
	return json.Marshal(resp)
}

// errorResponse creates a JSON-RPC error response.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) ([]byte, error) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
	return json.Marshal(resp)
}
