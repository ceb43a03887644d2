package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loupelabs/loupe/internal/storage"
	"github.com/loupelabs/loupe/pkg/types"
)

// Helper to create a started engine over an in-process store. The store is
// returned too so tests can seed graph fixtures directly.
func createStartedEngine(t *testing.T) (*ContextEngine, *storage.MemoryStore) {
	t.Helper()

	store := storage.NewMemoryStore()
	engine, err := NewContextEngine(store, DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	ctx := context.Background()
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Failed to Start engine: %v", err)
	}

	t.Cleanup(func() {
		_ = engine.Shutdown(ctx)
		_ = store.Close()
	})

	return engine, store
}

// seedChain stores a three node calls chain a -> b -> c under one source.
func seedChain(t *testing.T, store *storage.MemoryStore) {
	t.Helper()

	ctx := context.Background()
	entities := []types.Entity{
		{ID: "a", Kind: types.EntityKindFunction, Name: "a"},
		{ID: "b", Kind: types.EntityKindFunction, Name: "b"},
		{ID: "c", Kind: types.EntityKindFunction, Name: "c"},
	}
	if err := store.PutEntities(ctx, "chain.ts", entities); err != nil {
		t.Fatalf("Failed to seed entities: %v", err)
	}

	rels := []types.Relationship{
		{Source: "a", Target: "b", Kind: types.RelCalls},
		{Source: "b", Target: "c", Kind: types.RelCalls},
	}
	if err := store.PutRelationships(ctx, "chain.ts", rels); err != nil {
		t.Fatalf("Failed to seed relationships: %v", err)
	}
}

// TestEngine_DoubleStart verifies that calling Start() twice returns an
// error and leaves the engine usable.
func TestEngine_DoubleStart(t *testing.T) {
	store := storage.NewMemoryStore()
	defer func() { _ = store.Close() }()

	engine, err := NewContextEngine(store, DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	ctx := context.Background()

	if err := engine.Start(ctx); err != nil {
		t.Fatalf("First Start() failed: %v", err)
	}

	err = engine.Start(ctx)
	if err == nil {
		t.Fatal("Expected second Start() to return an error, got nil")
	}
	if err.Error() != "engine already started" {
		t.Errorf("Expected error message 'engine already started', got: %v", err)
	}

	// Engine should still work
	summary, err := engine.ExtractContent(ctx, "hello world", types.FileMetadata{})
	if err != nil {
		t.Errorf("ExtractContent failed after double Start attempt: %v", err)
	}
	if summary == nil || summary.Entities == 0 {
		t.Error("Expected a non-empty extraction after double Start attempt")
	}

	if err := engine.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

// TestEngine_OperationsBeforeStart verifies that extraction, query, and
// traversal all refuse to run before Start().
func TestEngine_OperationsBeforeStart(t *testing.T) {
	store := storage.NewMemoryStore()
	defer func() { _ = store.Close() }()

	engine, err := NewContextEngine(store, DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	ctx := context.Background()

	if _, err := engine.ExtractContent(ctx, "content", types.FileMetadata{}); err == nil {
		t.Error("Expected ExtractContent to fail before Start()")
	}
	if _, err := engine.Query(ctx, types.Query{}, nil); err == nil {
		t.Error("Expected Query to fail before Start()")
	}
	if _, err := engine.Expand(ctx, "a", ExpandOptions{}); err == nil {
		t.Error("Expected Expand to fail before Start()")
	}

	_, err = engine.Stats(ctx)
	if err == nil || err.Error() != "engine not started" {
		t.Errorf("Expected error 'engine not started', got: %v", err)
	}
}

// TestEngine_ShutdownBeforeStart verifies Shutdown() before Start() errors
// gracefully.
func TestEngine_ShutdownBeforeStart(t *testing.T) {
	store := storage.NewMemoryStore()
	defer func() { _ = store.Close() }()

	engine, err := NewContextEngine(store, DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	err = engine.Shutdown(context.Background())
	if err == nil {
		t.Fatal("Expected Shutdown() to return error before Start(), got nil")
	}
	if err.Error() != "engine not started" {
		t.Errorf("Expected error 'engine not started', got: %v", err)
	}
}

// TestEngine_ExtractContentStoresEntities verifies the extract path end to
// end: adapter routing, persistence, and the summary counts.
func TestEngine_ExtractContentStoresEntities(t *testing.T) {
	engine, _ := createStartedEngine(t)
	ctx := context.Background()

	src := "function loadConfig(path: string): Config {\n  return parse(path);\n}\n"
	meta := types.FileMetadataFor("src/config.ts", int64(len(src)))

	summary, err := engine.ExtractContent(ctx, src, meta)
	if err != nil {
		t.Fatalf("ExtractContent failed: %v", err)
	}

	if summary.Adapter != "code" {
		t.Errorf("Expected code adapter for .ts, got %q", summary.Adapter)
	}
	if summary.Source != "src/config.ts" {
		t.Errorf("Expected source src/config.ts, got %q", summary.Source)
	}
	if summary.Entities < 2 {
		t.Errorf("Expected at least document and function entities, got %d", summary.Entities)
	}
	if summary.Replaced != 0 {
		t.Errorf("Expected nothing replaced on first extraction, got %d", summary.Replaced)
	}

	// The document entity is addressable by convention
	doc, err := engine.GetEntity(ctx, "doc:src/config.ts")
	if err != nil {
		t.Fatalf("GetEntity for document failed: %v", err)
	}
	if doc.Kind != types.EntityKindDocument {
		t.Errorf("Expected document kind, got %q", doc.Kind)
	}
}

// TestEngine_ReExtractionReplaces verifies that extracting the same source
// twice replaces the first contribution instead of accumulating it.
func TestEngine_ReExtractionReplaces(t *testing.T) {
	engine, _ := createStartedEngine(t)
	ctx := context.Background()

	meta := types.FileMetadataFor("notes.md", 0)

	first, err := engine.ExtractContent(ctx, "# One\n\nalpha\n\nbeta\n", meta)
	if err != nil {
		t.Fatalf("First ExtractContent failed: %v", err)
	}

	second, err := engine.ExtractContent(ctx, "# Two\n\ngamma\n", meta)
	if err != nil {
		t.Fatalf("Second ExtractContent failed: %v", err)
	}

	if second.Replaced != first.Entities {
		t.Errorf("Expected second pass to replace %d entities, replaced %d", first.Entities, second.Replaced)
	}

	stats, err := engine.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalEntities != second.Entities {
		t.Errorf("Expected %d entities after replacement, got %d", second.Entities, stats.TotalEntities)
	}
	if stats.Sources != 1 {
		t.Errorf("Expected a single source, got %d", stats.Sources)
	}
}

// TestEngine_ExtractFile verifies reading and extracting from disk.
func TestEngine_ExtractFile(t *testing.T) {
	engine, _ := createStartedEngine(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "readme.md")
	if err := os.WriteFile(path, []byte("# Title\n\nSome prose.\n"), 0o644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	summary, err := engine.ExtractFile(ctx, path)
	if err != nil {
		t.Fatalf("ExtractFile failed: %v", err)
	}
	if summary.Source != path {
		t.Errorf("Expected source %q, got %q", path, summary.Source)
	}
	if summary.Adapter != "fallback" {
		t.Errorf("Expected fallback adapter for .md, got %q", summary.Adapter)
	}

	if _, err := engine.GetEntity(ctx, "doc:"+path); err != nil {
		t.Errorf("Expected document entity for extracted file: %v", err)
	}

	// A missing file is an error
	if _, err := engine.ExtractFile(ctx, filepath.Join(dir, "absent.md")); err == nil {
		t.Error("Expected ExtractFile to fail for a missing file")
	}
}

// TestEngine_QueryAppliesActiveLenses verifies the lens pipeline around a
// query: with a recent error in the activation context the debugging lens
// transforms the query and annotates the results.
func TestEngine_QueryAppliesActiveLenses(t *testing.T) {
	engine, store := createStartedEngine(t)
	ctx := context.Background()

	entities := []types.Entity{
		{ID: "fn:ok", Kind: types.EntityKindFunction, Name: "render"},
		{ID: "fn:bad", Kind: types.EntityKindFunction, Name: "handleError", Content: "throw new Error('boom')"},
	}
	if err := store.PutEntities(ctx, "app.ts", entities); err != nil {
		t.Fatalf("Failed to seed entities: %v", err)
	}

	activation := &types.ActivationContext{
		RecentActions: []types.ActionEvent{
			{Type: types.ActionError, Timestamp: time.Now()},
		},
	}

	resp, err := engine.Query(ctx, types.Query{
		Conditions: []types.QueryCondition{
			{Field: "kind", Operator: types.OpEquals, Value: "function"},
		},
	}, activation)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if len(resp.Results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(resp.Results))
	}
	if !containsString(resp.AppliedLenses, "debugging") {
		t.Errorf("Expected debugging lens in applied set, got %v", resp.AppliedLenses)
	}

	// The debugging lens reorders error-laden entities first and tags them
	if resp.Results[0].Entity.ID != "fn:bad" {
		t.Errorf("Expected error-heavy entity first, got %q", resp.Results[0].Entity.ID)
	}
	if resp.Results[0].AppliedLens() != "debugging" {
		t.Errorf("Expected appliedLens annotation, got %q", resp.Results[0].AppliedLens())
	}
}

// TestEngine_QueryWithoutActivationUsesRollingContext verifies that a nil
// activation context falls back to the engine's recorded actions.
func TestEngine_QueryWithoutActivationUsesRollingContext(t *testing.T) {
	engine, store := createStartedEngine(t)
	ctx := context.Background()

	if err := store.PutEntities(ctx, "app.ts", []types.Entity{
		{ID: "fn:x", Kind: types.EntityKindFunction, Name: "x"},
	}); err != nil {
		t.Fatalf("Failed to seed entities: %v", err)
	}

	// No actions recorded: no lens should activate
	resp, err := engine.Query(ctx, types.Query{}, nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(resp.AppliedLenses) != 0 {
		t.Errorf("Expected no active lenses on a quiet context, got %v", resp.AppliedLenses)
	}

	engine.RecordAction(types.ActionEvent{Type: types.ActionError})

	resp, err = engine.Query(ctx, types.Query{}, nil)
	if err != nil {
		t.Fatalf("Query after RecordAction failed: %v", err)
	}
	if !containsString(resp.AppliedLenses, "debugging") {
		t.Errorf("Expected debugging lens from rolling context, got %v", resp.AppliedLenses)
	}
}

// TestEngine_QueryCapsUnboundedResults verifies the MaxQueryResults guard.
func TestEngine_QueryCapsUnboundedResults(t *testing.T) {
	store := storage.NewMemoryStore()
	defer func() { _ = store.Close() }()

	cfg := DefaultConfig()
	cfg.MaxQueryResults = 3
	engine, err := NewContextEngine(store, cfg)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	ctx := context.Background()
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Failed to Start engine: %v", err)
	}
	defer func() { _ = engine.Shutdown(ctx) }()

	var entities []types.Entity
	for _, id := range []string{"e1", "e2", "e3", "e4", "e5"} {
		entities = append(entities, types.Entity{ID: id, Kind: types.EntityKindParagraph, Name: id})
	}
	if err := store.PutEntities(ctx, "bulk.txt", entities); err != nil {
		t.Fatalf("Failed to seed entities: %v", err)
	}

	resp, err := engine.Query(ctx, types.Query{}, nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Errorf("Expected capped result set of 3, got %d", len(resp.Results))
	}

	// An explicit pagination limit wins over the cap
	resp, err = engine.Query(ctx, types.Query{
		Pagination: &types.Pagination{Limit: 5},
	}, nil)
	if err != nil {
		t.Fatalf("Paginated query failed: %v", err)
	}
	if len(resp.Results) != 5 {
		t.Errorf("Expected explicit limit to override the cap, got %d results", len(resp.Results))
	}
}

// TestEngine_ExpandTraversesStore verifies BFS expansion over stored edges.
func TestEngine_ExpandTraversesStore(t *testing.T) {
	engine, store := createStartedEngine(t)
	seedChain(t, store)
	ctx := context.Background()

	result, err := engine.Expand(ctx, "a", ExpandOptions{MaxDepth: 2})
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	if !equalStrings(result.VisitedNodes, []string{"a", "b", "c"}) {
		t.Errorf("Expected visit order [a b c], got %v", result.VisitedNodes)
	}
	if result.Depth != 2 {
		t.Errorf("Expected depth 2, got %d", result.Depth)
	}

	// Depth 1 stops at b
	result, err = engine.Expand(ctx, "a", ExpandOptions{MaxDepth: 1})
	if err != nil {
		t.Fatalf("Expand depth 1 failed: %v", err)
	}
	if !equalStrings(result.VisitedNodes, []string{"a", "b"}) {
		t.Errorf("Expected visit order [a b], got %v", result.VisitedNodes)
	}
}

// TestEngine_ExpandClampsDepth verifies the MaxTraversalDepth cap.
func TestEngine_ExpandClampsDepth(t *testing.T) {
	store := storage.NewMemoryStore()
	defer func() { _ = store.Close() }()

	cfg := DefaultConfig()
	cfg.MaxTraversalDepth = 1
	engine, err := NewContextEngine(store, cfg)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	ctx := context.Background()
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Failed to Start engine: %v", err)
	}
	defer func() { _ = engine.Shutdown(ctx) }()

	seedChain(t, store)

	result, err := engine.Expand(ctx, "a", ExpandOptions{MaxDepth: 10})
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if !equalStrings(result.VisitedNodes, []string{"a", "b"}) {
		t.Errorf("Expected clamp to one hop, got %v", result.VisitedNodes)
	}
}

// TestEngine_FindConnected verifies the undirected reachability helper.
func TestEngine_FindConnected(t *testing.T) {
	engine, store := createStartedEngine(t)
	seedChain(t, store)
	ctx := context.Background()

	// From the middle of the chain, both endpoints are one hop away
	connected, err := engine.FindConnected(ctx, "b", 1)
	if err != nil {
		t.Fatalf("FindConnected failed: %v", err)
	}
	if !equalStrings(connected, []string{"c", "a"}) && !equalStrings(connected, []string{"a", "c"}) {
		t.Errorf("Expected a and c connected to b, got %v", connected)
	}

	if _, err := engine.FindConnected(ctx, "", 1); err == nil {
		t.Error("Expected FindConnected to reject an empty node id")
	}
}

// TestEngine_RemoveSource verifies watcher-driven removal of a source.
func TestEngine_RemoveSource(t *testing.T) {
	engine, _ := createStartedEngine(t)
	ctx := context.Background()

	meta := types.FileMetadataFor("gone.md", 0)
	summary, err := engine.ExtractContent(ctx, "# Gone\n\nsoon\n", meta)
	if err != nil {
		t.Fatalf("ExtractContent failed: %v", err)
	}

	removed, err := engine.RemoveSource(ctx, "gone.md")
	if err != nil {
		t.Fatalf("RemoveSource failed: %v", err)
	}
	if removed != summary.Entities {
		t.Errorf("Expected %d entities removed, got %d", summary.Entities, removed)
	}

	_, err = engine.GetEntity(ctx, "doc:gone.md")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after removal, got %v", err)
	}
}

// TestEngine_RecordActionTrimsWindow verifies the rolling action window.
func TestEngine_RecordActionTrimsWindow(t *testing.T) {
	store := storage.NewMemoryStore()
	defer func() { _ = store.Close() }()

	cfg := DefaultConfig()
	cfg.RecentActionLimit = 3
	engine, err := NewContextEngine(store, cfg)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	for i := 0; i < 5; i++ {
		engine.RecordAction(types.ActionEvent{
			Type:     types.ActionFileSave,
			Metadata: map[string]interface{}{"seq": i},
		})
	}

	actions := engine.ActiveContext().RecentActions
	if len(actions) != 3 {
		t.Fatalf("Expected window of 3 actions, got %d", len(actions))
	}
	if actions[2].Metadata["seq"] != 4 {
		t.Errorf("Expected most recent action last, got %v", actions[2].Metadata["seq"])
	}
	if actions[0].Metadata["seq"] != 2 {
		t.Errorf("Expected oldest retained action to be seq 2, got %v", actions[0].Metadata["seq"])
	}
}

// TestEngine_UpdateActiveContext verifies context replacement and the
// resulting lens activation.
func TestEngine_UpdateActiveContext(t *testing.T) {
	engine, _ := createStartedEngine(t)

	active := engine.UpdateActiveContext([]string{"src/app.ts"}, types.ProjectContext{Name: "loupe"})
	if len(active) != 0 {
		t.Errorf("Expected no active lenses on a quiet context, got %v", active)
	}

	engine.RecordAction(types.ActionEvent{Type: types.ActionError})

	if !containsString(engine.CurrentlyActiveLenses(), "debugging") {
		t.Errorf("Expected debugging active after error action, got %v", engine.CurrentlyActiveLenses())
	}

	snapshot := engine.ActiveContext()
	if len(snapshot.CurrentFiles) != 1 || snapshot.CurrentFiles[0] != "src/app.ts" {
		t.Errorf("Expected current files preserved, got %v", snapshot.CurrentFiles)
	}
	if snapshot.Project.Name != "loupe" {
		t.Errorf("Expected project context preserved, got %+v", snapshot.Project)
	}
}

// TestEngine_InvalidConfig verifies config validation at creation time.
func TestEngine_InvalidConfig(t *testing.T) {
	store := storage.NewMemoryStore()
	defer func() { _ = store.Close() }()

	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "Invalid RecentActionLimit (zero)",
			config:  Config{RecentActionLimit: 0, MaxTraversalDepth: 10, MaxQueryResults: 100},
			wantErr: true,
		},
		{
			name:    "Invalid MaxTraversalDepth (zero)",
			config:  Config{RecentActionLimit: 50, MaxTraversalDepth: 0, MaxQueryResults: 100},
			wantErr: true,
		},
		{
			name:    "Invalid MaxQueryResults (negative)",
			config:  Config{RecentActionLimit: 50, MaxTraversalDepth: 10, MaxQueryResults: -1},
			wantErr: true,
		},
		{
			name:    "Valid config",
			config:  Config{RecentActionLimit: 50, MaxTraversalDepth: 10, MaxQueryResults: 0},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewContextEngine(store, tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewContextEngine error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestEngine_NoStoreProvided verifies that a nil store is rejected.
func TestEngine_NoStoreProvided(t *testing.T) {
	_, err := NewContextEngine(nil, DefaultConfig())
	if err == nil {
		t.Fatal("Expected NewContextEngine to return error for nil store")
	}
	if err.Error() != "graph store is required" {
		t.Errorf("Expected error 'graph store is required', got: %v", err)
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func equalStrings(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
