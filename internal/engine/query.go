package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/loupelabs/loupe/internal/graph"
	"github.com/loupelabs/loupe/pkg/types"
)

// Query runs a graph lookup through the lens pipeline: the query is
// transformed by every active lens in priority order, executed against the
// store, and the results piped back through the lenses' result processing.
// A nil activation context falls back to the engine's rolling context.
func (e *ContextEngine) Query(ctx context.Context, q types.Query, activation *types.ActivationContext) (*QueryResponse, error) {
	if err := e.ensureStarted(); err != nil {
		return nil, err
	}

	if activation == nil {
		activation = e.ActiveContext()
	}

	active := e.lenses.ActiveLenses(activation)
	transformed := e.lenses.TransformQuery(q, activation)
	e.capResults(&transformed)

	results, err := e.store.Query(ctx, transformed)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	qc := &types.QueryContext{
		Query:      transformed,
		Activation: activation,
		Timestamp:  time.Now(),
	}
	processed := e.lenses.ProcessResults(results, qc)

	return &QueryResponse{
		Results:       processed,
		AppliedLenses: lensIDs(active),
		Total:         len(processed),
	}, nil
}

// Expand performs a breadth-first expansion of the graph around nodeID.
// Depth is clamped to the engine's MaxTraversalDepth.
func (e *ContextEngine) Expand(ctx context.Context, nodeID string, opts ExpandOptions) (*graph.TraversalResult, error) {
	if err := e.ensureStarted(); err != nil {
		return nil, err
	}

	if nodeID == "" {
		return nil, fmt.Errorf("node id is required")
	}

	traversal := graph.TraversalOptions{
		StartNode: nodeID,
		MaxDepth:  e.clampDepth(opts.MaxDepth),
		Direction: opts.Direction,
		EdgeKinds: opts.EdgeKinds,
	}

	return graph.BreadthFirstTraversal(traversal, e.neighborFunc(ctx))
}

// FindConnected returns the ids reachable from nodeID within depth hops in
// either edge direction, excluding nodeID itself.
func (e *ContextEngine) FindConnected(ctx context.Context, nodeID string, depth int) ([]string, error) {
	if err := e.ensureStarted(); err != nil {
		return nil, err
	}

	if nodeID == "" {
		return nil, fmt.Errorf("node id is required")
	}

	return graph.FindConnectedNodes(nodeID, e.clampDepth(depth), e.neighborFunc(ctx), true)
}

// neighborFunc adapts the store's Neighbors to the traversal callback,
// capturing the request context.
func (e *ContextEngine) neighborFunc(ctx context.Context) graph.NeighborFunc {
	return func(id string, kinds []types.RelationshipKind, dir types.Direction) ([]string, error) {
		return e.store.Neighbors(ctx, id, kinds, dir)
	}
}

// clampDepth normalizes a requested traversal depth against the configured
// maximum. Non-positive requests default to one hop.
func (e *ContextEngine) clampDepth(depth int) int {
	if depth <= 0 {
		depth = 1
	}
	if depth > e.config.MaxTraversalDepth {
		depth = e.config.MaxTraversalDepth
	}
	return depth
}

// capResults applies the configured MaxQueryResults to queries that carry
// no limit of their own, so an unconditioned query cannot return the whole
// graph.
func (e *ContextEngine) capResults(q *types.Query) {
	if e.config.MaxQueryResults <= 0 {
		return
	}
	if q.Pagination != nil && q.Pagination.Limit > 0 {
		return
	}
	if q.PerformanceHints != nil && q.PerformanceHints.MaxResults > 0 {
		return
	}

	hints := types.PerformanceHints{}
	if q.PerformanceHints != nil {
		hints = *q.PerformanceHints
	}
	hints.MaxResults = e.config.MaxQueryResults
	q.PerformanceHints = &hints
}
