// Package graph implements generic breadth-first traversal over the entity
// relationship graph. The algorithm is decoupled from storage: callers supply
// a neighbor-lookup function, and the traversal guarantees termination via
// its visited set, never via depth limits.
package graph

import (
	"errors"

	"github.com/loupelabs/loupe/pkg/types"
)

// Errors returned for unusable traversal input.
var (
	ErrNoStartNode    = errors.New("graph: start node is required")
	ErrNilNeighborFun = errors.New("graph: neighbor function is required")
)

// NeighborFunc returns the ids adjacent to nodeID, restricted to the given
// edge kinds (nil or empty means all kinds) and direction. Implementations
// that fail return an error, which traversal propagates to the caller
// unchanged.
type NeighborFunc func(nodeID string, edgeKinds []types.RelationshipKind, direction types.Direction) ([]string, error)

// TraversalOptions configures one breadth-first traversal.
type TraversalOptions struct {
	// StartNode is the id the traversal begins from. Required.
	StartNode string

	// MaxDepth bounds how many hops from the start are expanded. Nodes at
	// MaxDepth are visited but not expanded; 0 yields only the start node.
	MaxDepth int

	// Direction selects which edges to follow. Defaults to outgoing.
	Direction types.Direction

	// EdgeKinds restricts expansion to these relationship kinds. Empty
	// means all kinds.
	EdgeKinds []types.RelationshipKind
}

// Normalize clamps out-of-range option values in place.
func (o *TraversalOptions) Normalize() {
	if o.MaxDepth < 0 {
		o.MaxDepth = 0
	}
	if o.Direction == "" {
		o.Direction = types.DirectionOutgoing
	}
}

// TraversalResult reports what one traversal discovered.
type TraversalResult struct {
	// VisitedNodes holds every visited id in discovery order, start first.
	VisitedNodes []string `json:"visitedNodes"`

	// Depth is the deepest level at which a node was discovered.
	Depth int `json:"depth"`

	// TotalNodesVisited equals len(VisitedNodes).
	TotalNodesVisited int `json:"totalNodesVisited"`

	// MaxDepthReached is true when discovery filled levels all the way to
	// the configured MaxDepth.
	MaxDepthReached bool `json:"maxDepthReached"`

	// HasCycle is true when any expansion returned a neighbor already in
	// the visited set, i.e. an edge pointed back into discovered territory.
	HasCycle bool `json:"hasCycle"`
}

// BreadthFirstTraversal explores the graph level by level from
// opts.StartNode, calling neighbors once per expanded node.
//
// Every node is visited at most once regardless of how many edges lead to it
// or how many times a buggy neighbor function repeats an id; the visited set
// bounds total work by the reachable-node count, so arbitrarily large
// MaxDepth values terminate. A neighbor-function error aborts the traversal
// and propagates unchanged.
func BreadthFirstTraversal(opts TraversalOptions, neighbors NeighborFunc) (*TraversalResult, error) {
	if opts.StartNode == "" {
		return nil, ErrNoStartNode
	}
	if neighbors == nil {
		return nil, ErrNilNeighborFun
	}
	opts.Normalize()

	type queueItem struct {
		id    string
		depth int
	}

	result := &TraversalResult{VisitedNodes: []string{opts.StartNode}}
	visited := map[string]bool{opts.StartNode: true}
	queue := []queueItem{{opts.StartNode, 0}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		// Nodes at the depth limit are visited but never expanded.
		if current.depth >= opts.MaxDepth {
			continue
		}

		adjacent, err := neighbors(current.id, opts.EdgeKinds, opts.Direction)
		if err != nil {
			return nil, err
		}

		// Deduplicate within this call so a repeated id neither enqueues
		// twice nor masquerades as a cycle.
		seen := make(map[string]bool, len(adjacent))
		for _, id := range adjacent {
			if seen[id] {
				continue
			}
			seen[id] = true

			if visited[id] {
				result.HasCycle = true
				continue
			}
			visited[id] = true
			result.VisitedNodes = append(result.VisitedNodes, id)
			if current.depth+1 > result.Depth {
				result.Depth = current.depth + 1
			}
			queue = append(queue, queueItem{id, current.depth + 1})
		}
	}

	result.TotalNodesVisited = len(result.VisitedNodes)
	result.MaxDepthReached = result.Depth == opts.MaxDepth
	return result, nil
}

// FindConnectedNodes returns the ids reachable from start within depth hops,
// following edges in both directions, in discovery order. With excludeStart
// the start id is omitted from the returned slice.
func FindConnectedNodes(start string, depth int, neighbors NeighborFunc, excludeStart bool) ([]string, error) {
	result, err := BreadthFirstTraversal(TraversalOptions{
		StartNode: start,
		MaxDepth:  depth,
		Direction: types.DirectionBoth,
	}, neighbors)
	if err != nil {
		return nil, err
	}
	if excludeStart && len(result.VisitedNodes) > 0 {
		return result.VisitedNodes[1:], nil
	}
	return result.VisitedNodes, nil
}
