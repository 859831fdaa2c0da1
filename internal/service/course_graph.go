package service

import (
	"fmt"
	"safetrain_backend/internal/model"
	"sort"
)

type GraphErrorCode string

const (
	CycleDetected          GraphErrorCode = "CYCLE_DETECTED"
	UnreachableNode        GraphErrorCode = "UNREACHABLE_NODE"
	MultipleOrMissingStart GraphErrorCode = "MULTIPLE_OR_MISSING_START"
	NoEndNode              GraphErrorCode = "NO_END_NODE"
	DanglingEdge           GraphErrorCode = "DANGLING_EDGE"
	DuplicateNode          GraphErrorCode = "DUPLICATE_NODE"
	DeadEndNode            GraphErrorCode = "DEAD_END_NODE"
)

// GraphError is one structural problem found while building a course
// graph. Build reports every problem it finds in one batch so the
// author can fix them all at once.
type GraphError struct {
	Code    GraphErrorCode `json:"code"`
	NodeID  string         `json:"nodeId,omitempty"`
	Message string         `json:"message"`
}

func (e GraphError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: %s (node %s)", e.Code, e.Message, e.NodeID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CourseGraph is a validated, immutable course layout. LinearOrder and
// TotalDurationSeconds are computed once at build time; the value is
// safe to share across goroutines without synchronization.
type CourseGraph struct {
	Nodes                map[string]model.GraphNode
	Edges                []model.GraphEdge
	LinearOrder          []string
	TotalDurationSeconds int
}

// BuildCourseGraph validates the authored nodes and edges and, when
// the shape is sound, linearizes them into one deterministic playback
// order. On any structural problem it returns nil and the full list of
// errors; it never returns a partial graph.
//
// Determinism: ties in the topological order are broken by the
// position of the node's first incoming edge in the authored edge
// list, so identical input always yields an identical LinearOrder.
func BuildCourseGraph(nodes []model.GraphNode, edges []model.GraphEdge) (*CourseGraph, []GraphError) {
	var errs []GraphError

	nodeSet := make(map[string]model.GraphNode, len(nodes))
	var startID string
	startCount := 0
	endCount := 0

	for _, n := range nodes {
		if _, dup := nodeSet[n.ID]; dup {
			errs = append(errs, GraphError{Code: DuplicateNode, NodeID: n.ID, Message: "node id used more than once"})
			continue
		}
		nodeSet[n.ID] = n
		switch n.Kind {
		case model.NodeStart:
			startCount++
			startID = n.ID
		case model.NodeEnd:
			endCount++
		}
	}

	if startCount != 1 {
		errs = append(errs, GraphError{Code: MultipleOrMissingStart, Message: fmt.Sprintf("course must have exactly one start node, found %d", startCount)})
	}
	if endCount == 0 {
		errs = append(errs, GraphError{Code: NoEndNode, Message: "course must have at least one end node"})
	}

	// Adjacency and degrees. Dangling edges are reported but excluded
	// from the traversal so the remaining checks still run.
	adjacency := make(map[string][]string, len(nodeSet))
	inDegree := make(map[string]int, len(nodeSet))
	outDegree := make(map[string]int, len(nodeSet))
	firstIncoming := make(map[string]int, len(nodeSet))

	for pos, e := range edges {
		_, fromOK := nodeSet[e.From]
		_, toOK := nodeSet[e.To]
		if !fromOK || !toOK {
			errs = append(errs, GraphError{Code: DanglingEdge, Message: fmt.Sprintf("edge %s -> %s references an unknown node", e.From, e.To)})
			continue
		}
		if e.From == e.To {
			errs = append(errs, GraphError{Code: CycleDetected, NodeID: e.From, Message: "node has an edge to itself"})
			continue
		}
		adjacency[e.From] = append(adjacency[e.From], e.To)
		inDegree[e.To]++
		outDegree[e.From]++
		if _, seen := firstIncoming[e.To]; !seen {
			firstIncoming[e.To] = pos
		}
	}

	errs = append(errs, detectCycles(nodeSet, adjacency)...)

	// Degree rules: everything but the start is entered, everything but
	// an end exits.
	for _, n := range sortedNodeIDs(nodeSet) {
		node := nodeSet[n]
		if node.Kind != model.NodeStart && inDegree[n] == 0 {
			errs = append(errs, GraphError{Code: UnreachableNode, NodeID: n, Message: "node has no incoming edge"})
		}
		if node.Kind != model.NodeEnd && outDegree[n] == 0 {
			errs = append(errs, GraphError{Code: DeadEndNode, NodeID: n, Message: "non-end node has no outgoing edge"})
		}
	}

	// Reachability from the start, only meaningful with a unique start.
	if startCount == 1 {
		reached := make(map[string]bool, len(nodeSet))
		var walk func(id string)
		walk = func(id string) {
			if reached[id] {
				return
			}
			reached[id] = true
			for _, next := range adjacency[id] {
				walk(next)
			}
		}
		walk(startID)
		for _, n := range sortedNodeIDs(nodeSet) {
			if !reached[n] && inDegree[n] > 0 {
				errs = append(errs, GraphError{Code: UnreachableNode, NodeID: n, Message: "node is not reachable from the start node"})
			}
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	order := linearize(nodeSet, adjacency, inDegree, firstIncoming, startID)

	total := 0
	for _, id := range order {
		n := nodeSet[id]
		if n.Kind == model.NodeContent && n.ContentKind == model.ContentVideo {
			total += n.DurationSeconds
		}
	}

	return &CourseGraph{
		Nodes:                nodeSet,
		Edges:                edges,
		LinearOrder:          order,
		TotalDurationSeconds: total,
	}, nil
}

// detectCycles runs a DFS with an explicit recursion stack over every
// node and reports each node where a back edge closes a cycle.
func detectCycles(nodes map[string]model.GraphNode, adjacency map[string][]string) []GraphError {
	const (
		white = 0 // unvisited
		grey  = 1 // on the recursion stack
		black = 2 // finished
	)
	color := make(map[string]int, len(nodes))
	var errs []GraphError

	var visit func(id string)
	visit = func(id string) {
		color[id] = grey
		for _, next := range adjacency[id] {
			switch color[next] {
			case white:
				visit(next)
			case grey:
				errs = append(errs, GraphError{Code: CycleDetected, NodeID: next, Message: "node participates in a cycle"})
			}
		}
		color[id] = black
	}

	for _, id := range sortedNodeIDs(nodes) {
		if color[id] == white {
			visit(id)
		}
	}
	return errs
}

// linearize is Kahn's algorithm with a deterministic tie-break: among
// ready nodes the one whose first incoming edge appears earliest in
// the authored edge list goes first. The start node has no incoming
// edge and always leads.
func linearize(nodes map[string]model.GraphNode, adjacency map[string][]string, inDegree map[string]int, firstIncoming map[string]int, startID string) []string {
	remaining := make(map[string]int, len(nodes))
	for id := range nodes {
		remaining[id] = inDegree[id]
	}

	ready := []string{startID}
	order := make([]string, 0, len(nodes))

	for len(ready) > 0 {
		best := 0
		for i := 1; i < len(ready); i++ {
			if firstIncoming[ready[i]] < firstIncoming[ready[best]] {
				best = i
			}
		}
		id := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		order = append(order, id)

		for _, next := range adjacency[id] {
			remaining[next]--
			if remaining[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	return order
}

func sortedNodeIDs(nodes map[string]model.GraphNode) []string {
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
