package service

import (
	"safetrain_backend/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearNodes(durations ...int) ([]model.GraphNode, []model.GraphEdge) {
	nodes := []model.GraphNode{{ID: "start", Kind: model.NodeStart}}
	edges := []model.GraphEdge{}
	prev := "start"
	for i, d := range durations {
		id := string(rune('a' + i))
		nodes = append(nodes, model.GraphNode{
			ID:              id,
			Kind:            model.NodeContent,
			ContentKind:     model.ContentVideo,
			DurationSeconds: d,
		})
		edges = append(edges, model.GraphEdge{From: prev, To: id})
		prev = id
	}
	nodes = append(nodes, model.GraphNode{ID: "end", Kind: model.NodeEnd})
	edges = append(edges, model.GraphEdge{From: prev, To: "end"})
	return nodes, edges
}

func errorCodes(errs []GraphError) []GraphErrorCode {
	codes := make([]GraphErrorCode, 0, len(errs))
	for _, e := range errs {
		codes = append(codes, e.Code)
	}
	return codes
}

func TestBuildCourseGraphLinear(t *testing.T) {
	nodes, edges := linearNodes(5, 10, 15)

	graph, errs := BuildCourseGraph(nodes, edges)
	require.Empty(t, errs)
	require.NotNil(t, graph)

	assert.Equal(t, []string{"start", "a", "b", "c", "end"}, graph.LinearOrder)
	assert.Equal(t, 30, graph.TotalDurationSeconds)
}

func TestBuildCourseGraphDeterministic(t *testing.T) {
	nodes := []model.GraphNode{
		{ID: "start", Kind: model.NodeStart},
		{ID: "a", Kind: model.NodeContent, ContentKind: model.ContentVideo, DurationSeconds: 60},
		{ID: "b", Kind: model.NodeContent, ContentKind: model.ContentImage},
		{ID: "end", Kind: model.NodeEnd},
	}
	// Branch: both a and b hang off start; edge order decides priority.
	edges := []model.GraphEdge{
		{From: "start", To: "a"},
		{From: "start", To: "b"},
		{From: "a", To: "end"},
		{From: "b", To: "end"},
	}

	first, errs := BuildCourseGraph(nodes, edges)
	require.Empty(t, errs)

	for i := 0; i < 10; i++ {
		again, errs := BuildCourseGraph(nodes, edges)
		require.Empty(t, errs)
		assert.Equal(t, first.LinearOrder, again.LinearOrder)
		assert.Equal(t, first.TotalDurationSeconds, again.TotalDurationSeconds)
	}

	// The branch authored first is linearized first.
	assert.Equal(t, []string{"start", "a", "b", "end"}, first.LinearOrder)
}

func TestBuildCourseGraphOnlyVideoCountsTowardDuration(t *testing.T) {
	nodes := []model.GraphNode{
		{ID: "start", Kind: model.NodeStart},
		{ID: "v", Kind: model.NodeContent, ContentKind: model.ContentVideo, DurationSeconds: 300},
		{ID: "p", Kind: model.NodeContent, ContentKind: model.ContentPDF, DurationSeconds: 999},
		{ID: "i", Kind: model.NodeContent, ContentKind: model.ContentImage},
		{ID: "end", Kind: model.NodeEnd},
	}
	edges := []model.GraphEdge{
		{From: "start", To: "v"},
		{From: "v", To: "p"},
		{From: "p", To: "i"},
		{From: "i", To: "end"},
	}

	graph, errs := BuildCourseGraph(nodes, edges)
	require.Empty(t, errs)
	assert.Equal(t, 300, graph.TotalDurationSeconds)
}

func TestBuildCourseGraphCycleRejected(t *testing.T) {
	nodes := []model.GraphNode{
		{ID: "start", Kind: model.NodeStart},
		{ID: "a", Kind: model.NodeContent, ContentKind: model.ContentVideo, DurationSeconds: 10},
		{ID: "b", Kind: model.NodeContent, ContentKind: model.ContentVideo, DurationSeconds: 10},
		{ID: "end", Kind: model.NodeEnd},
	}
	edges := []model.GraphEdge{
		{From: "start", To: "a"},
		{From: "a", To: "b"},
		{From: "b", To: "a"},
		{From: "b", To: "end"},
	}

	graph, errs := BuildCourseGraph(nodes, edges)
	assert.Nil(t, graph, "a cyclic graph must not yield a partial result")
	assert.Contains(t, errorCodes(errs), CycleDetected)
}

func TestBuildCourseGraphSelfLoop(t *testing.T) {
	nodes := []model.GraphNode{
		{ID: "start", Kind: model.NodeStart},
		{ID: "a", Kind: model.NodeContent, ContentKind: model.ContentVideo},
		{ID: "end", Kind: model.NodeEnd},
	}
	edges := []model.GraphEdge{
		{From: "start", To: "a"},
		{From: "a", To: "a"},
		{From: "a", To: "end"},
	}

	graph, errs := BuildCourseGraph(nodes, edges)
	assert.Nil(t, graph)
	assert.Contains(t, errorCodes(errs), CycleDetected)
}

func TestBuildCourseGraphStartEndViolations(t *testing.T) {
	t.Run("no start", func(t *testing.T) {
		nodes := []model.GraphNode{
			{ID: "a", Kind: model.NodeContent, ContentKind: model.ContentVideo},
			{ID: "end", Kind: model.NodeEnd},
		}
		edges := []model.GraphEdge{{From: "a", To: "end"}}

		graph, errs := BuildCourseGraph(nodes, edges)
		assert.Nil(t, graph)
		assert.Contains(t, errorCodes(errs), MultipleOrMissingStart)
	})

	t.Run("two starts", func(t *testing.T) {
		nodes := []model.GraphNode{
			{ID: "s1", Kind: model.NodeStart},
			{ID: "s2", Kind: model.NodeStart},
			{ID: "end", Kind: model.NodeEnd},
		}
		edges := []model.GraphEdge{
			{From: "s1", To: "end"},
			{From: "s2", To: "end"},
		}

		graph, errs := BuildCourseGraph(nodes, edges)
		assert.Nil(t, graph)
		assert.Contains(t, errorCodes(errs), MultipleOrMissingStart)
	})

	t.Run("no end", func(t *testing.T) {
		nodes := []model.GraphNode{
			{ID: "start", Kind: model.NodeStart},
			{ID: "a", Kind: model.NodeContent, ContentKind: model.ContentVideo},
		}
		edges := []model.GraphEdge{{From: "start", To: "a"}}

		graph, errs := BuildCourseGraph(nodes, edges)
		assert.Nil(t, graph)
		assert.Contains(t, errorCodes(errs), NoEndNode)
	})
}

func TestBuildCourseGraphDanglingEdge(t *testing.T) {
	nodes, edges := linearNodes(5)
	edges = append(edges, model.GraphEdge{From: "a", To: "ghost"})

	graph, errs := BuildCourseGraph(nodes, edges)
	assert.Nil(t, graph)
	assert.Contains(t, errorCodes(errs), DanglingEdge)
}

func TestBuildCourseGraphUnreachableNode(t *testing.T) {
	nodes := []model.GraphNode{
		{ID: "start", Kind: model.NodeStart},
		{ID: "a", Kind: model.NodeContent, ContentKind: model.ContentVideo},
		{ID: "island", Kind: model.NodeContent, ContentKind: model.ContentVideo},
		{ID: "end", Kind: model.NodeEnd},
	}
	edges := []model.GraphEdge{
		{From: "start", To: "a"},
		{From: "a", To: "end"},
		{From: "island", To: "end"},
	}

	graph, errs := BuildCourseGraph(nodes, edges)
	assert.Nil(t, graph)
	assert.Contains(t, errorCodes(errs), UnreachableNode)
}

func TestBuildCourseGraphReportsAllErrorsAtOnce(t *testing.T) {
	// Two starts, no end, and a dangling edge: all three must be in the
	// batch so the author can fix everything in one pass.
	nodes := []model.GraphNode{
		{ID: "s1", Kind: model.NodeStart},
		{ID: "s2", Kind: model.NodeStart},
		{ID: "a", Kind: model.NodeContent, ContentKind: model.ContentVideo},
	}
	edges := []model.GraphEdge{
		{From: "s1", To: "a"},
		{From: "a", To: "ghost"},
	}

	graph, errs := BuildCourseGraph(nodes, edges)
	assert.Nil(t, graph)

	codes := errorCodes(errs)
	assert.Contains(t, codes, MultipleOrMissingStart)
	assert.Contains(t, codes, NoEndNode)
	assert.Contains(t, codes, DanglingEdge)
}
