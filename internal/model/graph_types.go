package model

// GraphNode is the plain authoring record handed to the graph builder.
type GraphNode struct {
	ID              string      `json:"id"`
	Kind            NodeKind    `json:"kind"`
	ContentKind     ContentKind `json:"contentKind,omitempty"`
	Title           string      `json:"title,omitempty"`
	MediaURL        string      `json:"mediaUrl,omitempty"`
	DurationSeconds int         `json:"durationSeconds,omitempty"`
}

// GraphEdge is the plain authoring record for one directed edge.
// Edge order in the authored list is an advisory priority for
// linearization, not a runtime trainee choice.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}
