package domain

import "time"

// EdgeType identifies the relationship a directed edge carries.
type EdgeType string

const (
	// EdgeTypePreviousVersion links a branched entity to the version it
	// superseded (new -> old). Version edges form a simple acyclic chain and
	// are never cloned by the relationship migrator.
	EdgeTypePreviousVersion EdgeType = "PREVIOUS_VERSION"

	// EdgeTypeLinkedTo is the default application relationship between
	// entities of different lineages.
	EdgeTypeLinkedTo EdgeType = "LINKED_TO"
)

// Edge is a directed relationship between two entities. Version edges carry
// the branch timestamp in From; domain edges carry their creation time plus
// type-specific properties.
type Edge struct {
	ID         string     `json:"id"`
	SourceID   string     `json:"source_id"`
	TargetID   string     `json:"target_id"`
	Type       EdgeType   `json:"type"`
	From       time.Time  `json:"from"`
	Properties Properties `json:"properties,omitempty"`
}

// IsVersionEdge reports whether this edge is part of a version chain rather
// than the application graph.
func (e *Edge) IsVersionEdge() bool {
	return e.Type == EdgeTypePreviousVersion
}

// Clone returns a deep copy of the edge.
func (e *Edge) Clone() *Edge {
	if e == nil {
		return nil
	}
	out := *e
	out.Properties = e.Properties.Clone()
	return &out
}
