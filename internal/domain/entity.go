// Package domain defines the entities, edges, and value types of the
// temporal property-graph: every logical object is a lineage of immutable
// entity versions linked by PREVIOUS_VERSION edges, with exactly one version
// holding the Current state at any time.
package domain

import "time"

// State marks an entity's place in its lineage lifecycle.
type State string

const (
	// StateCurrent marks the single live version of a lineage.
	StateCurrent State = "CURRENT"
	// StateHistorical marks superseded versions.
	StateHistorical State = "HISTORICAL"
)

// Entity is one version of a logical object. Entities are created either as
// the first version of a lineage or by branching; they become Historical only
// when superseded, never mutated in place.
type Entity struct {
	ID           string         `json:"id"`
	LineageID    string         `json:"lineage_id"`
	Properties   Properties     `json:"properties"`
	State        State          `json:"state"`
	CreatedAt    time.Time      `json:"created_at"`
	Version      int            `json:"version"`
	Observations ObservationLog `json:"observations,omitempty"`
}

// IsCurrent reports whether this entity is the live version of its lineage.
func (e *Entity) IsCurrent() bool {
	return e.State == StateCurrent
}

// Clone returns a deep copy so repository callers never alias stored state.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	out := *e
	out.Properties = e.Properties.Clone()
	out.Observations = e.Observations.Clone()
	return &out
}

// ObservationLog is an ordered pair of parallel sequences recording discrete
// timestamped observations (for example search queries) against one entity.
// Invariant: len(Values) == len(Timestamps).
type ObservationLog struct {
	Values     []string    `json:"values,omitempty"`
	Timestamps []time.Time `json:"timestamps,omitempty"`
}

// Len returns the number of recorded observations.
func (l ObservationLog) Len() int {
	return len(l.Values)
}

// Append records one observation, keeping the sequences parallel.
func (l *ObservationLog) Append(value string, at time.Time) {
	l.Values = append(l.Values, value)
	l.Timestamps = append(l.Timestamps, at)
}

// Clone returns an independent copy of the log.
func (l ObservationLog) Clone() ObservationLog {
	out := ObservationLog{}
	if l.Values != nil {
		out.Values = append([]string(nil), l.Values...)
	}
	if l.Timestamps != nil {
		out.Timestamps = append([]time.Time(nil), l.Timestamps...)
	}
	return out
}

// Validate checks the parallel-sequence invariant.
func (l ObservationLog) Validate() error {
	if len(l.Values) != len(l.Timestamps) {
		return ErrObservationLogSkew
	}
	return nil
}
