package messaging

import "time"

const (
	EventTypeVersionBranched   = "version.branched"
	EventTypeLineageCreated    = "lineage.created"
	EventTypeObservationsDedup = "observations.deduplicated"
)

// VersionBranchedEvent signals that a lineage gained a new current version.
type VersionBranchedEvent struct {
	BaseEvent
	OldEntityID string `json:"old_entity_id"`
	NewEntityID string `json:"new_entity_id"`
}

// NewVersionBranchedEvent creates a branch event for the given lineage.
func NewVersionBranchedEvent(lineageID, oldID, newID string, at time.Time) VersionBranchedEvent {
	return VersionBranchedEvent{
		BaseEvent:   newBaseEvent(EventTypeVersionBranched, lineageID, at),
		OldEntityID: oldID,
		NewEntityID: newID,
	}
}

// LineageCreatedEvent signals that a lineage received its first version.
type LineageCreatedEvent struct {
	BaseEvent
	EntityID string `json:"entity_id"`
}

// NewLineageCreatedEvent creates a first-version event for the given lineage.
func NewLineageCreatedEvent(lineageID, entityID string, at time.Time) LineageCreatedEvent {
	return LineageCreatedEvent{
		BaseEvent: newBaseEvent(EventTypeLineageCreated, lineageID, at),
		EntityID:  entityID,
	}
}

// ObservationsDedupEvent signals that an entity's observation log was
// compacted, with the number of entries removed.
type ObservationsDedupEvent struct {
	BaseEvent
	EntityID string `json:"entity_id"`
	Removed  int    `json:"removed"`
}

// NewObservationsDedupEvent creates a dedup event for the given entity.
func NewObservationsDedupEvent(lineageID, entityID string, removed int, at time.Time) ObservationsDedupEvent {
	return ObservationsDedupEvent{
		BaseEvent: newBaseEvent(EventTypeObservationsDedup, lineageID, at),
		EntityID:  entityID,
		Removed:   removed,
	}
}
