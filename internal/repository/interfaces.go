// Package repository defines the data access interfaces for the versioned
// property-graph store. The domain layer stays independent of the concrete
// store; memory and DynamoDB implementations live under
// internal/infrastructure/persistence.
package repository

import (
	"context"

	"chronograph-backend/internal/domain"
)

// EntityRepository handles entity persistence and querying.
type EntityRepository interface {
	CreateEntity(ctx context.Context, entity *domain.Entity) error
	FindEntityByID(ctx context.Context, entityID string) (*domain.Entity, error)

	// FindCurrentByLineage resolves the lineage's Current entity in one call.
	FindCurrentByLineage(ctx context.Context, lineageID string) (*domain.Entity, error)

	FindEntities(ctx context.Context, query EntityQuery) ([]*domain.Entity, error)
	DeleteEntity(ctx context.Context, entityID string) error
	CountEntities(ctx context.Context, query EntityQuery) (int, error)

	// SetState flips an entity's lineage state label.
	SetState(ctx context.Context, entityID string, state domain.State) error

	// UpdateObservations replaces an entity's observation log in place;
	// observation maintenance does not branch a new version.
	UpdateObservations(ctx context.Context, entityID string, log domain.ObservationLog) error

	// GetEntitiesPage supports cursor pagination for large scans.
	GetEntitiesPage(ctx context.Context, query EntityQuery, pagination Pagination) (*EntityPage, error)
}

// EdgeRepository handles directed edges between entities.
type EdgeRepository interface {
	CreateEdge(ctx context.Context, edge *domain.Edge) error
	FindEdges(ctx context.Context, query EdgeQuery) ([]*domain.Edge, error)
	DeleteEdge(ctx context.Context, edgeID string) error
	DeleteEdgesByEntity(ctx context.Context, entityID string) error
}

// LineageRepository maintains the per-lineage current index. The index is the
// authority on which entity is Current; state labels follow it.
type LineageRepository interface {
	// CurrentID returns the id of the lineage's Current entity, or a
	// not-found error for an unknown lineage.
	CurrentID(ctx context.Context, lineageID string) (string, error)

	// CompareAndSwapCurrent atomically moves the current pointer from oldID
	// to newID. oldID is empty for a brand-new lineage. A conflict error
	// means another writer won the race and the caller must re-read.
	CompareAndSwapCurrent(ctx context.Context, lineageID, oldID, newID string) error
}

// BranchSpec describes one branch transaction: retire the old version,
// install the new one, link them, and carry the migrated edges forward.
type BranchSpec struct {
	LineageID     string
	OldID         string
	New           *domain.Entity
	VersionEdge   *domain.Edge
	MigratedEdges []*domain.Edge
}

// TransactionalRepository applies multi-step mutations atomically with
// respect to concurrent readers.
type TransactionalRepository interface {
	// BranchLineage applies the whole branch as one transaction. It fails
	// with a conflict error if the lineage's current entity is no longer
	// spec.OldID, leaving the store untouched.
	BranchLineage(ctx context.Context, spec BranchSpec) error
}

// Repository aggregates the focused interfaces for callers that need the
// full store.
type Repository interface {
	EntityRepository
	EdgeRepository
	LineageRepository
	TransactionalRepository
}
