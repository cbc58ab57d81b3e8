package versioning

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chronograph-backend/internal/domain"
	"chronograph-backend/internal/repository"
	appErrors "chronograph-backend/pkg/errors"
)

// Migrator clones an entity's live outgoing relationships from the retired
// version onto its successor. Edge types are filtered by an explicit
// allow-list; version edges are never cloned, and the originals on the old
// entity are left untouched as part of the historical snapshot.
type Migrator struct {
	edgeRepo repository.EdgeRepository
	allowed  map[domain.EdgeType]bool
}

// NewMigrator creates a migrator restricted to the given edge types.
func NewMigrator(edgeRepo repository.EdgeRepository, allowList []domain.EdgeType) *Migrator {
	allowed := make(map[domain.EdgeType]bool, len(allowList))
	for _, t := range allowList {
		if t == domain.EdgeTypePreviousVersion {
			continue
		}
		allowed[t] = true
	}
	return &Migrator{edgeRepo: edgeRepo, allowed: allowed}
}

// CloneOutgoing builds the carried-forward edge set for a branch: one new
// edge per allow-listed outgoing edge of the old entity, re-sourced to the
// new entity with its From timestamp reset to the branch time. The clones are
// returned rather than written so the branch transaction can apply them
// atomically.
func (m *Migrator) CloneOutgoing(ctx context.Context, oldID, newID string, branchTime time.Time) ([]*domain.Edge, error) {
	edges, err := m.edgeRepo.FindEdges(ctx, repository.EdgeQuery{SourceID: oldID})
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to list outgoing edges for migration")
	}

	var clones []*domain.Edge
	for _, edge := range edges {
		if edge.IsVersionEdge() || !m.allowed[edge.Type] {
			continue
		}
		clone := edge.Clone()
		clone.ID = uuid.New().String()
		clone.SourceID = newID
		clone.From = branchTime
		clones = append(clones, clone)
	}
	return clones, nil
}
