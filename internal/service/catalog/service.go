// Package catalog is the query surface over the graph: filtered listing with
// pagination, entity detail with its version chain, and facet counts.
package catalog

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"chronograph-backend/internal/domain"
	"chronograph-backend/internal/repository"
	appErrors "chronograph-backend/pkg/errors"
)

// Service answers catalog queries. Read-only.
type Service struct {
	repo   repository.Repository
	logger *zap.Logger
}

// NewService creates a catalog service over the given store.
func NewService(repo repository.Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger}
}

// ListEntities returns one page of entities matching the query.
func (s *Service) ListEntities(ctx context.Context, query repository.EntityQuery, page repository.Pagination) (*repository.EntityPage, error) {
	if err := page.Validate(); err != nil {
		return nil, appErrors.NewValidation(err.Error())
	}
	result, err := s.repo.GetEntitiesPage(ctx, query, page)
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to list entities")
	}
	return result, nil
}

// Detail is one entity's current view plus its full version chain.
type Detail struct {
	Current *domain.Entity
	// Chain holds every version newest to oldest, Current included.
	Chain []*domain.Entity
}

// EntityDetail loads the lineage's current entity and walks its version
// chain.
func (s *Service) EntityDetail(ctx context.Context, lineageID string) (*Detail, error) {
	current, err := s.repo.FindCurrentByLineage(ctx, lineageID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, appErrors.NewNotFound("lineage not found: " + lineageID)
		}
		return nil, appErrors.Wrap(err, "failed to resolve current entity")
	}

	chain := []*domain.Entity{current}
	seen := map[string]bool{current.ID: true}
	id := current.ID
	for id != "" {
		edges, err := s.repo.FindEdges(ctx, repository.EdgeQuery{
			SourceID: id,
			Types:    []domain.EdgeType{domain.EdgeTypePreviousVersion},
		})
		if err != nil {
			return nil, appErrors.Wrap(err, "failed to follow version edge")
		}
		id = ""
		if len(edges) > 0 && !seen[edges[0].TargetID] {
			id = edges[0].TargetID
			seen[id] = true
			entity, err := s.repo.FindEntityByID(ctx, id)
			if err != nil {
				return nil, appErrors.Wrap(err, "failed to load version")
			}
			chain = append(chain, entity)
		}
	}

	return &Detail{Current: current, Chain: chain}, nil
}

// FacetCount is one distinct value of a property and how many current
// entities carry it.
type FacetCount struct {
	Value string
	Count int
}

// Facets counts the distinct values of one property across current entities,
// descending by count, ties broken by value.
func (s *Service) Facets(ctx context.Context, property string) ([]FacetCount, error) {
	if property == "" {
		return nil, appErrors.NewValidation("property cannot be empty")
	}
	entities, err := s.repo.FindEntities(ctx, repository.EntityQuery{State: domain.StateCurrent})
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to list current entities")
	}

	counts := make(map[string]int)
	for _, entity := range entities {
		if value, ok := entity.Properties[property]; ok {
			counts[value.String()]++
		}
	}

	facets := make([]FacetCount, 0, len(counts))
	for value, count := range counts {
		facets = append(facets, FacetCount{Value: value, Count: count})
	}
	sort.Slice(facets, func(i, j int) bool {
		if facets[i].Count != facets[j].Count {
			return facets[i].Count > facets[j].Count
		}
		return facets[i].Value < facets[j].Value
	})
	return facets, nil
}
