package repository

import (
	"sort"
	"strings"

	"chronograph-backend/internal/domain"
)

// Sort orders accepted by entity queries.
const (
	SortOrderAsc  = "asc"
	SortOrderDesc = "desc"
)

// EntityQuery expresses entity filters in domain terms. Zero values mean
// "no filter".
type EntityQuery struct {
	// LineageID restricts results to one lineage.
	LineageID string

	// State restricts results to Current or Historical entities.
	State domain.State

	// Search matches case-insensitively against string property values.
	Search string

	// PropertyEquals requires exact matches on the given properties.
	PropertyEquals domain.Properties

	// MinNumber requires numeric properties to be at least the given value.
	MinNumber map[string]float64

	// SortBy names the property to sort on; empty sorts by creation time.
	SortBy    string
	SortOrder string
}

// Matches reports whether the entity satisfies every filter in the query.
// Both store implementations delegate here so filter semantics cannot drift.
func (q EntityQuery) Matches(entity *domain.Entity) bool {
	if q.LineageID != "" && entity.LineageID != q.LineageID {
		return false
	}
	if q.State != "" && entity.State != q.State {
		return false
	}
	if q.Search != "" && !searchMatches(entity, q.Search) {
		return false
	}
	for key, want := range q.PropertyEquals {
		got, ok := entity.Properties[key]
		if !ok || !got.Equal(want) {
			return false
		}
	}
	for key, min := range q.MinNumber {
		num, ok := entity.Properties[key].Number()
		if !ok || num < min {
			return false
		}
	}
	return true
}

func searchMatches(entity *domain.Entity, search string) bool {
	needle := strings.ToLower(search)
	if strings.Contains(strings.ToLower(entity.LineageID), needle) {
		return true
	}
	for _, value := range entity.Properties {
		if value.Kind == domain.KindString && strings.Contains(strings.ToLower(value.Str), needle) {
			return true
		}
	}
	return false
}

// SortEntities orders entities in place per the query's SortBy/SortOrder.
// An empty SortBy orders by creation time.
func SortEntities(entities []*domain.Entity, query EntityQuery) {
	desc := query.SortOrder == SortOrderDesc
	sort.SliceStable(entities, func(i, j int) bool {
		var less bool
		if query.SortBy == "" {
			less = entities[i].CreatedAt.Before(entities[j].CreatedAt)
		} else {
			less = valueLess(entities[i].Properties[query.SortBy], entities[j].Properties[query.SortBy])
		}
		if desc {
			return !less
		}
		return less
	})
}

func valueLess(a, b domain.Value) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	switch a.Kind {
	case domain.KindNumber:
		return a.Num < b.Num
	case domain.KindTime:
		return a.Time.Before(b.Time)
	default:
		return a.Str < b.Str
	}
}

// EdgeQuery expresses edge filters. SourceID-only queries list an entity's
// outgoing edges; Types narrows by relationship type.
type EdgeQuery struct {
	SourceID string
	TargetID string
	Types    []domain.EdgeType
}

// WantsType reports whether the query accepts edges of the given type.
func (q EdgeQuery) WantsType(t domain.EdgeType) bool {
	if len(q.Types) == 0 {
		return true
	}
	for _, want := range q.Types {
		if want == t {
			return true
		}
	}
	return false
}
