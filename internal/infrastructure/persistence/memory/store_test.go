package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronograph-backend/internal/domain"
	"chronograph-backend/internal/repository"
)

func newEntity(id, lineageID string, state domain.State, props domain.Properties) *domain.Entity {
	return &domain.Entity{
		ID:         id,
		LineageID:  lineageID,
		Properties: props,
		State:      state,
		CreatedAt:  time.Now(),
	}
}

func TestCompareAndSwapCurrent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	t.Run("first install requires empty old id", func(t *testing.T) {
		require.NoError(t, store.CompareAndSwapCurrent(ctx, "m1", "", "e1"))

		id, err := store.CurrentID(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, "e1", id)
	})

	t.Run("swap succeeds when pointer matches", func(t *testing.T) {
		require.NoError(t, store.CompareAndSwapCurrent(ctx, "m1", "e1", "e2"))
	})

	t.Run("stale old id conflicts", func(t *testing.T) {
		err := store.CompareAndSwapCurrent(ctx, "m1", "e1", "e3")
		assert.True(t, repository.IsConflict(err))
	})

	t.Run("duplicate lineage creation conflicts", func(t *testing.T) {
		err := store.CompareAndSwapCurrent(ctx, "m1", "", "e4")
		assert.True(t, repository.IsConflict(err))
	})
}

func TestFindCurrentByLineage(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	entity := newEntity("e1", "m1", domain.StateCurrent, domain.Properties{"a": domain.NumberValue(1)})
	require.NoError(t, store.CreateEntity(ctx, entity))
	require.NoError(t, store.CompareAndSwapCurrent(ctx, "m1", "", "e1"))

	current, err := store.FindCurrentByLineage(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "e1", current.ID)

	_, err = store.FindCurrentByLineage(ctx, "unknown")
	assert.True(t, repository.IsNotFound(err))
}

func TestBranchLineageAtomicity(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	old := newEntity("e1", "m1", domain.StateCurrent, domain.Properties{"a": domain.NumberValue(1)})
	require.NoError(t, store.CreateEntity(ctx, old))
	require.NoError(t, store.CompareAndSwapCurrent(ctx, "m1", "", "e1"))

	next := newEntity("e2", "m1", domain.StateCurrent, domain.Properties{"a": domain.NumberValue(2)})
	spec := repository.BranchSpec{
		LineageID: "m1",
		OldID:     "e1",
		New:       next,
		VersionEdge: &domain.Edge{
			ID:       "v1",
			SourceID: "e2",
			TargetID: "e1",
			Type:     domain.EdgeTypePreviousVersion,
			From:     time.Now(),
		},
	}
	require.NoError(t, store.BranchLineage(ctx, spec))

	id, err := store.CurrentID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "e2", id)

	retired, err := store.FindEntityByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateHistorical, retired.State)

	edges, err := store.FindEdges(ctx, repository.EdgeQuery{
		SourceID: "e2",
		Types:    []domain.EdgeType{domain.EdgeTypePreviousVersion},
	})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "e1", edges[0].TargetID)

	t.Run("stale branch is rejected whole", func(t *testing.T) {
		stale := repository.BranchSpec{
			LineageID: "m1",
			OldID:     "e1", // pointer moved to e2 already
			New:       newEntity("e3", "m1", domain.StateCurrent, nil),
		}
		err := store.BranchLineage(ctx, stale)
		require.True(t, repository.IsConflict(err))

		_, err = store.FindEntityByID(ctx, "e3")
		assert.True(t, repository.IsNotFound(err))
	})
}

func TestFindEntitiesFilters(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.CreateEntity(ctx, newEntity("e1", "m1", domain.StateCurrent, domain.Properties{
		"license":   domain.StringValue("mit"),
		"downloads": domain.NumberValue(100),
	})))
	require.NoError(t, store.CreateEntity(ctx, newEntity("e2", "m2", domain.StateHistorical, domain.Properties{
		"license":   domain.StringValue("apache-2.0"),
		"downloads": domain.NumberValue(5),
	})))

	byState, err := store.FindEntities(ctx, repository.EntityQuery{State: domain.StateCurrent})
	require.NoError(t, err)
	require.Len(t, byState, 1)
	assert.Equal(t, "e1", byState[0].ID)

	byProp, err := store.FindEntities(ctx, repository.EntityQuery{
		PropertyEquals: domain.Properties{"license": domain.StringValue("apache-2.0")},
	})
	require.NoError(t, err)
	require.Len(t, byProp, 1)
	assert.Equal(t, "e2", byProp[0].ID)

	byMin, err := store.FindEntities(ctx, repository.EntityQuery{
		MinNumber: map[string]float64{"downloads": 50},
	})
	require.NoError(t, err)
	require.Len(t, byMin, 1)
	assert.Equal(t, "e1", byMin[0].ID)

	bySearch, err := store.FindEntities(ctx, repository.EntityQuery{Search: "MIT"})
	require.NoError(t, err)
	require.Len(t, bySearch, 1)
	assert.Equal(t, "e1", bySearch[0].ID)
}

func TestGetEntitiesPage(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	for i := 0; i < 7; i++ {
		id := fmt.Sprintf("e%d", i)
		require.NoError(t, store.CreateEntity(ctx, newEntity(id, "m"+id, domain.StateCurrent, nil)))
	}

	var seen []string
	cursor := ""
	pages := 0
	for {
		page, err := store.GetEntitiesPage(ctx, repository.EntityQuery{}, repository.Pagination{
			Limit:  3,
			Cursor: cursor,
		})
		require.NoError(t, err)
		pages++
		for _, entity := range page.Items {
			seen = append(seen, entity.ID)
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	assert.Equal(t, 3, pages)
	assert.Equal(t, []string{"e0", "e1", "e2", "e3", "e4", "e5", "e6"}, seen)
}

func TestGetEntitiesPageSurvivesCursorEntityDeletion(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("e%d", i)
		require.NoError(t, store.CreateEntity(ctx, newEntity(id, "m"+id, domain.StateCurrent, nil)))
	}

	first, err := store.GetEntitiesPage(ctx, repository.EntityQuery{}, repository.Pagination{Limit: 2})
	require.NoError(t, err)
	require.True(t, first.HasMore)
	require.Len(t, first.Items, 2)
	require.Equal(t, "e1", first.Items[1].ID)

	// The entity the cursor was issued against disappears between pages.
	require.NoError(t, store.DeleteEntity(ctx, "e1"))

	second, err := store.GetEntitiesPage(ctx, repository.EntityQuery{}, repository.Pagination{
		Limit:  2,
		Cursor: first.NextCursor,
	})
	require.NoError(t, err)

	var ids []string
	for _, entity := range second.Items {
		ids = append(ids, entity.ID)
	}
	assert.Equal(t, []string{"e2", "e3"}, ids, "no entity from the first page may be served again")
	assert.False(t, second.HasMore)
}

func TestDeleteEntityCleansUp(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.CreateEntity(ctx, newEntity("e1", "m1", domain.StateCurrent, nil)))
	require.NoError(t, store.CompareAndSwapCurrent(ctx, "m1", "", "e1"))
	require.NoError(t, store.CreateEdge(ctx, &domain.Edge{
		ID: "l1", SourceID: "e1", TargetID: "e9", Type: domain.EdgeTypeLinkedTo,
	}))

	require.NoError(t, store.DeleteEntity(ctx, "e1"))

	_, err := store.FindEntityByID(ctx, "e1")
	assert.True(t, repository.IsNotFound(err))
	_, err = store.CurrentID(ctx, "m1")
	assert.True(t, repository.IsNotFound(err))

	edges, err := store.FindEdges(ctx, repository.EdgeQuery{SourceID: "e1"})
	require.NoError(t, err)
	assert.Empty(t, edges)
}
