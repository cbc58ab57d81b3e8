package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronograph-backend/internal/domain"
	"chronograph-backend/internal/infrastructure/persistence/memory"
	"chronograph-backend/internal/repository"
	"chronograph-backend/internal/service/versioning"
	appErrors "chronograph-backend/pkg/errors"
)

func newVersioner(store *memory.Store) *versioning.Service {
	return versioning.NewService(store, versioning.Config{
		Schema: domain.NewSchema("downloads", "license"),
	}, nil, nil, nil)
}

func TestEntityDetail(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	versioner := newVersioner(store)

	var ids []string
	for i := 1; i <= 3; i++ {
		id, err := versioner.ApplyRecord(ctx, "m1", domain.Properties{
			"downloads": domain.NumberValue(float64(i * 10)),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	svc := NewService(store, nil)
	detail, err := svc.EntityDetail(ctx, "m1")
	require.NoError(t, err)

	assert.Equal(t, ids[2], detail.Current.ID)
	require.Len(t, detail.Chain, 3)
	assert.Equal(t, ids[2], detail.Chain[0].ID)
	assert.Equal(t, ids[0], detail.Chain[2].ID)
	assert.Equal(t, domain.StateHistorical, detail.Chain[2].State)

	t.Run("unknown lineage", func(t *testing.T) {
		_, err := svc.EntityDetail(ctx, "nope")
		assert.True(t, appErrors.IsNotFound(err))
	})
}

func TestListEntities(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.CreateEntity(ctx, &domain.Entity{
			ID:        fmt.Sprintf("e%d", i),
			LineageID: fmt.Sprintf("m%d", i),
			State:     domain.StateCurrent,
			Properties: domain.Properties{
				"downloads": domain.NumberValue(float64(i)),
			},
		}))
	}

	svc := NewService(store, nil)
	page, err := svc.ListEntities(ctx, repository.EntityQuery{State: domain.StateCurrent}, repository.Pagination{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
	assert.True(t, page.HasMore)

	rest, err := svc.ListEntities(ctx, repository.EntityQuery{State: domain.StateCurrent}, repository.Pagination{
		Limit:  3,
		Cursor: page.NextCursor,
	})
	require.NoError(t, err)
	assert.Len(t, rest.Items, 2)
	assert.False(t, rest.HasMore)
}

func TestFacets(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	licenses := []string{"mit", "mit", "apache-2.0", "mit", "gpl"}
	for i, license := range licenses {
		require.NoError(t, store.CreateEntity(ctx, &domain.Entity{
			ID:        fmt.Sprintf("e%d", i),
			LineageID: fmt.Sprintf("m%d", i),
			State:     domain.StateCurrent,
			Properties: domain.Properties{
				"license": domain.StringValue(license),
			},
		}))
	}
	// Historical entities are excluded from facet counts.
	require.NoError(t, store.CreateEntity(ctx, &domain.Entity{
		ID: "old", LineageID: "m-old", State: domain.StateHistorical,
		Properties: domain.Properties{"license": domain.StringValue("mit")},
	}))

	svc := NewService(store, nil)
	facets, err := svc.Facets(ctx, "license")
	require.NoError(t, err)

	require.Len(t, facets, 3)
	assert.Equal(t, FacetCount{Value: "mit", Count: 3}, facets[0])
	assert.Equal(t, FacetCount{Value: "apache-2.0", Count: 1}, facets[1])
	assert.Equal(t, FacetCount{Value: "gpl", Count: 1}, facets[2])

	t.Run("empty property rejected", func(t *testing.T) {
		_, err := svc.Facets(ctx, "")
		assert.True(t, appErrors.IsValidation(err))
	})
}
