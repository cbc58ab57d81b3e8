package ingestion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronograph-backend/internal/domain"
	"chronograph-backend/internal/infrastructure/persistence/memory"
	"chronograph-backend/internal/repository"
	"chronograph-backend/internal/service/versioning"
)

func newProcessor(store *memory.Store) *Processor {
	versioner := versioning.NewService(store, versioning.Config{
		Schema: domain.NewSchema("downloads"),
	}, nil, nil, nil)
	return NewProcessor(versioner, DefaultBreakerConfig(), nil)
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	processor := newProcessor(store)

	id, err := processor.Apply(ctx, Record{
		LineageID:  "m1",
		Properties: domain.Properties{"downloads": domain.NumberValue(10)},
	})
	require.NoError(t, err)

	entity, err := store.FindEntityByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCurrent, entity.State)

	t.Run("empty lineage rejected", func(t *testing.T) {
		_, err := processor.Apply(ctx, Record{})
		assert.Error(t, err)
	})
}

func TestRunDrainsFeed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	processor := newProcessor(store)

	feed := make(chan Record, 4)
	feed <- Record{LineageID: "m1", Properties: domain.Properties{"downloads": domain.NumberValue(1)}}
	feed <- Record{LineageID: "m1", Properties: domain.Properties{"downloads": domain.NumberValue(2)}}
	feed <- Record{LineageID: "m2", Properties: domain.Properties{"downloads": domain.NumberValue(1)}}
	// Malformed records are logged and skipped, not fatal.
	feed <- Record{LineageID: ""}
	close(feed)

	require.NoError(t, processor.Run(ctx, feed))

	m1, err := store.CountEntities(ctx, repository.EntityQuery{LineageID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, 2, m1)

	m2, err := store.CountEntities(ctx, repository.EntityQuery{LineageID: "m2"})
	require.NoError(t, err)
	assert.Equal(t, 1, m2)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	processor := newProcessor(memory.NewStore())
	feed := make(chan Record)
	assert.ErrorIs(t, processor.Run(ctx, feed), context.Canceled)
}
