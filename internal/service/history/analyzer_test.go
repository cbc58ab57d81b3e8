package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronograph-backend/internal/domain"
	"chronograph-backend/internal/infrastructure/persistence/memory"
)

const chainEdge = domain.EdgeTypePreviousVersion

func seedChain(t *testing.T, store *memory.Store, values []float64) []string {
	t.Helper()
	ctx := context.Background()

	ids := make([]string, len(values))
	for i, value := range values {
		ids[i] = string(rune('a' + i))
		require.NoError(t, store.CreateEntity(ctx, &domain.Entity{
			ID:         ids[i],
			LineageID:  "m-" + ids[i],
			Properties: domain.Properties{"downloads": domain.NumberValue(value)},
			State:      domain.StateCurrent,
			CreatedAt:  time.Now(),
		}))
	}
	for i := 0; i+1 < len(ids); i++ {
		require.NoError(t, store.CreateEdge(ctx, &domain.Edge{
			ID:       "edge-" + ids[i],
			SourceID: ids[i],
			TargetID: ids[i+1],
			Type:     chainEdge,
			From:     time.Now(),
		}))
	}
	return ids
}

func TestChainWeightedDifference(t *testing.T) {
	ctx := context.Background()

	t.Run("three node chain", func(t *testing.T) {
		store := memory.NewStore()
		ids := seedChain(t, store, []float64{10, 12, 9})
		analyzer := NewAnalyzer(store, nil)

		results, err := analyzer.ChainWeightedDifference(ctx, ids[0], chainEdge, "downloads")
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.NoError(t, results[0].Err)
		// |10-12| + |12-9| = 5, divided by 2 steps
		assert.InDelta(t, 2.5, results[0].Score, 1e-9)
		assert.Equal(t, ids, results[0].Path)
	})

	t.Run("single node chain scores its raw value", func(t *testing.T) {
		store := memory.NewStore()
		ids := seedChain(t, store, []float64{42})
		analyzer := NewAnalyzer(store, nil)

		results, err := analyzer.ChainWeightedDifference(ctx, ids[0], chainEdge, "downloads")
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.NoError(t, results[0].Err)
		assert.InDelta(t, 42, results[0].Score, 1e-9)
	})

	t.Run("malformed chain isolated from healthy chains", func(t *testing.T) {
		store := memory.NewStore()
		ids := seedChain(t, store, []float64{10, 12})

		// Fork a second chain from the start whose member lacks the field.
		require.NoError(t, store.CreateEntity(ctx, &domain.Entity{
			ID:         "broken",
			LineageID:  "m-broken",
			Properties: domain.Properties{"license": domain.StringValue("mit")},
			State:      domain.StateCurrent,
		}))
		require.NoError(t, store.CreateEdge(ctx, &domain.Edge{
			ID: "edge-broken", SourceID: ids[0], TargetID: "broken", Type: chainEdge,
		}))

		analyzer := NewAnalyzer(store, nil)
		results, err := analyzer.ChainWeightedDifference(ctx, ids[0], chainEdge, "downloads")
		require.NoError(t, err)
		require.Len(t, results, 2)

		var healthy, broken int
		for i, result := range results {
			if result.Err != nil {
				broken++
				assert.ErrorIs(t, result.Err, domain.ErrMalformedChain)
			} else {
				healthy++
				assert.InDelta(t, 2.0, results[i].Score, 1e-9)
			}
		}
		assert.Equal(t, 1, healthy)
		assert.Equal(t, 1, broken)
	})

	t.Run("cycle is cut", func(t *testing.T) {
		store := memory.NewStore()
		ids := seedChain(t, store, []float64{1, 2})
		require.NoError(t, store.CreateEdge(ctx, &domain.Edge{
			ID: "edge-back", SourceID: ids[1], TargetID: ids[0], Type: chainEdge,
		}))

		analyzer := NewAnalyzer(store, nil)
		results, err := analyzer.ChainWeightedDifference(ctx, ids[0], chainEdge, "downloads")
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, ids, results[0].Path)
	})

	t.Run("missing start entity", func(t *testing.T) {
		analyzer := NewAnalyzer(memory.NewStore(), nil)
		_, err := analyzer.ChainWeightedDifference(ctx, "nope", chainEdge, "downloads")
		assert.Error(t, err)
	})
}

func TestPropertyDiff(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	require.NoError(t, store.CreateEntity(ctx, &domain.Entity{
		ID: "p1", LineageID: "m1", State: domain.StateCurrent,
		Properties: domain.Properties{
			"x": domain.NumberValue(1),
			"y": domain.NumberValue(2),
			"z": domain.StringValue("only-left"),
		},
	}))
	require.NoError(t, store.CreateEntity(ctx, &domain.Entity{
		ID: "p2", LineageID: "m2", State: domain.StateCurrent,
		Properties: domain.Properties{
			"x": domain.NumberValue(1),
			"y": domain.NumberValue(3),
			"w": domain.StringValue("only-right"),
		},
	}))

	analyzer := NewAnalyzer(store, nil)

	t.Run("one-sided keys excluded by default", func(t *testing.T) {
		keys, err := analyzer.PropertyDiff(ctx, "p1", "p2", DiffOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"y"}, keys)
	})

	t.Run("missing counts as differing when requested", func(t *testing.T) {
		keys, err := analyzer.PropertyDiff(ctx, "p1", "p2", DiffOptions{IncludeMissing: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"w", "y", "z"}, keys)
	})
}

func TestSimilarEntities(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	add := func(id, lineage string, props domain.Properties) {
		require.NoError(t, store.CreateEntity(ctx, &domain.Entity{
			ID: id, LineageID: lineage, State: domain.StateCurrent, Properties: props,
		}))
	}
	add("ref", "m-ref", domain.Properties{
		"license":  domain.StringValue("mit"),
		"pipeline": domain.StringValue("text-generation"),
		"author":   domain.StringValue("acme"),
	})
	add("close", "m-close", domain.Properties{
		"license":  domain.StringValue("mit"),
		"pipeline": domain.StringValue("text-generation"),
	})
	add("far", "m-far", domain.Properties{
		"license": domain.StringValue("mit"),
	})
	add("unrelated", "m-u", domain.Properties{
		"license": domain.StringValue("gpl"),
	})

	analyzer := NewAnalyzer(store, nil)
	similar, err := analyzer.SimilarEntities(ctx, "ref", 10)
	require.NoError(t, err)

	require.Len(t, similar, 2)
	assert.Equal(t, "close", similar[0].Entity.ID)
	assert.Equal(t, 2, similar[0].Shared)
	assert.Equal(t, "far", similar[1].Entity.ID)
	assert.Equal(t, 1, similar[1].Shared)
}
