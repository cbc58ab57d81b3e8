package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronograph-backend/internal/domain"
	"chronograph-backend/internal/infrastructure/persistence/memory"
	"chronograph-backend/internal/repository"
)

func seedEntities(t *testing.T, store *memory.Store, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		require.NoError(t, store.CreateEntity(ctx, &domain.Entity{
			ID:        fmt.Sprintf("e%04d", i),
			LineageID: fmt.Sprintf("m%04d", i),
			State:     domain.StateCurrent,
		}))
	}
}

// countingMutation records batch sizes and asserts no entity is seen twice.
type countingMutation struct {
	mu      sync.Mutex
	batches []int
	seen    map[string]int
}

func newCountingMutation() *countingMutation {
	return &countingMutation{seen: make(map[string]int)}
}

func (m *countingMutation) fn(ctx context.Context, batch []*domain.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, len(batch))
	for _, entity := range batch {
		m.seen[entity.ID]++
	}
	return nil
}

func TestExecuteBatching(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedEntities(t, store, 1237)

	mutation := newCountingMutation()
	executor := NewExecutor(store, nil, nil)

	report, err := executor.Execute(ctx, repository.EntityQuery{}, MatchAll, mutation.fn, Config{
		BatchSize: 500,
	})
	require.NoError(t, err)

	assert.Equal(t, 1237, report.Matched)
	assert.Equal(t, 3, report.Batches)
	assert.Equal(t, 3, report.Succeeded)
	assert.False(t, report.Failed())
	assert.Equal(t, []int{500, 500, 237}, mutation.batches)

	for id, count := range mutation.seen {
		assert.Equal(t, 1, count, "entity %s mutated more than once", id)
	}
	assert.Len(t, mutation.seen, 1237)
}

func TestExecuteParallel(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedEntities(t, store, 1237)

	mutation := newCountingMutation()
	executor := NewExecutor(store, nil, nil)

	report, err := executor.Execute(ctx, repository.EntityQuery{}, MatchAll, mutation.fn, Config{
		BatchSize:      500,
		Parallel:       true,
		MaxConcurrency: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Batches)
	assert.Len(t, mutation.seen, 1237)
	for id, count := range mutation.seen {
		assert.Equal(t, 1, count, "entity %s mutated more than once", id)
	}
}

func TestExecuteMatcherFilters(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedEntities(t, store, 10)
	// Retire half of them.
	for i := 0; i < 10; i += 2 {
		require.NoError(t, store.SetState(ctx, fmt.Sprintf("e%04d", i), domain.StateHistorical))
	}

	mutation := newCountingMutation()
	executor := NewExecutor(store, nil, nil)

	report, err := executor.Execute(ctx, repository.EntityQuery{}, MatchState(domain.StateHistorical), mutation.fn, Config{
		BatchSize: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, report.Matched)
	assert.Equal(t, 2, report.Batches)
}

func TestExecuteReportsBatchFailures(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedEntities(t, store, 9)

	boom := errors.New("constraint violation")
	calls := 0
	failSecond := func(ctx context.Context, batch []*domain.Entity) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	}

	executor := NewExecutor(store, nil, nil)
	report, err := executor.Execute(ctx, repository.EntityQuery{}, MatchAll, failSecond, Config{
		BatchSize: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Batches)
	assert.Equal(t, 2, report.Succeeded)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, 1, report.Failures[0].BatchIndex)
	assert.ErrorIs(t, report.Failures[0].Err, boom)
}

func TestExecuteFailFast(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedEntities(t, store, 9)

	boom := errors.New("constraint violation")
	calls := 0
	failFirst := func(ctx context.Context, batch []*domain.Entity) error {
		calls++
		return boom
	}

	executor := NewExecutor(store, nil, nil)
	report, err := executor.Execute(ctx, repository.EntityQuery{}, MatchAll, failFirst, Config{
		BatchSize: 3,
		FailFast:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "fail-fast stops requesting further batches")
	assert.True(t, report.Failed())
}

func TestDeleteMutationResetsStore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedEntities(t, store, 7)

	executor := NewExecutor(store, nil, nil)
	report, err := executor.Execute(ctx, repository.EntityQuery{}, MatchAll, DeleteMutation(store), Config{
		BatchSize: 3,
	})
	require.NoError(t, err)
	assert.False(t, report.Failed())

	count, err := store.CountEntities(ctx, repository.EntityQuery{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestExecuteNilMutation(t *testing.T) {
	executor := NewExecutor(memory.NewStore(), nil, nil)
	_, err := executor.Execute(context.Background(), repository.EntityQuery{}, MatchAll, nil, Config{})
	assert.Error(t, err)
}
