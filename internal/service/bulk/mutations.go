package bulk

import (
	"context"
	"fmt"

	"chronograph-backend/internal/domain"
	"chronograph-backend/internal/repository"
)

// DeleteMutation permanently removes each entity in the batch along with its
// edges. Destructive and non-versioned; intended for store resets, not the
// normal lifecycle.
func DeleteMutation(repo repository.Repository) Mutation {
	return func(ctx context.Context, batch []*domain.Entity) error {
		for _, entity := range batch {
			if err := repo.DeleteEdgesByEntity(ctx, entity.ID); err != nil {
				return fmt.Errorf("failed to delete edges of %s: %w", entity.ID, err)
			}
			if err := repo.DeleteEntity(ctx, entity.ID); err != nil {
				return fmt.Errorf("failed to delete entity %s: %w", entity.ID, err)
			}
		}
		return nil
	}
}

// RelabelMutation sets each entity in the batch to the given state.
func RelabelMutation(repo repository.Repository, state domain.State) Mutation {
	return func(ctx context.Context, batch []*domain.Entity) error {
		for _, entity := range batch {
			if err := repo.SetState(ctx, entity.ID, state); err != nil {
				return fmt.Errorf("failed to relabel entity %s: %w", entity.ID, err)
			}
		}
		return nil
	}
}

// MatchAll accepts every entity.
func MatchAll(*domain.Entity) bool { return true }

// MatchState accepts entities in the given state.
func MatchState(state domain.State) Matcher {
	return func(e *domain.Entity) bool { return e.State == state }
}
