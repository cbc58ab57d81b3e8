// Package bulk applies a mutation over a large entity selection in
// fixed-size batches, bounding transaction size and memory.
package bulk

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chronograph-backend/internal/domain"
	"chronograph-backend/internal/observability"
	"chronograph-backend/internal/repository"
	appErrors "chronograph-backend/pkg/errors"
)

// Matcher selects candidate entities for a bulk run.
type Matcher func(*domain.Entity) bool

// Mutation is applied to one batch of matched entities. Batches within a run
// never overlap, so a mutation needs no cross-batch coordination.
type Mutation func(ctx context.Context, batch []*domain.Entity) error

// Config controls batching behavior.
type Config struct {
	// BatchSize caps how many entities one mutation call receives.
	BatchSize int
	// Parallel applies batches concurrently instead of sequentially.
	Parallel bool
	// MaxConcurrency bounds in-flight batches when Parallel is set.
	MaxConcurrency int
	// FailFast stops requesting further batches after the first failure.
	// Committed batches stay committed either way; there is no rollback.
	FailFast bool
}

// DefaultBatchSize is used when the config leaves BatchSize unset.
const DefaultBatchSize = 500

// BatchFailure records one failed batch in the run report.
type BatchFailure struct {
	BatchIndex int
	Size       int
	Err        error
}

// Report summarizes a completed run.
type Report struct {
	Matched   int
	Batches   int
	Succeeded int
	Failures  []BatchFailure
}

// Failed reports whether any batch failed.
func (r *Report) Failed() bool { return len(r.Failures) > 0 }

// Executor runs bulk mutations over the store.
type Executor struct {
	repo    repository.Repository
	metrics *observability.Collector
	logger  *zap.Logger
}

// NewExecutor creates a bulk executor over the given store.
func NewExecutor(repo repository.Repository, metrics *observability.Collector, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{repo: repo, metrics: metrics, logger: logger}
}

// Execute selects all entities accepted by the matcher and applies the
// mutation batch by batch. The selection is fixed up front from cursor pages
// so no entity is mutated twice even if the mutation itself changes what the
// matcher would accept.
func (e *Executor) Execute(ctx context.Context, query repository.EntityQuery, match Matcher, mutate Mutation, cfg Config) (*Report, error) {
	if mutate == nil {
		return nil, appErrors.NewValidation("mutation cannot be nil")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}

	iter := newBatchIterator(e.repo, query, match, cfg.BatchSize)
	report := &Report{}

	if cfg.Parallel {
		if err := e.runParallel(ctx, iter, mutate, cfg, report); err != nil {
			return report, err
		}
	} else {
		if err := e.runSequential(ctx, iter, mutate, cfg, report); err != nil {
			return report, err
		}
	}

	e.logger.Info("bulk run finished",
		zap.Int("matched", report.Matched),
		zap.Int("batches", report.Batches),
		zap.Int("failed_batches", len(report.Failures)),
	)
	return report, nil
}

func (e *Executor) runSequential(ctx context.Context, iter *batchIterator, mutate Mutation, cfg Config, report *Report) error {
	for {
		batch, err := iter.Next(ctx)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		index := report.Batches
		report.Batches++
		report.Matched += len(batch)

		if err := e.applyBatch(ctx, mutate, batch, index, report, nil); err != nil && cfg.FailFast {
			return nil
		}
	}
}

func (e *Executor) runParallel(ctx context.Context, iter *batchIterator, mutate Mutation, cfg Config, report *Report) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaxConcurrency)

	var mu sync.Mutex
	failed := false
	for {
		mu.Lock()
		stop := failed && cfg.FailFast
		mu.Unlock()
		if stop {
			break
		}

		batch, err := iter.Next(ctx)
		if err != nil {
			_ = g.Wait()
			return err
		}
		if len(batch) == 0 {
			break
		}
		mu.Lock()
		index := report.Batches
		report.Batches++
		report.Matched += len(batch)
		mu.Unlock()

		g.Go(func() error {
			if err := e.applyBatch(gctx, mutate, batch, index, report, &mu); err != nil {
				mu.Lock()
				failed = true
				mu.Unlock()
			}
			// Batch failures are reported, not propagated; a failed batch
			// must not cancel its siblings.
			return nil
		})
	}
	return g.Wait()
}

func (e *Executor) applyBatch(ctx context.Context, mutate Mutation, batch []*domain.Entity, index int, report *Report, mu *sync.Mutex) error {
	err := mutate(ctx, batch)

	if mu != nil {
		mu.Lock()
		defer mu.Unlock()
	}
	if e.metrics != nil {
		e.metrics.BatchesProcessed.Inc()
	}
	if err != nil {
		e.logger.Warn("batch mutation failed",
			zap.Int("batch_index", index),
			zap.Int("batch_size", len(batch)),
			zap.Error(err),
		)
		if e.metrics != nil {
			e.metrics.BatchFailures.Inc()
		}
		report.Failures = append(report.Failures, BatchFailure{
			BatchIndex: index,
			Size:       len(batch),
			Err:        err,
		})
		return err
	}
	report.Succeeded++
	return nil
}

// batchIterator yields non-overlapping batches of matched entities, pulling
// cursor pages lazily so at most one page plus one batch is in memory.
type batchIterator struct {
	repo      repository.EntityRepository
	query     repository.EntityQuery
	match     Matcher
	batchSize int

	cursor  string
	pending []*domain.Entity
	done    bool
}

func newBatchIterator(repo repository.EntityRepository, query repository.EntityQuery, match Matcher, batchSize int) *batchIterator {
	return &batchIterator{
		repo:      repo,
		query:     query,
		match:     match,
		batchSize: batchSize,
	}
}

// Next returns the next batch, or an empty slice when the selection is
// exhausted.
func (it *batchIterator) Next(ctx context.Context) ([]*domain.Entity, error) {
	for len(it.pending) < it.batchSize && !it.done {
		page, err := it.repo.GetEntitiesPage(ctx, it.query, repository.Pagination{
			Limit:  it.batchSize,
			Cursor: it.cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch batch page: %w", err)
		}
		for _, entity := range page.Items {
			if it.match == nil || it.match(entity) {
				it.pending = append(it.pending, entity)
			}
		}
		it.cursor = page.NextCursor
		it.done = !page.HasMore
	}

	if len(it.pending) == 0 {
		return nil, nil
	}
	n := it.batchSize
	if n > len(it.pending) {
		n = len(it.pending)
	}
	batch := it.pending[:n]
	it.pending = it.pending[n:]
	return batch, nil
}
