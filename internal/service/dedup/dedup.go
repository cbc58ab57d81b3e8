// Package dedup compacts an entity's observation log by removing entries
// that are contained in a nearby entry's text within a time window.
package dedup

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"chronograph-backend/internal/domain"
	"chronograph-backend/internal/infrastructure/messaging"
	"chronograph-backend/internal/observability"
	"chronograph-backend/internal/repository"
	appErrors "chronograph-backend/pkg/errors"
)

// DefaultWindow is the containment window applied when none is configured.
const DefaultWindow = 60 * time.Second

// Deduplicate returns a compacted copy of the log. Entry i is removed when
// some other entry j contains values[i] as a substring and the two timestamps
// lie within the window. Dominated entries are collected in a single pass
// over all pairs, so transitive containment resolves without re-scanning;
// retained entries keep their original relative order.
func Deduplicate(log domain.ObservationLog, window time.Duration) domain.ObservationLog {
	if window <= 0 {
		window = DefaultWindow
	}
	n := log.Len()
	if n < 2 {
		return log.Clone()
	}

	removed := make([]bool, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j || removed[i] {
				continue
			}
			if !strings.Contains(log.Values[j], log.Values[i]) {
				continue
			}
			// Identical values dominate each other; keep the earlier index.
			if log.Values[i] == log.Values[j] && j > i {
				continue
			}
			if absDuration(log.Timestamps[i].Sub(log.Timestamps[j])) <= window {
				removed[i] = true
			}
		}
	}

	out := domain.ObservationLog{
		Values:     make([]string, 0, n),
		Timestamps: make([]time.Time, 0, n),
	}
	for i := 0; i < n; i++ {
		if !removed[i] {
			out.Append(log.Values[i], log.Timestamps[i])
		}
	}
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Service applies windowed deduplication to stored entities.
type Service struct {
	repo    repository.Repository
	window  time.Duration
	bus     messaging.EventBus
	metrics *observability.Collector
	logger  *zap.Logger
}

// NewService creates a deduplication service. A non-positive window falls
// back to DefaultWindow.
func NewService(repo repository.Repository, window time.Duration, bus messaging.EventBus, metrics *observability.Collector, logger *zap.Logger) *Service {
	if window <= 0 {
		window = DefaultWindow
	}
	if bus == nil {
		bus = messaging.NoopBus{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, window: window, bus: bus, metrics: metrics, logger: logger}
}

// DeduplicateEntity compacts the entity's observation log in place and
// returns the number of entries removed.
func (s *Service) DeduplicateEntity(ctx context.Context, entityID string) (int, error) {
	entity, err := s.repo.FindEntityByID(ctx, entityID)
	if err != nil {
		if repository.IsNotFound(err) {
			return 0, appErrors.NewNotFound("entity not found: " + entityID)
		}
		return 0, appErrors.Wrap(err, "failed to load entity")
	}
	if err := entity.Observations.Validate(); err != nil {
		return 0, appErrors.NewValidation("observation log invalid: " + err.Error())
	}

	compacted := Deduplicate(entity.Observations, s.window)
	removed := entity.Observations.Len() - compacted.Len()
	if removed == 0 {
		return 0, nil
	}

	if err := s.repo.UpdateObservations(ctx, entityID, compacted); err != nil {
		return 0, appErrors.Wrap(err, "failed to persist compacted log")
	}

	s.logger.Info("deduplicated observation log",
		zap.String("entity_id", entityID),
		zap.Int("removed", removed),
		zap.Duration("window", s.window),
	)
	if s.metrics != nil {
		s.metrics.DedupRemovals.Add(float64(removed))
	}

	event := messaging.NewObservationsDedupEvent(entity.LineageID, entityID, removed, time.Now())
	if err := s.bus.Publish(ctx, event); err != nil {
		// Delivery is best-effort; the compacted log is already persisted.
		s.logger.Warn("failed to publish dedup event",
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
	}
	return removed, nil
}
