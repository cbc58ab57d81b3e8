// Package versioning implements the write side of the temporal graph: it
// decides whether an incoming record needs a new version and performs the
// branch-and-relink transaction when it does.
package versioning

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chronograph-backend/internal/domain"
	"chronograph-backend/internal/infrastructure/messaging"
	"chronograph-backend/internal/observability"
	"chronograph-backend/internal/repository"
	appErrors "chronograph-backend/pkg/errors"
)

// Config holds versioning behavior configuration.
type Config struct {
	// Schema declares the comparable field set for change detection.
	Schema domain.Schema

	// EdgeAllowList names the domain edge types carried forward on branch.
	EdgeAllowList []domain.EdgeType

	// MaxRetries bounds the optimistic retry loop on lineage conflicts.
	MaxRetries int
}

// Service is the version manager. One instance is safe for concurrent use;
// serialization per lineage is delegated to the store's compare-and-swap
// current index.
type Service struct {
	repo     repository.Repository
	migrator *Migrator
	schema   domain.Schema

	maxRetries int
	bus        messaging.EventBus
	metrics    *observability.Collector
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a version manager over the given store.
func NewService(repo repository.Repository, cfg Config, bus messaging.EventBus, metrics *observability.Collector, logger *zap.Logger) *Service {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if bus == nil {
		bus = messaging.NoopBus{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:       repo,
		migrator:   NewMigrator(repo, cfg.EdgeAllowList),
		schema:     cfg.Schema,
		maxRetries: cfg.MaxRetries,
		bus:        bus,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// ApplyRecord ingests one (lineage, properties) record. A missing lineage
// creates the first version; an unchanged record is a no-op; a changed record
// branches. Returns the id of the entity holding Current afterwards.
//
// Concurrent writers racing on one lineage are resolved by re-reading and
// retrying up to the configured bound, after which a conflict error surfaces.
func (s *Service) ApplyRecord(ctx context.Context, lineageID string, props domain.Properties) (string, error) {
	return s.apply(ctx, lineageID, props, false)
}

// ApplyUpdate behaves like ApplyRecord but requires the lineage to already
// exist (update-only semantics).
func (s *Service) ApplyUpdate(ctx context.Context, lineageID string, props domain.Properties) (string, error) {
	return s.apply(ctx, lineageID, props, true)
}

func (s *Service) apply(ctx context.Context, lineageID string, props domain.Properties, updateOnly bool) (string, error) {
	if lineageID == "" {
		return "", appErrors.NewValidation("lineage id cannot be empty")
	}

	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		currentID, err := s.applyOnce(ctx, lineageID, props, updateOnly)
		if err == nil {
			return currentID, nil
		}
		if !repository.IsConflict(err) {
			return "", err
		}
		lastErr = err
		s.logger.Debug("lineage branch conflict, retrying",
			zap.String("lineage_id", lineageID),
			zap.Int("attempt", attempt+1),
		)
		if s.metrics != nil {
			s.metrics.BranchConflicts.Inc()
		}
	}
	return "", appErrors.NewConflict("lineage " + lineageID + ": retries exhausted: " + lastErr.Error())
}

// applyOnce runs one attempt of the ingest decision against a snapshot of the
// lineage's current entity.
func (s *Service) applyOnce(ctx context.Context, lineageID string, props domain.Properties, updateOnly bool) (string, error) {
	currentID, err := s.repo.CurrentID(ctx, lineageID)
	if err != nil {
		if !repository.IsNotFound(err) {
			return "", appErrors.Wrap(err, "failed to resolve current entity")
		}
		if updateOnly {
			return "", appErrors.NewNotFound("lineage not found: " + lineageID)
		}
		return s.createFirstVersion(ctx, lineageID, props)
	}

	old, err := s.repo.FindEntityByID(ctx, currentID)
	if err != nil {
		return "", appErrors.Wrap(err, "failed to load current entity")
	}

	if !s.schema.Changed(old.Properties, props) {
		// Idempotence: same record applied twice is a no-op.
		if s.metrics != nil {
			s.metrics.RecordsUnchanged.Inc()
		}
		return old.ID, nil
	}

	return s.branch(ctx, old, props)
}

func (s *Service) createFirstVersion(ctx context.Context, lineageID string, props domain.Properties) (string, error) {
	entity := &domain.Entity{
		ID:         uuid.New().String(),
		LineageID:  lineageID,
		Properties: props.Clone(),
		State:      domain.StateCurrent,
		CreatedAt:  s.now(),
		Version:    0,
	}
	if err := s.repo.CreateEntity(ctx, entity); err != nil {
		return "", appErrors.Wrap(err, "failed to create first version")
	}
	if err := s.repo.CompareAndSwapCurrent(ctx, lineageID, "", entity.ID); err != nil {
		// Lost the race for lineage creation; roll back our orphan and let
		// the retry loop re-read.
		if repository.IsConflict(err) {
			_ = s.repo.DeleteEntity(ctx, entity.ID)
			return "", err
		}
		return "", appErrors.Wrap(err, "failed to install current pointer")
	}

	s.logger.Info("created first version",
		zap.String("lineage_id", lineageID),
		zap.String("entity_id", entity.ID),
	)
	if s.metrics != nil {
		s.metrics.LineagesCreated.Inc()
	}

	event := messaging.NewLineageCreatedEvent(lineageID, entity.ID, entity.CreatedAt)
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish lineage created event",
			zap.String("lineage_id", lineageID),
			zap.Error(err),
		)
	}
	return entity.ID, nil
}

// branch performs step four of the ingest algorithm: retire old, install new,
// link them, and carry the live relationships forward in one transaction.
func (s *Service) branch(ctx context.Context, old *domain.Entity, props domain.Properties) (string, error) {
	branchTime := s.now()

	next := &domain.Entity{
		ID:         uuid.New().String(),
		LineageID:  old.LineageID,
		Properties: props.Clone(),
		State:      domain.StateCurrent,
		CreatedAt:  branchTime,
		Version:    old.Version + 1,
	}
	versionEdge := &domain.Edge{
		ID:       uuid.New().String(),
		SourceID: next.ID,
		TargetID: old.ID,
		Type:     domain.EdgeTypePreviousVersion,
		From:     branchTime,
	}

	migrated, err := s.migrator.CloneOutgoing(ctx, old.ID, next.ID, branchTime)
	if err != nil {
		return "", err
	}

	spec := repository.BranchSpec{
		LineageID:     old.LineageID,
		OldID:         old.ID,
		New:           next,
		VersionEdge:   versionEdge,
		MigratedEdges: migrated,
	}
	if err := s.repo.BranchLineage(ctx, spec); err != nil {
		return "", err
	}

	s.logger.Info("branched new version",
		zap.String("lineage_id", old.LineageID),
		zap.String("old_id", old.ID),
		zap.String("new_id", next.ID),
		zap.Int("migrated_edges", len(migrated)),
	)
	if s.metrics != nil {
		s.metrics.VersionsBranched.Inc()
		s.metrics.EdgesMigrated.Add(float64(len(migrated)))
	}

	event := messaging.NewVersionBranchedEvent(old.LineageID, old.ID, next.ID, branchTime)
	if err := s.bus.Publish(ctx, event); err != nil {
		// Event delivery is best-effort; the branch itself committed.
		s.logger.Warn("failed to publish branch event",
			zap.String("lineage_id", old.LineageID),
			zap.Error(err),
		)
	}
	return next.ID, nil
}

// VersionChain returns the lineage's versions newest to oldest, starting from
// the Current entity and following PREVIOUS_VERSION edges.
func (s *Service) VersionChain(ctx context.Context, lineageID string) ([]*domain.Entity, error) {
	currentID, err := s.repo.CurrentID(ctx, lineageID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, appErrors.NewNotFound("lineage not found: " + lineageID)
		}
		return nil, appErrors.Wrap(err, "failed to resolve current entity")
	}

	var chain []*domain.Entity
	seen := make(map[string]bool)
	id := currentID
	for id != "" && !seen[id] {
		seen[id] = true
		entity, err := s.repo.FindEntityByID(ctx, id)
		if err != nil {
			return nil, appErrors.Wrap(err, "failed to load chain member")
		}
		chain = append(chain, entity)

		edges, err := s.repo.FindEdges(ctx, repository.EdgeQuery{
			SourceID: id,
			Types:    []domain.EdgeType{domain.EdgeTypePreviousVersion},
		})
		if err != nil {
			return nil, appErrors.Wrap(err, "failed to follow version edge")
		}
		id = ""
		if len(edges) > 0 {
			id = edges[0].TargetID
		}
	}
	return chain, nil
}
