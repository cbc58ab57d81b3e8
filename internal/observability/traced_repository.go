package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"chronograph-backend/internal/domain"
	"chronograph-backend/internal/repository"
)

// TraceRepository wraps a repository so every operation emits a span.
func TraceRepository(repo repository.Repository, tracer trace.Tracer) repository.Repository {
	return &tracedRepository{inner: repo, tracer: tracer}
}

type tracedRepository struct {
	inner  repository.Repository
	tracer trace.Tracer
}

func (r *tracedRepository) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (r *tracedRepository) CreateEntity(ctx context.Context, entity *domain.Entity) error {
	ctx, span := r.span(ctx, "repository.CreateEntity",
		attribute.String("entity.id", entity.ID),
		attribute.String("lineage.id", entity.LineageID),
	)
	defer span.End()

	err := r.inner.CreateEntity(ctx, entity)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *tracedRepository) FindEntityByID(ctx context.Context, id string) (*domain.Entity, error) {
	ctx, span := r.span(ctx, "repository.FindEntityByID", attribute.String("entity.id", id))
	defer span.End()

	entity, err := r.inner.FindEntityByID(ctx, id)
	if err != nil {
		span.RecordError(err)
	}
	return entity, err
}

func (r *tracedRepository) FindCurrentByLineage(ctx context.Context, lineageID string) (*domain.Entity, error) {
	ctx, span := r.span(ctx, "repository.FindCurrentByLineage", attribute.String("lineage.id", lineageID))
	defer span.End()

	entity, err := r.inner.FindCurrentByLineage(ctx, lineageID)
	if err != nil {
		span.RecordError(err)
	}
	return entity, err
}

func (r *tracedRepository) FindEntities(ctx context.Context, query repository.EntityQuery) ([]*domain.Entity, error) {
	ctx, span := r.span(ctx, "repository.FindEntities", attribute.String("lineage.id", query.LineageID))
	defer span.End()

	entities, err := r.inner.FindEntities(ctx, query)
	if err != nil {
		span.RecordError(err)
	}
	return entities, err
}

func (r *tracedRepository) DeleteEntity(ctx context.Context, id string) error {
	ctx, span := r.span(ctx, "repository.DeleteEntity", attribute.String("entity.id", id))
	defer span.End()

	err := r.inner.DeleteEntity(ctx, id)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *tracedRepository) CountEntities(ctx context.Context, query repository.EntityQuery) (int, error) {
	ctx, span := r.span(ctx, "repository.CountEntities", attribute.String("lineage.id", query.LineageID))
	defer span.End()

	count, err := r.inner.CountEntities(ctx, query)
	if err != nil {
		span.RecordError(err)
	}
	return count, err
}

func (r *tracedRepository) SetState(ctx context.Context, id string, state domain.State) error {
	ctx, span := r.span(ctx, "repository.SetState",
		attribute.String("entity.id", id),
		attribute.String("entity.state", string(state)),
	)
	defer span.End()

	err := r.inner.SetState(ctx, id, state)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *tracedRepository) UpdateObservations(ctx context.Context, id string, log domain.ObservationLog) error {
	ctx, span := r.span(ctx, "repository.UpdateObservations",
		attribute.String("entity.id", id),
		attribute.Int("observations", log.Len()),
	)
	defer span.End()

	err := r.inner.UpdateObservations(ctx, id, log)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *tracedRepository) GetEntitiesPage(ctx context.Context, query repository.EntityQuery, pagination repository.Pagination) (*repository.EntityPage, error) {
	ctx, span := r.span(ctx, "repository.GetEntitiesPage",
		attribute.String("lineage.id", query.LineageID),
		attribute.Int("limit", pagination.Limit),
	)
	defer span.End()

	page, err := r.inner.GetEntitiesPage(ctx, query, pagination)
	if err != nil {
		span.RecordError(err)
	}
	return page, err
}

func (r *tracedRepository) CreateEdge(ctx context.Context, edge *domain.Edge) error {
	ctx, span := r.span(ctx, "repository.CreateEdge",
		attribute.String("edge.id", edge.ID),
		attribute.String("edge.type", string(edge.Type)),
	)
	defer span.End()

	err := r.inner.CreateEdge(ctx, edge)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *tracedRepository) FindEdges(ctx context.Context, query repository.EdgeQuery) ([]*domain.Edge, error) {
	ctx, span := r.span(ctx, "repository.FindEdges", attribute.String("edge.source_id", query.SourceID))
	defer span.End()

	edges, err := r.inner.FindEdges(ctx, query)
	if err != nil {
		span.RecordError(err)
	}
	return edges, err
}

func (r *tracedRepository) DeleteEdge(ctx context.Context, id string) error {
	ctx, span := r.span(ctx, "repository.DeleteEdge", attribute.String("edge.id", id))
	defer span.End()

	err := r.inner.DeleteEdge(ctx, id)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *tracedRepository) DeleteEdgesByEntity(ctx context.Context, entityID string) error {
	ctx, span := r.span(ctx, "repository.DeleteEdgesByEntity", attribute.String("entity.id", entityID))
	defer span.End()

	err := r.inner.DeleteEdgesByEntity(ctx, entityID)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *tracedRepository) CurrentID(ctx context.Context, lineageID string) (string, error) {
	ctx, span := r.span(ctx, "repository.CurrentID", attribute.String("lineage.id", lineageID))
	defer span.End()

	id, err := r.inner.CurrentID(ctx, lineageID)
	if err != nil {
		span.RecordError(err)
	}
	return id, err
}

func (r *tracedRepository) CompareAndSwapCurrent(ctx context.Context, lineageID, oldID, newID string) error {
	ctx, span := r.span(ctx, "repository.CompareAndSwapCurrent",
		attribute.String("lineage.id", lineageID),
	)
	defer span.End()

	err := r.inner.CompareAndSwapCurrent(ctx, lineageID, oldID, newID)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *tracedRepository) BranchLineage(ctx context.Context, spec repository.BranchSpec) error {
	ctx, span := r.span(ctx, "repository.BranchLineage",
		attribute.String("lineage.id", spec.LineageID),
		attribute.Int("migrated_edges", len(spec.MigratedEdges)),
	)
	defer span.End()

	err := r.inner.BranchLineage(ctx, spec)
	if err != nil {
		span.RecordError(err)
	}
	return err
}
