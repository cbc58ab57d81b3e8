// Package dynamodb implements the repository interfaces on a DynamoDB single
// table. The per-lineage current pointer is a dedicated item guarded by
// conditional writes, and the branch transaction runs as one
// TransactWriteItems call so readers never see a torn branch.
package dynamodb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"chronograph-backend/internal/domain"
	"chronograph-backend/internal/observability"
	"chronograph-backend/internal/repository"
)

// Store is a DynamoDB-backed graph store.
type Store struct {
	client    *dynamodb.Client
	tableName string
	metrics   *observability.Collector
	logger    *zap.Logger
}

var _ repository.Repository = (*Store)(nil)

// NewStore creates a store over the given table.
func NewStore(client *dynamodb.Client, tableName string, metrics *observability.Collector, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client:    client,
		tableName: tableName,
		metrics:   metrics,
		logger:    logger,
	}
}

// observe records the outcome of one store operation.
func (s *Store) observe(operation string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.StoreOperations.WithLabelValues(operation, status).Inc()
	s.metrics.StoreDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// CreateEntity stores a new entity, failing if the id already exists.
func (s *Store) CreateEntity(ctx context.Context, entity *domain.Entity) (err error) {
	defer func(start time.Time) { s.observe("create_entity", start, err) }(time.Now())

	if entity == nil || entity.ID == "" {
		return repository.NewInvalidQuery("entity", "missing id")
	}
	item, err := marshalItem(newEntityItem(entity))
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return classifyError("CreateEntity", err)
	}
	return nil
}

// FindEntityByID retrieves an entity by id.
func (s *Store) FindEntityByID(ctx context.Context, entityID string) (entity *domain.Entity, err error) {
	defer func(start time.Time) { s.observe("find_entity", start, err) }(time.Now())

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: entityPK(entityID)},
			"SK": &types.AttributeValueMemberS{Value: metaSK},
		},
	})
	if err != nil {
		return nil, classifyError("FindEntityByID", err)
	}
	if result.Item == nil {
		return nil, repository.NewNotFoundError("entity", entityID)
	}

	var item entityItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity %s: %w", entityID, err)
	}
	return item.toDomain(), nil
}

// FindCurrentByLineage resolves the current pointer, then loads the entity it
// names.
func (s *Store) FindCurrentByLineage(ctx context.Context, lineageID string) (entity *domain.Entity, err error) {
	defer func(start time.Time) { s.observe("find_current", start, err) }(time.Now())

	id, err := s.CurrentID(ctx, lineageID)
	if err != nil {
		return nil, err
	}
	return s.FindEntityByID(ctx, id)
}

// FindEntities scans for entities matching the query. Cheap filters run
// server-side; the rest of the query semantics are applied in memory after
// unmarshalling.
func (s *Store) FindEntities(ctx context.Context, query repository.EntityQuery) (entities []*domain.Entity, err error) {
	defer func(start time.Time) { s.observe("find_entities", start, err) }(time.Now())

	err = s.scanEntities(ctx, query, nil, func(entity *domain.Entity) bool {
		entities = append(entities, entity)
		return true
	})
	if err != nil {
		return nil, err
	}
	repository.SortEntities(entities, query)
	return entities, nil
}

// CountEntities counts entities matching the query.
func (s *Store) CountEntities(ctx context.Context, query repository.EntityQuery) (count int, err error) {
	defer func(start time.Time) { s.observe("count_entities", start, err) }(time.Now())

	err = s.scanEntities(ctx, query, nil, func(*domain.Entity) bool {
		count++
		return true
	})
	return count, err
}

// DeleteEntity removes the entity, its edges, and its current-pointer entry.
func (s *Store) DeleteEntity(ctx context.Context, entityID string) (err error) {
	defer func(start time.Time) { s.observe("delete_entity", start, err) }(time.Now())

	entity, err := s.FindEntityByID(ctx, entityID)
	if err != nil {
		return err
	}
	if err := s.DeleteEdgesByEntity(ctx, entityID); err != nil {
		return err
	}

	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: entityPK(entityID)},
			"SK": &types.AttributeValueMemberS{Value: metaSK},
		},
	})
	if err != nil {
		return classifyError("DeleteEntity", err)
	}

	// Drop the current pointer only if it still names this entity.
	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: lineagePK(entity.LineageID)},
			"SK": &types.AttributeValueMemberS{Value: currentSK},
		},
		ConditionExpression: aws.String("entity_id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: entityID},
		},
	})
	if err != nil && !repository.IsConflict(classifyError("DeleteEntity", err)) {
		return classifyError("DeleteEntity", err)
	}
	return nil
}

// SetState flips an entity's lineage state label.
func (s *Store) SetState(ctx context.Context, entityID string, state domain.State) (err error) {
	defer func(start time.Time) { s.observe("set_state", start, err) }(time.Now())

	update := expression.Set(expression.Name("state"), expression.Value(string(state)))
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: entityPK(entityID)},
			"SK": &types.AttributeValueMemberS{Value: metaSK},
		},
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConditionExpression:       aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		classified := classifyError("SetState", err)
		if repository.IsConflict(classified) {
			return repository.NewNotFoundError("entity", entityID)
		}
		return classified
	}
	return nil
}

// UpdateObservations replaces an entity's observation log.
func (s *Store) UpdateObservations(ctx context.Context, entityID string, log domain.ObservationLog) (err error) {
	defer func(start time.Time) { s.observe("update_observations", start, err) }(time.Now())

	if err := log.Validate(); err != nil {
		return repository.NewInvalidQuery("observations", err.Error())
	}
	values, err := attributevalue.Marshal(log.Values)
	if err != nil {
		return fmt.Errorf("failed to marshal observations: %w", err)
	}
	times, err := attributevalue.Marshal(log.Timestamps)
	if err != nil {
		return fmt.Errorf("failed to marshal observation timestamps: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: entityPK(entityID)},
			"SK": &types.AttributeValueMemberS{Value: metaSK},
		},
		UpdateExpression: aws.String("SET obs_values = :values, obs_times = :times"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":values": values,
			":times":  times,
		},
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		classified := classifyError("UpdateObservations", err)
		if repository.IsConflict(classified) {
			return repository.NewNotFoundError("entity", entityID)
		}
		return classified
	}
	return nil
}

// GetEntitiesPage returns one page of matching entities ordered by entity
// item key, which is stable across invocations.
func (s *Store) GetEntitiesPage(ctx context.Context, query repository.EntityQuery, pagination repository.Pagination) (page *repository.EntityPage, err error) {
	defer func(start time.Time) { s.observe("get_entities_page", start, err) }(time.Now())

	if err := pagination.Validate(); err != nil {
		return nil, err
	}
	lastKey, err := repository.DecodeCursor(pagination.Cursor)
	if err != nil {
		return nil, repository.NewInvalidQuery("Cursor", err.Error())
	}
	limit := pagination.GetEffectiveLimit()

	var startKey map[string]types.AttributeValue
	if lastKey != "" {
		startKey = map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: entityPK(lastKey)},
			"SK": &types.AttributeValueMemberS{Value: metaSK},
		}
	}

	page = &repository.EntityPage{}
	err = s.scanEntities(ctx, query, startKey, func(entity *domain.Entity) bool {
		if len(page.Items) == limit {
			page.HasMore = true
			page.NextCursor = repository.EncodeCursor(page.Items[len(page.Items)-1].ID)
			return false
		}
		page.Items = append(page.Items, entity)
		return true
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// scanEntities streams matching entities to visit until exhaustion or until
// visit returns false.
func (s *Store) scanEntities(ctx context.Context, query repository.EntityQuery, startKey map[string]types.AttributeValue, visit func(*domain.Entity) bool) error {
	filter := expression.Name("SK").Equal(expression.Value(metaSK))
	if query.LineageID != "" {
		filter = filter.And(expression.Name("lineage_id").Equal(expression.Value(query.LineageID)))
	}
	if query.State != "" {
		filter = filter.And(expression.Name("state").Equal(expression.Value(string(query.State))))
	}
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.ScanInput{
		TableName:                 aws.String(s.tableName),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ExclusiveStartKey:         startKey,
	}

	for {
		result, err := s.client.Scan(ctx, input)
		if err != nil {
			return classifyError("ScanEntities", err)
		}
		for _, raw := range result.Items {
			var item entityItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				s.logger.Warn("failed to unmarshal entity item", zap.Error(err))
				continue
			}
			if !strings.HasPrefix(item.PK, entityPKPrefix) {
				continue
			}
			entity := item.toDomain()
			if !query.Matches(entity) {
				continue
			}
			if !visit(entity) {
				return nil
			}
		}
		if result.LastEvaluatedKey == nil {
			return nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}
