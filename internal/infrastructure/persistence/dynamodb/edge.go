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
	"chronograph-backend/internal/repository"
)

// CreateEdge stores a directed edge under its source entity's partition.
func (s *Store) CreateEdge(ctx context.Context, edge *domain.Edge) (err error) {
	defer func(start time.Time) { s.observe("create_edge", start, err) }(time.Now())

	if edge == nil || edge.ID == "" {
		return repository.NewInvalidQuery("edge", "missing id")
	}
	item, err := marshalItem(newEdgeItem(edge))
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return classifyError("CreateEdge", err)
	}
	return nil
}

// FindEdges returns edges matching the query. Source-scoped queries hit the
// edge partition directly; unscoped queries fall back to a scan.
func (s *Store) FindEdges(ctx context.Context, query repository.EdgeQuery) (edges []*domain.Edge, err error) {
	defer func(start time.Time) { s.observe("find_edges", start, err) }(time.Now())

	if query.SourceID != "" {
		return s.queryEdgesBySource(ctx, query)
	}
	return s.scanEdges(ctx, query)
}

func (s *Store) queryEdgesBySource(ctx context.Context, query repository.EdgeQuery) ([]*domain.Edge, error) {
	keyEx := expression.Key("PK").Equal(expression.Value(sourcePK(query.SourceID))).
		And(expression.Key("SK").BeginsWith(edgeSKPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var edges []*domain.Edge
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, classifyError("FindEdges", err)
		}
		edges = s.collectEdges(result.Items, query, edges)
		if result.LastEvaluatedKey == nil {
			return edges, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

func (s *Store) scanEdges(ctx context.Context, query repository.EdgeQuery) ([]*domain.Edge, error) {
	filter := expression.Name("SK").BeginsWith(edgeSKPrefix)
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.ScanInput{
		TableName:                 aws.String(s.tableName),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var edges []*domain.Edge
	for {
		result, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, classifyError("FindEdges", err)
		}
		edges = s.collectEdges(result.Items, query, edges)
		if result.LastEvaluatedKey == nil {
			return edges, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

func (s *Store) collectEdges(items []map[string]types.AttributeValue, query repository.EdgeQuery, edges []*domain.Edge) []*domain.Edge {
	for _, raw := range items {
		var item edgeItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			s.logger.Warn("failed to unmarshal edge item", zap.Error(err))
			continue
		}
		if !strings.HasPrefix(item.SK, edgeSKPrefix) {
			continue
		}
		edge := item.toDomain()
		if query.TargetID != "" && edge.TargetID != query.TargetID {
			continue
		}
		if !query.WantsType(edge.Type) {
			continue
		}
		edges = append(edges, edge)
	}
	return edges
}

// DeleteEdge removes one edge. The edge's source partition must be found by
// scan because the id alone does not locate the item; callers that know the
// source should prefer DeleteEdgesByEntity.
func (s *Store) DeleteEdge(ctx context.Context, edgeID string) (err error) {
	defer func(start time.Time) { s.observe("delete_edge", start, err) }(time.Now())

	edges, err := s.scanEdges(ctx, repository.EdgeQuery{})
	if err != nil {
		return err
	}
	for _, edge := range edges {
		if edge.ID != edgeID {
			continue
		}
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: sourcePK(edge.SourceID)},
				"SK": &types.AttributeValueMemberS{Value: edgeSK(edge.ID)},
			},
		})
		if err != nil {
			return classifyError("DeleteEdge", err)
		}
		return nil
	}
	return repository.NewNotFoundError("edge", edgeID)
}

// DeleteEdgesByEntity removes every edge touching the entity, outgoing and
// incoming.
func (s *Store) DeleteEdgesByEntity(ctx context.Context, entityID string) (err error) {
	defer func(start time.Time) { s.observe("delete_edges_by_entity", start, err) }(time.Now())

	edges, err := s.scanEdges(ctx, repository.EdgeQuery{})
	if err != nil {
		return err
	}
	for _, edge := range edges {
		if edge.SourceID != entityID && edge.TargetID != entityID {
			continue
		}
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: sourcePK(edge.SourceID)},
				"SK": &types.AttributeValueMemberS{Value: edgeSK(edge.ID)},
			},
		})
		if err != nil {
			return classifyError("DeleteEdgesByEntity", err)
		}
	}
	return nil
}
