package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"chronograph-backend/internal/domain"
	"chronograph-backend/internal/repository"
)

// CurrentID resolves the lineage's current pointer item.
func (s *Store) CurrentID(ctx context.Context, lineageID string) (id string, err error) {
	defer func(start time.Time) { s.observe("current_id", start, err) }(time.Now())

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: lineagePK(lineageID)},
			"SK": &types.AttributeValueMemberS{Value: currentSK},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", classifyError("CurrentID", err)
	}
	if result.Item == nil {
		return "", repository.NewNotFoundError("lineage", lineageID)
	}

	var item currentItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return "", fmt.Errorf("failed to unmarshal current pointer: %w", err)
	}
	return item.EntityID, nil
}

// CompareAndSwapCurrent installs newID as the lineage's current pointer only
// if the pointer still equals oldID (or does not exist, for an empty oldID).
// A failed condition surfaces as a conflict for the caller's retry loop.
func (s *Store) CompareAndSwapCurrent(ctx context.Context, lineageID, oldID, newID string) (err error) {
	defer func(start time.Time) { s.observe("cas_current", start, err) }(time.Now())

	item, err := marshalItem(currentItem{
		PK:       lineagePK(lineageID),
		SK:       currentSK,
		EntityID: newID,
	})
	if err != nil {
		return err
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}
	if oldID == "" {
		input.ConditionExpression = aws.String("attribute_not_exists(PK)")
	} else {
		input.ConditionExpression = aws.String("entity_id = :old")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":old": &types.AttributeValueMemberS{Value: oldID},
		}
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		classified := classifyError("CompareAndSwapCurrent", err)
		if repository.IsConflict(classified) {
			return repository.NewConflictError(lineageID)
		}
		return classified
	}
	return nil
}

// BranchLineage commits the branch as one TransactWriteItems call: CAS the
// current pointer, retire the old entity, install the new one, and write the
// version edge plus migrated edges. DynamoDB caps a transaction at 100 items,
// comfortably above a branch's edge fan-out.
func (s *Store) BranchLineage(ctx context.Context, spec repository.BranchSpec) (err error) {
	defer func(start time.Time) { s.observe("branch_lineage", start, err) }(time.Now())

	if spec.New == nil || spec.New.ID == "" {
		return repository.NewInvalidQuery("spec", "missing new entity")
	}

	pointer, err := marshalItem(currentItem{
		PK:       lineagePK(spec.LineageID),
		SK:       currentSK,
		EntityID: spec.New.ID,
	})
	if err != nil {
		return err
	}
	pointerPut := &types.Put{
		TableName: aws.String(s.tableName),
		Item:      pointer,
	}
	if spec.OldID == "" {
		pointerPut.ConditionExpression = aws.String("attribute_not_exists(PK)")
	} else {
		pointerPut.ConditionExpression = aws.String("entity_id = :old")
		pointerPut.ExpressionAttributeValues = map[string]types.AttributeValue{
			":old": &types.AttributeValueMemberS{Value: spec.OldID},
		}
	}
	items := []types.TransactWriteItem{{Put: pointerPut}}

	if spec.OldID != "" {
		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName: aws.String(s.tableName),
				Key: map[string]types.AttributeValue{
					"PK": &types.AttributeValueMemberS{Value: entityPK(spec.OldID)},
					"SK": &types.AttributeValueMemberS{Value: metaSK},
				},
				UpdateExpression: aws.String("SET #state = :historical"),
				ExpressionAttributeNames: map[string]string{
					"#state": "state",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":historical": &types.AttributeValueMemberS{Value: string(domain.StateHistorical)},
				},
				ConditionExpression: aws.String("attribute_exists(PK)"),
			},
		})
	}

	newItem, err := marshalItem(newEntityItem(spec.New))
	if err != nil {
		return err
	}
	items = append(items, types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(s.tableName),
			Item:                newItem,
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		},
	})

	allEdges := make([]*domain.Edge, 0, len(spec.MigratedEdges)+1)
	allEdges = append(allEdges, spec.MigratedEdges...)
	if spec.VersionEdge != nil {
		allEdges = append(allEdges, spec.VersionEdge)
	}
	for _, edge := range allEdges {
		item, err := marshalItem(newEdgeItem(edge))
		if err != nil {
			return err
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(s.tableName),
				Item:      item,
			},
		})
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		classified := classifyError("BranchLineage", err)
		if repository.IsConflict(classified) {
			s.logger.Debug("branch transaction lost the race",
				zap.String("lineage_id", spec.LineageID),
			)
			return repository.NewConflictError(spec.LineageID)
		}
		return classified
	}
	return nil
}
