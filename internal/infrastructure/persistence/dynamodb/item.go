package dynamodb

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"chronograph-backend/internal/domain"
)

// Single table layout:
//
//	entity item:   PK = ENTITY#<id>       SK = META
//	current item:  PK = LINEAGE#<id>      SK = CURRENT
//	edge item:     PK = SOURCE#<entityID> SK = EDGE#<edgeID>
const (
	entityPKPrefix  = "ENTITY#"
	lineagePKPrefix = "LINEAGE#"
	sourcePKPrefix  = "SOURCE#"
	edgeSKPrefix    = "EDGE#"
	metaSK          = "META"
	currentSK       = "CURRENT"
)

func entityPK(id string) string         { return entityPKPrefix + id }
func lineagePK(lineageID string) string { return lineagePKPrefix + lineageID }
func sourcePK(entityID string) string   { return sourcePKPrefix + entityID }
func edgeSK(edgeID string) string       { return edgeSKPrefix + edgeID }

type propertyRecord struct {
	Kind string    `dynamodbav:"kind"`
	Str  string    `dynamodbav:"str,omitempty"`
	Num  float64   `dynamodbav:"num,omitempty"`
	Time time.Time `dynamodbav:"time,omitempty"`
}

type entityItem struct {
	PK           string                    `dynamodbav:"PK"`
	SK           string                    `dynamodbav:"SK"`
	EntityID     string                    `dynamodbav:"entity_id"`
	LineageID    string                    `dynamodbav:"lineage_id"`
	State        string                    `dynamodbav:"state"`
	Version      int                       `dynamodbav:"version"`
	CreatedAt    time.Time                 `dynamodbav:"created_at"`
	Properties   map[string]propertyRecord `dynamodbav:"properties,omitempty"`
	ObsValues    []string                  `dynamodbav:"obs_values,omitempty"`
	ObsTimes     []time.Time               `dynamodbav:"obs_times,omitempty"`
}

type edgeItem struct {
	PK         string                    `dynamodbav:"PK"`
	SK         string                    `dynamodbav:"SK"`
	EdgeID     string                    `dynamodbav:"edge_id"`
	SourceID   string                    `dynamodbav:"source_id"`
	TargetID   string                    `dynamodbav:"target_id"`
	EdgeType   string                    `dynamodbav:"edge_type"`
	FromTime   time.Time                 `dynamodbav:"from_time"`
	Properties map[string]propertyRecord `dynamodbav:"properties,omitempty"`
}

type currentItem struct {
	PK       string `dynamodbav:"PK"`
	SK       string `dynamodbav:"SK"`
	EntityID string `dynamodbav:"entity_id"`
}

func toPropertyRecords(props domain.Properties) map[string]propertyRecord {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]propertyRecord, len(props))
	for key, value := range props {
		out[key] = propertyRecord{
			Kind: string(value.Kind),
			Str:  value.Str,
			Num:  value.Num,
			Time: value.Time,
		}
	}
	return out
}

func fromPropertyRecords(records map[string]propertyRecord) domain.Properties {
	if len(records) == 0 {
		return domain.Properties{}
	}
	out := make(domain.Properties, len(records))
	for key, record := range records {
		out[key] = domain.Value{
			Kind: domain.ValueKind(record.Kind),
			Str:  record.Str,
			Num:  record.Num,
			Time: record.Time,
		}
	}
	return out
}

func newEntityItem(entity *domain.Entity) entityItem {
	return entityItem{
		PK:         entityPK(entity.ID),
		SK:         metaSK,
		EntityID:   entity.ID,
		LineageID:  entity.LineageID,
		State:      string(entity.State),
		Version:    entity.Version,
		CreatedAt:  entity.CreatedAt,
		Properties: toPropertyRecords(entity.Properties),
		ObsValues:  entity.Observations.Values,
		ObsTimes:   entity.Observations.Timestamps,
	}
}

func (i entityItem) toDomain() *domain.Entity {
	return &domain.Entity{
		ID:         i.EntityID,
		LineageID:  i.LineageID,
		Properties: fromPropertyRecords(i.Properties),
		State:      domain.State(i.State),
		CreatedAt:  i.CreatedAt,
		Version:    i.Version,
		Observations: domain.ObservationLog{
			Values:     i.ObsValues,
			Timestamps: i.ObsTimes,
		},
	}
}

func newEdgeItem(edge *domain.Edge) edgeItem {
	return edgeItem{
		PK:         sourcePK(edge.SourceID),
		SK:         edgeSK(edge.ID),
		EdgeID:     edge.ID,
		SourceID:   edge.SourceID,
		TargetID:   edge.TargetID,
		EdgeType:   string(edge.Type),
		FromTime:   edge.From,
		Properties: toPropertyRecords(edge.Properties),
	}
}

func (i edgeItem) toDomain() *domain.Edge {
	return &domain.Edge{
		ID:         i.EdgeID,
		SourceID:   i.SourceID,
		TargetID:   i.TargetID,
		Type:       domain.EdgeType(i.EdgeType),
		From:       i.FromTime,
		Properties: fromPropertyRecords(i.Properties),
	}
}

func marshalItem(v any) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item: %w", err)
	}
	return item, nil
}
