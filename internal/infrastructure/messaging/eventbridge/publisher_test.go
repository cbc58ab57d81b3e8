package eventbridge

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"chronograph-backend/internal/infrastructure/messaging"
)

type fakeClient struct {
	inputs []*eventbridge.PutEventsInput
	output *eventbridge.PutEventsOutput
}

func (c *fakeClient) PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	c.inputs = append(c.inputs, params)
	if c.output != nil {
		return c.output, nil
	}
	return &eventbridge.PutEventsOutput{}, nil
}

// undetailedEvent cannot be serialized, so the publisher has to skip it.
type undetailedEvent struct {
	messaging.BaseEvent
	Broken chan int `json:"broken"`
}

func TestPublishBatchChunksAtTen(t *testing.T) {
	client := &fakeClient{}
	publisher := NewPublisher(client, "graph-events", zap.NewNop())

	events := make([]messaging.Event, 0, 12)
	for i := 0; i < 12; i++ {
		events = append(events, messaging.NewVersionBranchedEvent("m1", "old", "new", time.Now()))
	}
	require.NoError(t, publisher.PublishBatch(context.Background(), events))

	require.Len(t, client.inputs, 2)
	assert.Len(t, client.inputs[0].Entries, 10)
	assert.Len(t, client.inputs[1].Entries, 2)
}

func TestFailedEntryNamesTheSubmittedEvent(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	client := &fakeClient{
		output: &eventbridge.PutEventsOutput{
			FailedEntryCount: 1,
			Entries: []types.PutEventsResultEntry{{
				ErrorCode:    aws.String("ThrottlingException"),
				ErrorMessage: aws.String("rate exceeded"),
			}},
		},
	}
	publisher := NewPublisher(client, "graph-events", zap.New(core))

	// The first event is unserializable and gets skipped; the result entry
	// therefore belongs to the second event.
	skipped := undetailedEvent{BaseEvent: messaging.BaseEvent{Type: "skipped.event", LineageID: "m1"}}
	delivered := messaging.NewVersionBranchedEvent("m1", "old", "new", time.Now())

	err := publisher.PublishBatch(context.Background(), []messaging.Event{skipped, delivered})
	require.Error(t, err)

	require.Len(t, client.inputs, 1)
	require.Len(t, client.inputs[0].Entries, 1)

	failed := logs.FilterMessage("failed to publish event").All()
	require.Len(t, failed, 1)
	assert.Equal(t, messaging.EventTypeVersionBranched, failed[0].ContextMap()["event_type"])
}
