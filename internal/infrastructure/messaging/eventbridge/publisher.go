// Package eventbridge publishes graph mutation events to AWS EventBridge.
package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"chronograph-backend/internal/infrastructure/messaging"
)

// Source identifies this service in published events.
const Source = "chronograph.backend"

// Client is the subset of the EventBridge API the publisher depends on.
type Client interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Publisher implements messaging.EventBus using AWS EventBridge.
type Publisher struct {
	client       Client
	eventBusName string
	logger       *zap.Logger
}

// NewPublisher creates an EventBridge publisher targeting the named bus.
func NewPublisher(client Client, eventBusName string, logger *zap.Logger) *Publisher {
	return &Publisher{
		client:       client,
		eventBusName: eventBusName,
		logger:       logger,
	}
}

// Publish sends a single event.
func (p *Publisher) Publish(ctx context.Context, event messaging.Event) error {
	return p.PublishBatch(ctx, []messaging.Event{event})
}

// PublishBatch sends events in chunks of ten, the PutEvents limit.
func (p *Publisher) PublishBatch(ctx context.Context, events []messaging.Event) error {
	if len(events) == 0 {
		return nil
	}

	const batchSize = 10
	for i := 0; i < len(events); i += batchSize {
		end := i + batchSize
		if end > len(events) {
			end = len(events)
		}
		if err := p.putEvents(ctx, events[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) putEvents(ctx context.Context, events []messaging.Event) error {
	entries := make([]types.PutEventsRequestEntry, 0, len(events))
	// sent stays parallel to entries; skipped events must not shift the
	// mapping between result entries and the events they carry.
	sent := make([]messaging.Event, 0, len(events))
	for _, event := range events {
		detail, err := json.Marshal(event)
		if err != nil {
			p.logger.Error("failed to marshal event",
				zap.Error(err),
				zap.String("event_type", event.EventType()),
			)
			continue
		}
		sent = append(sent, event)
		entries = append(entries, types.PutEventsRequestEntry{
			EventBusName: aws.String(p.eventBusName),
			Source:       aws.String(Source),
			DetailType:   aws.String(event.EventType()),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(event.Timestamp()),
			Resources: []string{
				fmt.Sprintf("arn:aws:chronograph::%s", event.AggregateID()),
			},
		})
	}
	if len(entries) == 0 {
		return nil
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return fmt.Errorf("failed to publish events to EventBridge: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil {
				p.logger.Error("failed to publish event",
					zap.String("event_type", sent[i].EventType()),
					zap.String("error_code", *entry.ErrorCode),
					zap.String("error_message", aws.ToString(entry.ErrorMessage)),
				)
			}
		}
		return fmt.Errorf("%d events failed to publish", result.FailedEntryCount)
	}

	p.logger.Debug("events published",
		zap.Int("count", len(entries)),
		zap.String("event_bus", p.eventBusName),
	)
	return nil
}
