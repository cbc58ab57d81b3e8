// Package ingestion drains a change feed of (lineage, properties) records
// into the version manager, shedding load through a circuit breaker when the
// store is struggling.
package ingestion

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"chronograph-backend/internal/domain"
	"chronograph-backend/internal/repository"
	appErrors "chronograph-backend/pkg/errors"
)

// Record is one logical entity update from the upstream feed. The feed's
// transport is out of scope; anything that can produce this shape can drive
// the processor.
type Record struct {
	LineageID  string
	Properties domain.Properties
}

// Applier is the slice of the version manager the processor needs.
type Applier interface {
	ApplyRecord(ctx context.Context, lineageID string, props domain.Properties) (string, error)
}

// BreakerConfig tunes the circuit breaker in front of the store.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns a breaker tuned to trip only on sustained
// store failure.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// Processor consumes records and applies them through the version manager.
type Processor struct {
	applier Applier
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewProcessor creates a feed processor.
func NewProcessor(applier Applier, cfg BreakerConfig, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ingestion",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// Only store-level unavailability counts against the breaker;
			// validation and conflict errors are the caller's problem.
			return err == nil || !repository.IsUnavailable(err)
		},
	})
	return &Processor{applier: applier, breaker: breaker, logger: logger}
}

// Apply ingests one record through the breaker.
func (p *Processor) Apply(ctx context.Context, record Record) (string, error) {
	if record.LineageID == "" {
		return "", appErrors.NewValidation("record lineage id cannot be empty")
	}

	result, err := p.breaker.Execute(func() (any, error) {
		return p.applier.ApplyRecord(ctx, record.LineageID, record.Properties)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", appErrors.NewInternal("ingestion paused: store circuit open", err)
		}
		return "", err
	}
	return result.(string), nil
}

// Run drains the feed until it closes or the context is cancelled. Individual
// record failures are logged and skipped; store unavailability ends the run.
func (p *Processor) Run(ctx context.Context, feed <-chan Record) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case record, ok := <-feed:
			if !ok {
				return nil
			}
			if _, err := p.Apply(ctx, record); err != nil {
				if repository.IsUnavailable(err) {
					return err
				}
				p.logger.Error("failed to apply record",
					zap.String("lineage_id", record.LineageID),
					zap.Error(err),
				)
			}
		}
	}
}
