// Command ingestor wires the temporal graph engine together and drains a
// change feed from stdin: one JSON record per line, shaped as
//
//	{"lineage_id": "m1", "properties": {"downloads": 42, "license": "mit"}}
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"chronograph-backend/internal/config"
	"chronograph-backend/internal/domain"
	"chronograph-backend/internal/infrastructure/messaging"
	"chronograph-backend/internal/infrastructure/messaging/eventbridge"
	ddb "chronograph-backend/internal/infrastructure/persistence/dynamodb"
	"chronograph-backend/internal/infrastructure/persistence/memory"
	"chronograph-backend/internal/ingestion"
	"chronograph-backend/internal/observability"
	"chronograph-backend/internal/repository"
	"chronograph-backend/internal/service/versioning"
)

func main() {
	cfg := config.MustLoad(os.Getenv("CONFIG_DIR"))

	logger, err := observability.NewLogger(string(cfg.Environment))
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewCollector(cfg.Telemetry.MetricsNamespace)

	var tracing *observability.TracerProvider
	if cfg.Telemetry.TracingEnabled {
		tp, err := observability.InitTracing(cfg.Telemetry.ServiceName, string(cfg.Environment), cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			logger.Fatal("failed to init tracing", zap.Error(err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("tracer shutdown failed", zap.Error(err))
			}
		}()
		tracing = tp
	}

	if cfg.Environment == config.Development {
		watcher, err := config.NewWatcher(os.Getenv("CONFIG_DIR"), cfg, logger)
		if err != nil {
			logger.Warn("configuration hot reload unavailable", zap.Error(err))
		} else {
			watcher.OnReload(func(*config.Config) {
				logger.Info("configuration reloaded; store and bus changes apply on restart")
			})
			defer watcher.Stop()
		}
	}

	repo, err := buildRepository(ctx, cfg, metrics, logger)
	if err != nil {
		logger.Fatal("failed to build store", zap.Error(err))
	}
	if tracing != nil {
		repo = observability.TraceRepository(repo, tracing.Tracer())
	}
	bus, err := buildEventBus(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build event bus", zap.Error(err))
	}

	allowList := make([]domain.EdgeType, 0, len(cfg.Versioning.EdgeAllowList))
	for _, t := range cfg.Versioning.EdgeAllowList {
		allowList = append(allowList, domain.EdgeType(t))
	}
	versioner := versioning.NewService(repo, versioning.Config{
		Schema:        domain.NewSchema(cfg.Versioning.ComparableFields...),
		EdgeAllowList: allowList,
		MaxRetries:    cfg.Versioning.MaxRetries,
	}, bus, metrics, logger)

	processor := ingestion.NewProcessor(versioner, ingestion.DefaultBreakerConfig(), logger)

	feed := make(chan ingestion.Record)
	go readFeed(feed, logger)

	logger.Info("ingestor started",
		zap.String("store", cfg.Store.Driver),
		zap.String("events", cfg.Events.Provider),
	)
	if err := processor.Run(ctx, feed); err != nil && err != context.Canceled {
		logger.Fatal("ingestion stopped", zap.Error(err))
	}
	logger.Info("ingestor stopped")
}

func buildRepository(ctx context.Context, cfg *config.Config, metrics *observability.Collector, logger *zap.Logger) (repository.Repository, error) {
	switch cfg.Store.Driver {
	case "dynamodb":
		client, err := ddb.NewClient(ctx, cfg.Store.Region)
		if err != nil {
			return nil, err
		}
		return ddb.NewStore(client, cfg.Store.TableName, metrics, logger), nil
	default:
		return memory.NewStore(), nil
	}
}

func buildEventBus(ctx context.Context, cfg *config.Config, logger *zap.Logger) (messaging.EventBus, error) {
	if cfg.Events.Provider != "eventbridge" {
		return messaging.NoopBus{}, nil
	}
	client, err := ddb.NewEventBridgeClient(ctx, cfg.Store.Region)
	if err != nil {
		return nil, err
	}
	return eventbridge.NewPublisher(client, cfg.Events.EventBusName, logger), nil
}

type feedLine struct {
	LineageID string         `json:"lineage_id"`
	Raw       map[string]any `json:"properties"`
}

func readFeed(feed chan<- ingestion.Record, logger *zap.Logger) {
	defer close(feed)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var parsed feedLine
		if err := json.Unmarshal(line, &parsed); err != nil {
			logger.Warn("skipping malformed feed line", zap.Error(err))
			continue
		}
		feed <- ingestion.Record{
			LineageID:  parsed.LineageID,
			Properties: toProperties(parsed.Raw),
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("feed read failed", zap.Error(err))
	}
}

func toProperties(raw map[string]any) domain.Properties {
	props := make(domain.Properties, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case float64:
			props[key] = domain.NumberValue(v)
		case string:
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				props[key] = domain.TimeValue(t)
			} else {
				props[key] = domain.StringValue(v)
			}
		case bool:
			if v {
				props[key] = domain.StringValue("true")
			} else {
				props[key] = domain.StringValue("false")
			}
		}
	}
	return props
}
