// Package observability provides Prometheus metrics, structured logging and
// distributed tracing for the graph engine.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Global collector instance for singleton pattern
	globalCollector *Collector
	collectorMutex  sync.Mutex
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	registry *prometheus.Registry

	// Versioning metrics
	LineagesCreated  prometheus.Counter
	VersionsBranched prometheus.Counter
	RecordsUnchanged prometheus.Counter
	BranchConflicts  prometheus.Counter
	EdgesMigrated    prometheus.Counter

	// Observation log metrics
	DedupRemovals prometheus.Counter

	// Bulk execution metrics
	BatchesProcessed prometheus.Counter
	BatchFailures    prometheus.Counter

	// Store metrics
	StoreOperations *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec
}

// NewCollector creates a new metrics collector with the given namespace.
// Uses a singleton to avoid duplicate registration in tests.
func NewCollector(namespace string) *Collector {
	collectorMutex.Lock()
	defer collectorMutex.Unlock()

	if globalCollector != nil {
		return globalCollector
	}

	registry := prometheus.NewRegistry()

	lineagesCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lineages_created_total",
		Help:      "Total number of lineages receiving a first version",
	})
	versionsBranched := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "versions_branched_total",
		Help:      "Total number of branch operations committed",
	})
	recordsUnchanged := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_unchanged_total",
		Help:      "Total number of ingested records that were no-ops",
	})
	branchConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "branch_conflicts_total",
		Help:      "Total number of optimistic lock conflicts during branching",
	})
	edgesMigrated := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "edges_migrated_total",
		Help:      "Total number of relationships carried forward on branch",
	})
	dedupRemovals := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "observation_dedup_removals_total",
		Help:      "Total number of observation log entries removed by dedup",
	})
	batchesProcessed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bulk_batches_processed_total",
		Help:      "Total number of bulk mutation batches processed",
	})
	batchFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bulk_batch_failures_total",
		Help:      "Total number of bulk mutation batches that failed",
	})
	storeOperations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of store operations",
		},
		[]string{"operation", "status"},
	)
	storeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	registry.MustRegister(
		lineagesCreated,
		versionsBranched,
		recordsUnchanged,
		branchConflicts,
		edgesMigrated,
		dedupRemovals,
		batchesProcessed,
		batchFailures,
		storeOperations,
		storeDuration,
	)

	globalCollector = &Collector{
		registry:         registry,
		LineagesCreated:  lineagesCreated,
		VersionsBranched: versionsBranched,
		RecordsUnchanged: recordsUnchanged,
		BranchConflicts:  branchConflicts,
		EdgesMigrated:    edgesMigrated,
		DedupRemovals:    dedupRemovals,
		BatchesProcessed: batchesProcessed,
		BatchFailures:    batchFailures,
		StoreOperations:  storeOperations,
		StoreDuration:    storeDuration,
	}
	return globalCollector
}

// ResetForTesting resets the global collector for testing purposes
func ResetForTesting() {
	collectorMutex.Lock()
	defer collectorMutex.Unlock()
	globalCollector = nil
}

// GetRegistry returns the Prometheus registry for this collector
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}
