package common

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BlockHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trace_processor_block_height",
		Help: "Last block whose traces were flattened and stored",
	}, []string{"network"})

	HeadDistance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trace_processor_head_distance",
		Help: "Distance between the processing cursor and the execution node head",
	}, []string{"network"})

	BlocksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trace_processor_blocks_processed_total",
		Help: "Total number of blocks processed",
	}, []string{"network", "trigger"})

	BlockProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trace_processor_block_processing_duration_seconds",
		Help:    "Time taken to fetch, flatten and store a block",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"network"})

	FlattenDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trace_processor_flatten_duration_seconds",
		Help:    "Time taken to flatten every transaction of a block",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
	}, []string{"network"})

	TracesFlattened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trace_processor_traces_flattened_total",
		Help: "Total number of flat traces produced",
	}, []string{"network", "type"})

	TransactionsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trace_processor_transactions_processed_total",
		Help: "Total transactions flattened",
	}, []string{"network"})

	ProcessorErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trace_processor_errors_total",
		Help: "Total number of processor errors",
	}, []string{"network", "operation"})

	RetryCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trace_processor_retry_count_total",
		Help: "Total number of retry attempts",
	}, []string{"network", "reason"})

	RPCCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trace_processor_rpc_call_duration_seconds",
		Help:    "Duration of RPC calls to execution nodes",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"chain_id", "node", "method", "status"})

	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trace_processor_rpc_calls_total",
		Help: "Total RPC calls made to execution nodes",
	}, []string{"chain_id", "node", "method", "status"})

	RPCRequestsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trace_processor_rpc_requests_served_total",
		Help: "Total JSON-RPC requests served by namespace endpoints",
	}, []string{"method", "status"})

	StoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trace_processor_store_operation_duration_seconds",
		Help:    "Duration of trace store operations",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
	}, []string{"backend", "operation", "status"})

	ClickHouseOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trace_processor_clickhouse_operation_duration_seconds",
		Help:    "Duration of ClickHouse operations",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"network", "operation", "table", "status"})

	ClickHouseOperationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trace_processor_clickhouse_operation_total",
		Help: "Total number of ClickHouse operations",
	}, []string{"network", "operation", "table", "status"})

	ClickHouseInsertsRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trace_processor_clickhouse_inserted_rows_total",
		Help: "Total number of rows inserted into ClickHouse",
	}, []string{"network", "table", "status"})

	// ClickHouse pool metrics.
	ClickHousePoolAcquiredResources = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trace_processor_clickhouse_pool_acquired_resources",
		Help: "Number of currently acquired resources in the ClickHouse connection pool",
	}, []string{"network"})

	ClickHousePoolIdleResources = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trace_processor_clickhouse_pool_idle_resources",
		Help: "Number of currently idle resources in the ClickHouse connection pool",
	}, []string{"network"})

	ClickHousePoolTotalResources = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trace_processor_clickhouse_pool_total_resources",
		Help: "Total number of resources in the ClickHouse connection pool",
	}, []string{"network"})

	ClickHousePoolMaxResources = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trace_processor_clickhouse_pool_max_resources",
		Help: "Maximum number of resources allowed in the ClickHouse connection pool",
	}, []string{"network"})

	ClickHousePoolAcquireTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trace_processor_clickhouse_pool_acquire_total",
		Help: "Total number of successful resource acquisitions from the ClickHouse connection pool",
	}, []string{"network"})

	// Row buffer metrics for batched ClickHouse inserts.
	RowBufferFlushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trace_processor_row_buffer_flush_total",
		Help: "Total number of row buffer flushes",
	}, []string{"network", "table", "trigger", "status"})

	RowBufferFlushDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trace_processor_row_buffer_flush_duration_seconds",
		Help:    "Duration of row buffer flushes",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
	}, []string{"network", "table"})

	RowBufferFlushSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trace_processor_row_buffer_flush_size_rows",
		Help:    "Number of rows per flush",
		Buckets: prometheus.ExponentialBuckets(10, 2, 14),
	}, []string{"network", "table"})

	RowBufferPendingRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trace_processor_row_buffer_pending_rows",
		Help: "Current number of rows waiting in the buffer",
	}, []string{"network", "table"})

	RowBufferPendingTasks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trace_processor_row_buffer_pending_tasks",
		Help: "Current number of submitters waiting for their rows to be flushed",
	}, []string{"network", "table"})

	LeaderElectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trace_processor_leader_election_status",
		Help: "Current leader election status (1 = leader, 0 = follower)",
	}, []string{"network", "node_id"})

	LeaderElectionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trace_processor_leader_election_transitions_total",
		Help: "Total number of leader election transitions",
	}, []string{"network", "node_id", "transition"})

	LeaderElectionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trace_processor_leader_election_duration_seconds",
		Help:    "Duration in seconds this node held leadership",
		Buckets: prometheus.ExponentialBuckets(1, 2, 15),
	}, []string{"network", "node_id"})

	LeaderElectionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trace_processor_leader_election_errors_total",
		Help: "Total number of errors during leader election",
	}, []string{"network", "node_id", "operation"})

	MemoryUsage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trace_processor_memory_usage_bytes",
		Help: "Go runtime memory usage by kind",
	}, []string{"kind"})

	GoroutineCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trace_processor_goroutines",
		Help: "Number of running goroutines",
	})

	MemoryPressureEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trace_processor_memory_pressure_events_total",
		Help: "Total number of times allocated memory crossed a configured threshold",
	}, []string{"severity"})
)
