package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/trace-processor/pkg/clickhouse"
	"github.com/ethpandaops/trace-processor/pkg/rowbuffer"
	"github.com/ethpandaops/trace-processor/pkg/store"
)

// Exporter writes stored blocks to ClickHouse, batching rows of concurrent
// blocks into shared inserts.
type Exporter struct {
	log     logrus.FieldLogger
	client  clickhouse.ClientInterface
	config  *ExportConfig
	network string
	buffer  *rowbuffer.Buffer[Row]
	now     func() time.Time
}

func NewExporter(log logrus.FieldLogger, client clickhouse.ClientInterface, config *ExportConfig) *Exporter {
	return &Exporter{
		log:    log.WithField("component", "exporter"),
		client: client,
		config: config,
		now:    time.Now,
	}
}

// Start connects to ClickHouse and starts the row buffer for network.
func (e *Exporter) Start(ctx context.Context, network string) error {
	e.network = network
	e.client.SetNetwork(network)

	if err := e.client.Start(); err != nil {
		return fmt.Errorf("failed to start clickhouse client: %w", err)
	}

	if e.config.CreateTable {
		if err := e.client.Execute(ctx, CreateTableQuery(e.config.Table)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", e.config.Table, err)
		}
	}

	e.buffer = rowbuffer.New(e.log, e.config.Buffer, rowbuffer.Labels{Network: network, Table: e.config.Table}, e.flush)

	return e.buffer.Start(ctx)
}

func (e *Exporter) Stop(ctx context.Context) error {
	var bufErr error

	if e.buffer != nil {
		bufErr = e.buffer.Stop(ctx)
	}

	if err := e.client.Stop(); err != nil {
		return err
	}

	return bufErr
}

// Export blocks until every row of block has been written.
func (e *Exporter) Export(ctx context.Context, block *store.BlockRecord) error {
	if e.buffer == nil {
		return rowbuffer.ErrNotStarted
	}

	return e.buffer.Submit(ctx, BlockRows(block, e.network, e.now()))
}

func (e *Exporter) flush(ctx context.Context, rows []Row) error {
	cols := NewColumns()
	for i := range rows {
		cols.Append(rows[i])
	}

	return e.client.Insert(ctx, e.config.Table, cols.Input())
}
