package clickhouse

import (
	"context"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/proto"
)

// ClientInterface defines the methods for writing to ClickHouse.
type ClientInterface interface {
	// Start dials the connection pool.
	Start() error
	// Stop closes the connection pool.
	Stop() error
	// Do runs a raw ch-go query.
	Do(ctx context.Context, query ch.Query) error
	// Execute runs a statement without expecting results.
	Execute(ctx context.Context, query string) error
	// Insert writes the columns of input into table.
	Insert(ctx context.Context, table string, input proto.Input) error
	// SetNetwork updates the network name for metrics labeling.
	SetNetwork(network string)
}
