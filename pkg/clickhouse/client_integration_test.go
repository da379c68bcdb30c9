//go:build integration

package clickhouse

import (
	"context"
	"testing"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/trace-processor/internal/testutil"
)

// Integration tests using testcontainers - run with: go test -tags=integration ./...

func newContainerClient(t *testing.T) *Client {
	t.Helper()

	conn := testutil.NewClickHouseContainer(t)

	client, err := New(testLogger(), &Config{
		Addr:     conn.Addr(),
		Database: conn.Database,
		Username: conn.Username,
		Password: conn.Password,
	})
	require.NoError(t, err)
	require.NoError(t, client.Start())

	t.Cleanup(func() { _ = client.Stop() })

	client.SetNetwork("test")

	return client
}

func TestClient_Integration_ExecuteAndInsert(t *testing.T) {
	client := newContainerClient(t)
	ctx := context.Background()

	require.NoError(t, client.Execute(ctx, `
		CREATE TABLE IF NOT EXISTS integration_traces (
			block_number UInt64,
			trace_address Array(UInt32)
		) ENGINE = MergeTree ORDER BY block_number`))

	blocks := new(proto.ColUInt64)
	addresses := new(proto.ColUInt32).Array()

	for i := range uint64(3) {
		blocks.Append(i)
		addresses.Append([]uint32{uint32(i)})
	}

	require.NoError(t, client.Insert(ctx, "integration_traces", proto.Input{
		{Name: "block_number", Data: blocks},
		{Name: "trace_address", Data: addresses},
	}))

	var count proto.ColUInt64

	require.NoError(t, client.Do(ctx, ch.Query{
		Body:   "SELECT count() AS count FROM integration_traces",
		Result: proto.Results{{Name: "count", Data: &count}},
	}))

	require.Equal(t, 1, count.Rows())
	assert.Equal(t, uint64(3), count.Row(0))
}

func TestClient_Integration_StartIsIdempotent(t *testing.T) {
	client := newContainerClient(t)

	assert.NoError(t, client.Start())
	assert.NoError(t, client.Execute(context.Background(), "SELECT 1"))
}
