package testutil

import (
	"context"
	"net"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcclickhouse "github.com/testcontainers/testcontainers-go/modules/clickhouse"
)

// ClickHouseConnection holds the native protocol connection details of a container.
type ClickHouseConnection struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
}

func (c ClickHouseConnection) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// NewClickHouseContainer starts a real ClickHouse server for integration tests.
func NewClickHouseContainer(t testing.TB) ClickHouseConnection {
	t.Helper()

	ctx := context.Background()

	conn := ClickHouseConnection{Database: "default", Username: "default"}

	c, err := tcclickhouse.Run(ctx, "clickhouse/clickhouse-server:24.8-alpine",
		tcclickhouse.WithUsername(conn.Username),
		tcclickhouse.WithPassword(conn.Password),
		tcclickhouse.WithDatabase(conn.Database),
	)
	testcontainers.CleanupContainer(t, c)

	if err != nil {
		t.Fatalf("failed to start clickhouse container: %v", err)
	}

	if conn.Host, err = c.Host(ctx); err != nil {
		t.Fatalf("failed to get clickhouse host: %v", err)
	}

	port, err := c.MappedPort(ctx, "9000/tcp")
	if err != nil {
		t.Fatalf("failed to get clickhouse port: %v", err)
	}

	conn.Port = port.Port()

	return conn
}
