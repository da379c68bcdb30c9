package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/chpool"
	"github.com/ClickHouse/ch-go/proto"
	"github.com/creasty/defaults"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/trace-processor/pkg/common"
)

const (
	statusSuccess = "success"
	statusFailed  = "failed"
)

var ErrNotStarted = errors.New("clickhouse client is not started")

var _ ClientInterface = (*Client)(nil)

// Client implements ClientInterface on a ch-go connection pool.
type Client struct {
	pool        *chpool.Pool
	config      *Config
	compression ch.Compression
	network     string
	log         logrus.FieldLogger
	lock        sync.RWMutex

	metricsDone chan struct{}
	metricsWg   sync.WaitGroup
}

// New creates a client. Nothing is dialed until Start.
func New(log logrus.FieldLogger, cfg *Config) (*Client, error) {
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	compression := ch.CompressionLZ4

	switch cfg.Compression {
	case "zstd":
		compression = ch.CompressionZSTD
	case "none":
		compression = ch.CompressionDisabled
	}

	return &Client{
		config:      cfg,
		compression: compression,
		log:         log.WithField("component", "clickhouse"),
	}, nil
}

// withQueryTimeout applies QueryTimeout unless ctx already carries a deadline.
func (c *Client) withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.QueryTimeout == 0 {
		return ctx, func() {}
	}

	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.config.QueryTimeout)
}

func (c *Client) getPool() (*chpool.Pool, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	if c.pool == nil {
		return nil, ErrNotStarted
	}

	return c.pool, nil
}

func (c *Client) getNetwork() string {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.network
}

// Start dials ClickHouse, retrying transient failures.
func (c *Client) Start() error {
	if _, err := c.getPool(); err == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.config.DialTimeout*time.Duration(c.config.MaxRetries+1))
	defer cancel()

	var pool *chpool.Pool

	err := retry(ctx, c.log, c.config, "dial", func() error {
		var dialErr error

		pool, dialErr = chpool.Dial(ctx, chpool.Options{
			ClientOptions: ch.Options{
				Address:     c.config.Addr,
				Database:    c.config.Database,
				User:        c.config.Username,
				Password:    c.config.Password,
				Compression: c.compression,
				DialTimeout: c.config.DialTimeout,
			},
			MaxConns:          c.config.MaxConns,
			MinConns:          c.config.MinConns,
			MaxConnLifetime:   c.config.ConnMaxLifetime,
			MaxConnIdleTime:   c.config.ConnMaxIdleTime,
			HealthCheckPeriod: c.config.HealthCheckPeriod,
		})

		return dialErr
	})
	if err != nil {
		return fmt.Errorf("failed to dial clickhouse: %w", err)
	}

	done := make(chan struct{})

	c.lock.Lock()
	c.pool = pool
	c.metricsDone = done
	c.lock.Unlock()

	c.metricsWg.Add(1)

	go c.collectPoolMetrics(pool, done)

	c.log.WithField("addr", c.config.Addr).Info("Connected to ClickHouse")

	return nil
}

// Stop closes the connection pool.
func (c *Client) Stop() error {
	c.lock.Lock()
	pool := c.pool
	done := c.metricsDone
	c.pool = nil
	c.metricsDone = nil
	c.lock.Unlock()

	if done != nil {
		close(done)
		c.metricsWg.Wait()
	}

	if pool != nil {
		pool.Close()
		c.log.Info("Closed ClickHouse connection pool")
	}

	return nil
}

func (c *Client) SetNetwork(network string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.network = network
}

// Do runs query once on the pool.
func (c *Client) Do(ctx context.Context, query ch.Query) error {
	pool, err := c.getPool()
	if err != nil {
		return err
	}

	return pool.Do(ctx, query)
}

// Execute runs a statement with retries.
func (c *Client) Execute(ctx context.Context, query string) error {
	start := time.Now()
	status := statusSuccess

	defer func() {
		c.recordMetrics("execute", extractTableName(query), status, time.Since(start))
	}()

	pool, err := c.getPool()
	if err != nil {
		status = statusFailed

		return err
	}

	err = retry(ctx, c.log, c.config, "execute", func() error {
		attemptCtx, cancel := c.withQueryTimeout(ctx)
		defer cancel()

		return pool.Do(attemptCtx, ch.Query{Body: query})
	})
	if err != nil {
		status = statusFailed

		return fmt.Errorf("execution failed: %w", err)
	}

	return nil
}

// Insert writes input into table with retries. The columns of input are left intact.
func (c *Client) Insert(ctx context.Context, table string, input proto.Input) error {
	start := time.Now()
	status := statusSuccess

	rows := 0
	if len(input) > 0 {
		rows = input[0].Data.Rows()
	}

	defer func() {
		c.recordMetrics("insert", table, status, time.Since(start))
		common.ClickHouseInsertsRows.WithLabelValues(c.getNetwork(), table, status).Add(float64(rows))
	}()

	if rows == 0 {
		return nil
	}

	pool, err := c.getPool()
	if err != nil {
		status = statusFailed

		return err
	}

	err = retry(ctx, c.log, c.config, "insert", func() error {
		attemptCtx, cancel := c.withQueryTimeout(ctx)
		defer cancel()

		return pool.Do(attemptCtx, ch.Query{
			Body:  input.Into(table),
			Input: input,
		})
	})
	if err != nil {
		status = statusFailed

		return fmt.Errorf("insert into %s failed: %w", table, err)
	}

	return nil
}

// extractTableName finds the table a statement targets, for metric labels.
func extractTableName(query string) string {
	fields := strings.Fields(strings.TrimSpace(query))
	upper := make([]string, len(fields))

	for i, f := range fields {
		upper[i] = strings.ToUpper(f)
	}

	clean := func(i int) string {
		if i >= len(fields) {
			return ""
		}

		return strings.Trim(fields[i], "`'\"")
	}

	for i, word := range upper {
		switch word {
		case "INTO", "FROM":
			return clean(i + 1)
		case "TABLE":
			next := i + 1
			for next < len(upper) && (upper[next] == "IF" || upper[next] == "NOT" || upper[next] == "EXISTS") {
				next++
			}

			return clean(next)
		}
	}

	return ""
}

func (c *Client) recordMetrics(operation, table, status string, duration time.Duration) {
	network := c.getNetwork()

	common.ClickHouseOperationDuration.WithLabelValues(network, operation, table, status).Observe(duration.Seconds())
	common.ClickHouseOperationTotal.WithLabelValues(network, operation, table, status).Inc()
}

// collectPoolMetrics publishes pool statistics until Stop.
func (c *Client) collectPoolMetrics(pool *chpool.Pool, done <-chan struct{}) {
	defer c.metricsWg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	var prevAcquireCount int64

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			network := c.getNetwork()
			if network == "" {
				continue
			}

			stat := pool.Stat()

			common.ClickHousePoolAcquiredResources.WithLabelValues(network).Set(float64(stat.AcquiredResources()))
			common.ClickHousePoolIdleResources.WithLabelValues(network).Set(float64(stat.IdleResources()))
			common.ClickHousePoolTotalResources.WithLabelValues(network).Set(float64(stat.TotalResources()))
			common.ClickHousePoolMaxResources.WithLabelValues(network).Set(float64(stat.MaxResources()))

			current := stat.AcquireCount()
			if prevAcquireCount > 0 && current > prevAcquireCount {
				common.ClickHousePoolAcquireTotal.WithLabelValues(network).Add(float64(current - prevAcquireCount))
			}

			prevAcquireCount = current
		}
	}
}
