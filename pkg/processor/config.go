package processor

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/trace-processor/pkg/clickhouse"
	"github.com/ethpandaops/trace-processor/pkg/leaderelection"
	"github.com/ethpandaops/trace-processor/pkg/rowbuffer"
)

// Config holds the block ingest configuration.
type Config struct {
	Enabled bool `yaml:"enabled" default:"true"`
	// Interval between head checks
	Interval time.Duration `yaml:"interval" default:"12s"`
	// StartBlock is used when no cursor is stored. When unset ingestion starts at the head.
	StartBlock *uint64 `yaml:"startBlock"`
	// Confirmations is how far behind the head blocks are processed
	Confirmations uint64 `yaml:"confirmations" default:"2"`
	// MaxBlocksPerTick bounds catch-up work per interval
	MaxBlocksPerTick int `yaml:"maxBlocksPerTick" default:"16"`
	// Workers is the flatten worker count. 0 uses GOMAXPROCS.
	Workers int `yaml:"workers" default:"0"`
	// Verify re-validates flat output before it is stored
	Verify bool `yaml:"verify" default:"false"`

	Retry          RetryConfig           `yaml:"retry"`
	LeaderElection leaderelection.Config `yaml:"leaderElection"`
	Export         ExportConfig          `yaml:"export"`
}

// RetryConfig controls retries of trace fetches.
type RetryConfig struct {
	InitialInterval time.Duration `yaml:"initialInterval" default:"500ms"`
	MaxInterval     time.Duration `yaml:"maxInterval" default:"10s"`
	MaxElapsedTime  time.Duration `yaml:"maxElapsedTime" default:"1m"`
}

// ExportConfig configures the optional ClickHouse sink.
type ExportConfig struct {
	Enabled bool   `yaml:"enabled" default:"false"`
	Table   string `yaml:"table" default:"trace_flat"`
	// CreateTable issues CREATE TABLE IF NOT EXISTS on start
	CreateTable bool `yaml:"createTable" default:"false"`

	clickhouse.Config `yaml:",inline"`

	Buffer rowbuffer.Config `yaml:"buffer"`
}

func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Interval <= 0 {
		return errors.New("interval must be positive")
	}

	if c.MaxBlocksPerTick <= 0 {
		return errors.New("maxBlocksPerTick must be positive")
	}

	if c.Workers < 0 {
		return errors.New("workers must not be negative")
	}

	if err := c.LeaderElection.Validate(); err != nil {
		return err
	}

	if c.Export.Enabled {
		if c.Export.Table == "" {
			return errors.New("export table is required when export is enabled")
		}

		if err := c.Export.Config.Validate(); err != nil {
			return fmt.Errorf("invalid export clickhouse config: %w", err)
		}
	}

	return nil
}
