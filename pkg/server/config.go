package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethpandaops/trace-processor/pkg/ethereum"
	"github.com/ethpandaops/trace-processor/pkg/processor"
	"github.com/ethpandaops/trace-processor/pkg/rpc"
	"github.com/ethpandaops/trace-processor/pkg/store"
)

type Config struct {
	// MetricsAddr is the address to listen on for metrics.
	MetricsAddr string `yaml:"metricsAddr" default:":9090"`
	// HealthCheckAddr is the address to listen on for healthcheck.
	HealthCheckAddr *string `yaml:"healthCheckAddr"`
	// PProfAddr is the address to listen on for pprof.
	PProfAddr *string `yaml:"pprofAddr"`
	// APIAddr is the address to listen on for the admin HTTP API.
	APIAddr *string `yaml:"apiAddr"`
	// LoggingLevel is the logging level to use.
	LoggingLevel string `yaml:"logging" default:"info"`
	// Logging controls the in-memory log buffer served by ethcore_devLogs.
	Logging LoggingConfig `yaml:"devLogs"`
	// Node describes this service to JSON-RPC clients.
	Node NodeConfig `yaml:"node"`
	// Ethereum is the ethereum network configuration.
	Ethereum ethereum.Config `yaml:"ethereum"`
	// Store is the flat trace store configuration.
	Store store.Config `yaml:"store"`
	// Processor is the block ingest configuration.
	Processor processor.Config `yaml:"processor"`
	// RPC is the JSON-RPC server configuration.
	RPC rpc.Config `yaml:"rpc"`
	// MemoryMonitor periodically reports runtime memory usage.
	MemoryMonitor MemoryMonitorConfig `yaml:"memoryMonitor"`
	// ShutdownTimeout is the timeout for shutting down the server.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"10s"`
}

type LoggingConfig struct {
	// Lines is the number of recent log lines kept.
	Lines int `yaml:"lines" default:"128"`
	// Level is the most verbose level buffered.
	Level string `yaml:"level" default:"info"`
}

type NodeConfig struct {
	// Name is reported by ethcore_nodeName.
	Name string `yaml:"name" default:"trace-processor"`
	// NetworkPort is reported by ethcore_netPort.
	NetworkPort uint16 `yaml:"networkPort" default:"30303"`
	// MaxPeers is reported by ethcore_netMaxPeers.
	MaxPeers uint32 `yaml:"maxPeers" default:"25"`
	// Accounts are served by eth_accounts and personal_listAccounts.
	Accounts []string `yaml:"accounts"`
}

type MemoryMonitorConfig struct {
	Enabled             bool          `yaml:"enabled" default:"false"`
	Interval            time.Duration `yaml:"interval" default:"1m"`
	WarningThresholdMB  uint64        `yaml:"warningThresholdMB" default:"2048"`
	CriticalThresholdMB uint64        `yaml:"criticalThresholdMB" default:"4096"`
}

func (c *MemoryMonitorConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Interval <= 0 {
		return errors.New("interval must be positive")
	}

	if c.CriticalThresholdMB < c.WarningThresholdMB {
		return fmt.Errorf("critical threshold (%d MB) is below the warning threshold (%d MB)", c.CriticalThresholdMB, c.WarningThresholdMB)
	}

	return nil
}

// AccountAddresses parses the configured account list.
func (c *NodeConfig) AccountAddresses() ([]common.Address, error) {
	out := make([]common.Address, 0, len(c.Accounts))

	for _, raw := range c.Accounts {
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAccount, raw)
		}

		out = append(out, common.HexToAddress(raw))
	}

	return out, nil
}

func (c *Config) Validate() error {
	if err := c.Ethereum.Validate(); err != nil {
		return fmt.Errorf("invalid ethereum configuration: %w", err)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("invalid store configuration: %w", err)
	}

	if err := c.Processor.Validate(); err != nil {
		return fmt.Errorf("invalid processor configuration: %w", err)
	}

	if c.Processor.LeaderElection.Enabled && c.Store.Type != store.TypeRedis {
		return ErrLeaderElectionRequiresRedis
	}

	if err := c.RPC.Validate(); err != nil {
		return fmt.Errorf("invalid rpc configuration: %w", err)
	}

	if _, err := c.Node.AccountAddresses(); err != nil {
		return fmt.Errorf("invalid node configuration: %w", err)
	}

	if c.Logging.Lines < 0 {
		return errors.New("devLogs.lines must not be negative")
	}

	if _, err := parseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid devLogs level: %w", err)
	}

	if err := c.MemoryMonitor.Validate(); err != nil {
		return fmt.Errorf("invalid memory monitor configuration: %w", err)
	}

	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdownTimeout must be positive")
	}

	return nil
}
