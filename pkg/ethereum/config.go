package ethereum

import (
	"fmt"

	"github.com/ethpandaops/trace-processor/pkg/ethereum/execution"
)

type Config struct {
	// Execution clients that produce call traces
	Execution []*execution.Config `yaml:"execution"`
	// Override network name for custom networks (bypasses networkMap)
	OverrideNetworkName *string `yaml:"overrideNetworkName"`
}

func (c *Config) Validate() error {
	if len(c.Execution) == 0 {
		return ErrNoNodesConfigured
	}

	names := make(map[string]struct{}, len(c.Execution))

	for i, node := range c.Execution {
		if err := node.Validate(); err != nil {
			return fmt.Errorf("invalid execution configuration at index %d: %w", i, err)
		}

		if _, ok := names[node.Name]; ok {
			return fmt.Errorf("duplicate execution node name %q", node.Name)
		}

		names[node.Name] = struct{}{}
	}

	return nil
}
