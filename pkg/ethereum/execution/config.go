package execution

import (
	"errors"
	"net/url"
	"time"
)

type Config struct {
	// Name of the node, used in logs and metric labels
	Name string `yaml:"name"`
	// NodeAddress is the JSON-RPC endpoint of the execution client
	NodeAddress string `yaml:"nodeAddress"`
	// NodeHeaders are sent with every request to the node
	NodeHeaders map[string]string `yaml:"nodeHeaders"`
	// TraceTimeout bounds a single debug_traceBlockByNumber call
	TraceTimeout time.Duration `yaml:"traceTimeout" default:"60s"`
}

func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}

	if c.NodeAddress == "" {
		return errors.New("nodeAddress is required")
	}

	if _, err := url.Parse(c.NodeAddress); err != nil {
		return errors.New("nodeAddress is not a valid url")
	}

	return nil
}
