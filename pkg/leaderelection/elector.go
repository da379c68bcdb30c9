// Package leaderelection decides which replica runs the block ingest loop.
// Every replica serves read traffic; only the leader writes.
package leaderelection

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNoLeader = errors.New("no leader elected")

// LeadershipCallback runs synchronously on every leadership transition and
// must return quickly so renewal is not delayed.
type LeadershipCallback func(ctx context.Context, isLeader bool)

// Elector is implemented by RedisElector and Standalone.
type Elector interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsLeader() bool
	// OnLeadershipChange registers a callback. Callbacks run in registration order.
	OnLeadershipChange(callback LeadershipCallback)
	// LeaderID returns ErrNoLeader when the lock is free.
	LeaderID(ctx context.Context) (string, error)
}

//nolint:tagliatelle // YAML config uses camelCase by convention
type Config struct {
	// Enabled elects a leader through Redis. When disabled the process always leads.
	Enabled bool `yaml:"enabled" default:"false"`
	// TTL of the leader lock.
	TTL time.Duration `yaml:"ttl" default:"10s"`
	// RenewalInterval controls how often the lock is renewed or contended.
	RenewalInterval time.Duration `yaml:"renewalInterval" default:"3s"`
	// NodeID identifies this replica. A random ID is generated when empty.
	NodeID string `yaml:"nodeId"`
}

func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.TTL <= 0 {
		return errors.New("leader election ttl must be positive")
	}

	if c.RenewalInterval <= 0 || c.RenewalInterval >= c.TTL {
		return fmt.Errorf("leader election renewal interval (%s) must be positive and below the ttl (%s)", c.RenewalInterval, c.TTL)
	}

	return nil
}
