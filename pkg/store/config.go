package store

import (
	"fmt"
	"time"

	"github.com/ethpandaops/trace-processor/pkg/redis"
)

const (
	TypeMemory = "memory"
	TypeRedis  = "redis"
)

type MemoryConfig struct {
	// MaxBlocks bounds the number of blocks kept; the least recently used are evicted
	MaxBlocks int `yaml:"maxBlocks" default:"1024"`
}

type RedisConfig struct {
	redis.Config `yaml:",inline"`
	// TTL expires stored blocks; zero keeps them forever
	TTL time.Duration `yaml:"ttl" default:"0s"`
}

type Config struct {
	// Type selects the backend: memory or redis
	Type   string       `yaml:"type" default:"memory"`
	Memory MemoryConfig `yaml:"memory"`
	Redis  RedisConfig  `yaml:"redis"`
}

func (c *Config) Validate() error {
	switch c.Type {
	case TypeMemory:
		if c.Memory.MaxBlocks <= 0 {
			return fmt.Errorf("memory.maxBlocks must be positive")
		}
	case TypeRedis:
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}

		if c.Redis.TTL < 0 {
			return fmt.Errorf("redis.ttl must not be negative")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, c.Type)
	}

	return nil
}
