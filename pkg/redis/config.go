package redis

import (
	"fmt"
)

type Config struct {
	// Address of the redis server, with or without the redis:// scheme
	Address string `yaml:"address"`
	// Password for AUTH, if any
	Password string `yaml:"password"`
	// DB selects the logical database
	DB int `yaml:"db" default:"0"`
	// Prefix is prepended to every key written by this service
	Prefix string `yaml:"prefix" default:"trace-processor"`
}

func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.DB < 0 {
		return fmt.Errorf("redis db must not be negative")
	}

	if c.Prefix == "" {
		c.Prefix = "trace-processor"
	}

	return nil
}

// Key joins parts onto the configured prefix.
func (c *Config) Key(parts ...string) string {
	key := c.Prefix
	for _, part := range parts {
		key += ":" + part
	}

	return key
}
