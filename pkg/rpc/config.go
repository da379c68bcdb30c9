package rpc

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// API namespaces that can be enabled.
const (
	APIWeb3     = "web3"
	APINet      = "net"
	APIEth      = "eth"
	APIPersonal = "personal"
	APIEthcore  = "ethcore"
	APITrace    = "trace"
)

var knownAPIs = map[string]bool{
	APIWeb3:     true,
	APINet:      true,
	APIEth:      true,
	APIPersonal: true,
	APIEthcore:  true,
	APITrace:    true,
}

type Config struct {
	Enabled bool `yaml:"enabled" default:"true"`
	// Interface is "all", "local" or a literal IP address
	Interface string `yaml:"interface" default:"local"`
	Port      int    `yaml:"port" default:"8545"`
	// APIs is a comma separated list of namespaces to serve
	APIs string `yaml:"apis" default:"web3,net,eth,trace"`
	// CORS is the allowed origin list. Unset disables cross-origin handling.
	CORS *string `yaml:"cors"`
}

func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if _, err := c.ListenAddr(); err != nil {
		return err
	}

	for _, name := range c.APINames() {
		if !knownAPIs[name] {
			return fmt.Errorf("%w: %q", ErrUnknownAPI, name)
		}
	}

	return nil
}

// ListenAddr resolves Interface and Port into a host:port address.
func (c *Config) ListenAddr() (string, error) {
	host := c.Interface

	switch host {
	case "all":
		host = "0.0.0.0"
	case "local":
		host = "127.0.0.1"
	}

	if _, err := netip.ParseAddr(host); err != nil {
		return "", fmt.Errorf("%w: %s:%d", ErrInvalidListenAddress, c.Interface, c.Port)
	}

	if c.Port < 0 || c.Port > 65535 {
		return "", fmt.Errorf("%w: %s:%d", ErrInvalidListenAddress, c.Interface, c.Port)
	}

	return net.JoinHostPort(host, strconv.Itoa(c.Port)), nil
}

// APINames returns the configured namespaces in order, without blanks.
func (c *Config) APINames() []string {
	parts := strings.Split(c.APIs, ",")
	names := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}

	return names
}

// CORSOrigins splits the configured origin list.
func (c *Config) CORSOrigins() []string {
	if c.CORS == nil {
		return nil
	}

	parts := strings.Split(*c.CORS, ",")
	origins := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}

	return origins
}
