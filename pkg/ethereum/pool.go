package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/trace-processor/pkg/ethereum/execution"
)

type Pool struct {
	log            logrus.FieldLogger
	executionNodes []execution.Node
	metrics        *Metrics
	config         *Config

	mu sync.RWMutex

	healthyExecutionNodes map[execution.Node]bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPool creates a pool of RPC nodes from config.
func NewPool(log logrus.FieldLogger, namespace string, config *Config) *Pool {
	nodes := make([]execution.Node, 0, len(config.Execution))

	for _, execCfg := range config.Execution {
		nodes = append(nodes, execution.NewRPCNode(log, execCfg))
	}

	return NewPoolWithNodes(log, namespace, nodes, config)
}

// NewPoolWithNodes creates a pool with pre-created Node implementations.
// A nil config is treated as empty.
func NewPoolWithNodes(log logrus.FieldLogger, namespace string, nodes []execution.Node, config *Config) *Pool {
	namespace = fmt.Sprintf("%s_ethereum", namespace)

	if config == nil {
		config = &Config{}
	}

	return &Pool{
		log:                   log.WithField("component", "ethereum/pool"),
		executionNodes:        nodes,
		healthyExecutionNodes: make(map[execution.Node]bool, len(nodes)),
		metrics:               GetMetricsInstance(namespace),
		config:                config,
	}
}

func (p *Pool) HasExecutionNodes() bool {
	return len(p.executionNodes) > 0
}

func (p *Pool) HasHealthyExecutionNodes() bool {
	return len(p.GetHealthyExecutionNodes()) > 0
}

func (p *Pool) GetHealthyExecutionNodes() []execution.Node {
	p.mu.RLock()
	defer p.mu.RUnlock()

	healthyNodes := make([]execution.Node, 0, len(p.healthyExecutionNodes))

	for _, node := range p.executionNodes {
		if p.healthyExecutionNodes[node] {
			healthyNodes = append(healthyNodes, node)
		}
	}

	return healthyNodes
}

func (p *Pool) GetHealthyExecutionNode() execution.Node {
	healthyNodes := p.GetHealthyExecutionNodes()

	if len(healthyNodes) == 0 {
		return nil
	}

	//nolint:gosec // doesn't matter
	return healthyNodes[rand.IntN(len(healthyNodes))]
}

func (p *Pool) WaitForHealthyExecutionNode(ctx context.Context) (execution.Node, error) {
	if len(p.executionNodes) == 0 {
		return nil, ErrNoNodesConfigured
	}

	startTime := time.Now()

	p.log.WithField("total_nodes", len(p.executionNodes)).Info("Waiting for healthy execution node")

	statusLogTicker := time.NewTicker(10 * time.Second)
	defer statusLogTicker.Stop()

	pollTicker := time.NewTicker(100 * time.Millisecond)
	defer pollTicker.Stop()

	for {
		if node := p.GetHealthyExecutionNode(); node != nil {
			p.log.WithFields(logrus.Fields{
				"node":     node.Name(),
				"duration": time.Since(startTime).Round(time.Millisecond),
			}).Info("Found healthy execution node")

			return node, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-statusLogTicker.C:
			p.log.WithFields(logrus.Fields{
				"total_nodes": len(p.executionNodes),
				"waiting_for": time.Since(startTime).Round(time.Second),
			}).Info("Waiting for healthy execution node...")
		case <-pollTicker.C:
		}
	}
}

func (p *Pool) setHealthy(node execution.Node, healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.healthyExecutionNodes[node] = healthy
}

func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	g := new(errgroup.Group)

	p.UpdateNodeMetrics()

	for _, node := range p.executionNodes {
		node.OnReady(ctx, func(_ context.Context) error {
			p.setHealthy(node, true)

			return nil
		})

		g.Go(func() error {
			return node.Start(ctx)
		})
	}

	p.wg.Add(2)

	go func() {
		defer p.wg.Done()

		if err := g.Wait(); err != nil && ctx.Err() == nil {
			p.log.WithError(err).Error("Failed to start execution node")
		}
	}()

	go func() {
		defer p.wg.Done()

		metricsTicker := time.NewTicker(15 * time.Second)
		defer metricsTicker.Stop()

		statusTicker := time.NewTicker(1 * time.Minute)
		defer statusTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-metricsTicker.C:
				p.UpdateNodeMetrics()
			case <-statusTicker.C:
				p.log.WithField(
					"healthy_execution_nodes",
					fmt.Sprintf("%d/%d", len(p.GetHealthyExecutionNodes()), len(p.executionNodes)),
				).Info("Pool status")
			}
		}
	}()
}

func (p *Pool) UpdateNodeMetrics() {
	healthy := len(p.GetHealthyExecutionNodes())
	unhealthy := len(p.executionNodes) - healthy

	p.metrics.SetNodesTotal(float64(healthy), []string{"execution", "healthy"})
	p.metrics.SetNodesTotal(float64(unhealthy), []string{"execution", "unhealthy"})

	for _, node := range p.executionNodes {
		p.metrics.SetNodeSynced(node.Name(), node.IsSynced())
	}
}

// Stop gracefully shuts down the pool.
func (p *Pool) Stop(ctx context.Context) error {
	p.log.Info("Stopping pool")

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})

	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info("All pool goroutines stopped gracefully")
	case <-ctx.Done():
		p.log.Warn("Timeout waiting for pool goroutines to stop")
	}

	for _, node := range p.executionNodes {
		if err := node.Stop(ctx); err != nil {
			p.log.WithError(err).WithField("node", node.Name()).Error("Failed to stop execution node")
		}
	}

	return nil
}

// GetNetworkByChainID returns the network information for the given chain ID.
// If overrideNetworkName is set in config, it returns that name instead of using networkMap.
func (p *Pool) GetNetworkByChainID(chainID int32) (*Network, error) {
	if p.config.OverrideNetworkName != nil && *p.config.OverrideNetworkName != "" {
		return &Network{
			ID:   chainID,
			Name: *p.config.OverrideNetworkName,
		}, nil
	}

	return GetNetworkByChainID(chainID)
}

func (p *Pool) healthyNode() (execution.Node, error) {
	node := p.GetHealthyExecutionNode()
	if node == nil {
		return nil, ErrNoHealthyNode
	}

	return node, nil
}

// The methods below serve chain, sync and miner views by proxying to a
// healthy node.

func (p *Pool) BlockNumber(ctx context.Context) (uint64, error) {
	node, err := p.healthyNode()
	if err != nil {
		return 0, err
	}

	number, err := node.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}

	return *number, nil
}

func (p *Pool) ChainID(_ context.Context) (uint64, error) {
	node, err := p.healthyNode()
	if err != nil {
		return 0, err
	}

	return uint64(node.ChainID()), nil
}

func (p *Pool) ClientVersion(_ context.Context) (string, error) {
	node, err := p.healthyNode()
	if err != nil {
		return "", err
	}

	return node.ClientVersion(), nil
}

// NetworkName returns the name of the chain the healthy nodes follow.
func (p *Pool) NetworkName(_ context.Context) (string, error) {
	node, err := p.healthyNode()
	if err != nil {
		return "", err
	}

	network, err := p.GetNetworkByChainID(node.ChainID())
	if err != nil {
		return "", err
	}

	return network.Name, nil
}

func (p *Pool) PeerCount(ctx context.Context) (uint64, error) {
	node, err := p.healthyNode()
	if err != nil {
		return 0, err
	}

	return node.PeerCount(ctx)
}

// SyncProgress returns nil when the node is not syncing.
func (p *Pool) SyncProgress(ctx context.Context) (*ethereum.SyncProgress, error) {
	node, err := p.healthyNode()
	if err != nil {
		return nil, err
	}

	return node.SyncProgress(ctx)
}

func (p *Pool) GasPrice(ctx context.Context) (*big.Int, error) {
	node, err := p.healthyNode()
	if err != nil {
		return nil, err
	}

	return node.GasPrice(ctx)
}
