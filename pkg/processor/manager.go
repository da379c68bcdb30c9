package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	geth "github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/trace-processor/pkg/common"
	"github.com/ethpandaops/trace-processor/pkg/ethereum"
	"github.com/ethpandaops/trace-processor/pkg/ethereum/execution"
	"github.com/ethpandaops/trace-processor/pkg/leaderelection"
	"github.com/ethpandaops/trace-processor/pkg/store"
	"github.com/ethpandaops/trace-processor/pkg/trace"
)

// Trigger labels for processed blocks.
const (
	TriggerLoop = "loop"
	TriggerAPI  = "api"
)

// ElectorFactory builds the leader elector for a resolved network.
type ElectorFactory func(network string) (leaderelection.Elector, error)

// Dependencies are the collaborators of a Manager. Exporter may be nil.
type Dependencies struct {
	Pool       *ethereum.Pool
	Store      store.Store
	Exporter   *Exporter
	NewElector ElectorFactory
}

// Manager turns execution node call trees into stored flat traces.
type Manager struct {
	log        logrus.FieldLogger
	config     *Config
	pool       *ethereum.Pool
	store      store.Store
	exporter   *Exporter
	newElector ElectorFactory
	flattener  *trace.Flattener

	mu      sync.RWMutex
	network *ethereum.Network
	elector leaderelection.Elector
	baseCtx context.Context

	// processMu serialises block processing between the loop and the admin API.
	processMu sync.Mutex

	loopMu     sync.Mutex
	loopCancel context.CancelFunc
	loopWG     sync.WaitGroup
}

func NewManager(log logrus.FieldLogger, config *Config, deps Dependencies) *Manager {
	newElector := deps.NewElector
	if newElector == nil {
		newElector = func(_ string) (leaderelection.Elector, error) {
			return leaderelection.NewStandalone(""), nil
		}
	}

	return &Manager{
		log:        log.WithField("component", "processor"),
		config:     config,
		pool:       deps.Pool,
		store:      deps.Store,
		exporter:   deps.Exporter,
		newElector: newElector,
		flattener:  trace.NewFlattener(config.Workers),
	}
}

// Start resolves the network and, when enabled, joins leader election. The
// ingest loop runs only while this node is the leader.
func (m *Manager) Start(ctx context.Context) error {
	m.log.Info("Starting processor manager")

	node, err := m.pool.WaitForHealthyExecutionNode(ctx)
	if err != nil {
		return fmt.Errorf("failed to wait for healthy execution node: %w", err)
	}

	network, err := m.pool.GetNetworkByChainID(node.ChainID())
	if err != nil {
		return fmt.Errorf("failed to get network by chain ID: %w", err)
	}

	m.log = m.log.WithField("network", network.Name)

	m.mu.Lock()
	m.network = network
	m.baseCtx = ctx
	m.mu.Unlock()

	if m.exporter != nil {
		if err := m.exporter.Start(ctx, network.Name); err != nil {
			return fmt.Errorf("failed to start exporter: %w", err)
		}
	}

	if !m.config.Enabled {
		m.log.Info("Block ingest is disabled, serving on-demand processing only")

		return nil
	}

	elector, err := m.newElector(network.Name)
	if err != nil {
		return fmt.Errorf("failed to create leader elector: %w", err)
	}

	elector.OnLeadershipChange(m.onLeadershipChange)

	m.mu.Lock()
	m.elector = elector
	m.mu.Unlock()

	if err := elector.Start(ctx); err != nil {
		return fmt.Errorf("failed to start leader election: %w", err)
	}

	return nil
}

func (m *Manager) Stop(ctx context.Context) error {
	m.log.Info("Stopping processor manager")

	var errs []error

	m.mu.RLock()
	elector := m.elector
	m.mu.RUnlock()

	if elector != nil {
		if err := elector.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop leader election: %w", err))
		}
	}

	m.stopLoop()

	if m.exporter != nil {
		if err := m.exporter.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop exporter: %w", err))
		}
	}

	return errors.Join(errs...)
}

// IsLeader reports whether this node currently runs the ingest loop.
func (m *Manager) IsLeader() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.elector != nil && m.elector.IsLeader()
}

// Network returns the resolved network, or nil before Start.
func (m *Manager) Network() *ethereum.Network {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.network
}

func (m *Manager) networkName() string {
	if network := m.Network(); network != nil {
		return network.Name
	}

	return ""
}

func (m *Manager) onLeadershipChange(_ context.Context, isLeader bool) {
	if isLeader {
		m.log.Info("Gained leadership, starting block ingest")
		m.startLoop()

		return
	}

	m.log.Info("Lost leadership, stopping block ingest")
	m.stopLoop()
}

func (m *Manager) startLoop() {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()

	if m.loopCancel != nil {
		return
	}

	m.mu.RLock()
	base := m.baseCtx
	m.mu.RUnlock()

	ctx, cancel := context.WithCancel(base)
	m.loopCancel = cancel

	m.loopWG.Go(func() {
		m.runLoop(ctx)
	})
}

func (m *Manager) stopLoop() {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()

	if m.loopCancel == nil {
		return
	}

	m.loopCancel()
	m.loopCancel = nil
	m.loopWG.Wait()
}

func (m *Manager) runLoop(ctx context.Context) {
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	m.log.WithField("interval", m.config.Interval).Info("Started block ingest loop")

	for {
		if _, err := m.ProcessHead(ctx); err != nil && ctx.Err() == nil {
			m.log.WithError(err).Error("Failed to process blocks")
		}

		select {
		case <-ctx.Done():
			m.log.Debug("Block ingest loop stopped")

			return
		case <-ticker.C:
		}
	}
}

// ProcessHead processes blocks from the cursor up to head minus the
// configured confirmations, at most MaxBlocksPerTick of them. It returns the
// number of blocks processed.
func (m *Manager) ProcessHead(ctx context.Context) (int, error) {
	network := m.networkName()

	head, err := m.pool.BlockNumber(ctx)
	if err != nil {
		common.ProcessorErrors.WithLabelValues(network, "head").Inc()

		return 0, fmt.Errorf("failed to get head block number: %w", err)
	}

	common.BlockHeight.WithLabelValues(network).Set(float64(head))

	if head < m.config.Confirmations {
		return 0, nil
	}

	target := head - m.config.Confirmations

	next, err := m.nextBlock(ctx, target)
	if err != nil {
		return 0, err
	}

	processed := 0

	for number := next; number <= target && processed < m.config.MaxBlocksPerTick; number++ {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		if _, err := m.processBlock(ctx, number, TriggerLoop); err != nil {
			return processed, err
		}

		processed++
	}

	if processed > 0 {
		last := next + uint64(processed) - 1 //nolint:gosec // bounded by MaxBlocksPerTick

		common.HeadDistance.WithLabelValues(network).Set(float64(head - last))

		m.log.WithFields(logrus.Fields{
			"from": next,
			"to":   last,
			"head": head,
		}).Debug("Processed blocks")
	}

	return processed, nil
}

func (m *Manager) nextBlock(ctx context.Context, target uint64) (uint64, error) {
	cursor, ok, err := m.store.Cursor(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read cursor: %w", err)
	}

	if ok {
		return cursor + 1, nil
	}

	if m.config.StartBlock != nil {
		return *m.config.StartBlock, nil
	}

	return target, nil
}

// ProcessBlock re-processes a single block on demand. The cursor only moves
// when number directly follows it.
func (m *Manager) ProcessBlock(ctx context.Context, number uint64) (*store.BlockRecord, error) {
	if m.Network() == nil {
		return nil, ErrNotStarted
	}

	return m.processBlock(ctx, number, TriggerAPI)
}

func (m *Manager) processBlock(ctx context.Context, number uint64, trigger string) (*store.BlockRecord, error) {
	m.processMu.Lock()
	defer m.processMu.Unlock()

	start := time.Now()
	network := m.networkName()
	log := m.log.WithFields(logrus.Fields{"block_number": number, "trigger": trigger})

	bt, err := m.fetchBlockTrace(ctx, log, number)
	if err != nil {
		common.ProcessorErrors.WithLabelValues(network, "trace_block").Inc()

		if errors.Is(err, geth.NotFound) {
			return nil, fmt.Errorf("%w: %d", ErrBlockNotFound, number)
		}

		return nil, fmt.Errorf("failed to trace block %d: %w", number, err)
	}

	flattenStart := time.Now()
	traces := m.flattener.Flatten(bt.Roots())

	common.FlattenDuration.WithLabelValues(network).Observe(time.Since(flattenStart).Seconds())

	if m.config.Verify {
		for i, tx := range traces.Transactions() {
			if err := trace.Verify(tx.Traces()); err != nil {
				common.ProcessorErrors.WithLabelValues(network, "verify").Inc()

				return nil, fmt.Errorf("block %d transaction %d: %w", number, i, err)
			}
		}
	}

	record, err := store.NewBlockRecord(bt.Number, bt.Hash, txHashes(bt), traces)
	if err != nil {
		common.ProcessorErrors.WithLabelValues(network, "record").Inc()

		return nil, err
	}

	if err := m.store.PutBlock(ctx, record); err != nil {
		common.ProcessorErrors.WithLabelValues(network, "store").Inc()

		return nil, fmt.Errorf("failed to store block %d: %w", number, err)
	}

	if m.exporter != nil {
		if err := m.exporter.Export(ctx, record); err != nil {
			common.ProcessorErrors.WithLabelValues(network, "export").Inc()

			return nil, fmt.Errorf("failed to export block %d: %w", number, err)
		}
	}

	if err := m.advanceCursor(ctx, number, trigger == TriggerLoop); err != nil {
		common.ProcessorErrors.WithLabelValues(network, "cursor").Inc()

		return nil, err
	}

	m.recordBlock(network, trigger, record, time.Since(start))

	log.WithFields(logrus.Fields{
		"transactions": len(record.Transactions),
		"traces":       record.TraceCount(),
	}).Debug("Processed block")

	return record, nil
}

// fetchBlockTrace retries transient failures with exponential backoff. A
// block the node does not know is not retried.
func (m *Manager) fetchBlockTrace(ctx context.Context, log logrus.FieldLogger, number uint64) (*execution.BlockTrace, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.config.Retry.InitialInterval
	b.MaxInterval = m.config.Retry.MaxInterval
	b.MaxElapsedTime = m.config.Retry.MaxElapsedTime

	var result *execution.BlockTrace

	operation := func() error {
		node := m.pool.GetHealthyExecutionNode()
		if node == nil {
			return ethereum.ErrNoHealthyNode
		}

		bt, err := node.TraceBlock(ctx, number)
		if err != nil {
			if errors.Is(err, geth.NotFound) {
				return backoff.Permanent(err)
			}

			return err
		}

		result = bt

		return nil
	}

	notify := func(err error, wait time.Duration) {
		common.RetryCount.WithLabelValues(m.networkName(), "trace_block").Inc()
		log.WithError(err).WithField("retry_in", wait).Warn("Failed to trace block, retrying")
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, err
	}

	return result, nil
}

func (m *Manager) advanceCursor(ctx context.Context, number uint64, force bool) error {
	if !force {
		cursor, ok, err := m.store.Cursor(ctx)
		if err != nil {
			return fmt.Errorf("failed to read cursor: %w", err)
		}

		if !ok || number != cursor+1 {
			return nil
		}
	}

	if err := m.store.SetCursor(ctx, number); err != nil {
		return fmt.Errorf("failed to advance cursor to %d: %w", number, err)
	}

	return nil
}

func (m *Manager) recordBlock(network, trigger string, record *store.BlockRecord, duration time.Duration) {
	kinds := make(map[trace.Kind]int, 2)

	for _, tx := range record.Transactions {
		for i := range tx.Traces {
			kinds[tx.Traces[i].Action.Kind()]++
		}
	}

	for kind, n := range kinds {
		common.TracesFlattened.WithLabelValues(network, string(kind)).Add(float64(n))
	}

	common.TransactionsProcessed.WithLabelValues(network).Add(float64(len(record.Transactions)))
	common.BlocksProcessed.WithLabelValues(network, trigger).Inc()
	common.BlockProcessingDuration.WithLabelValues(network).Observe(duration.Seconds())
}

func txHashes(bt *execution.BlockTrace) []ethcommon.Hash {
	hashes := make([]ethcommon.Hash, len(bt.Transactions))
	for i := range bt.Transactions {
		hashes[i] = bt.Transactions[i].Hash
	}

	return hashes
}
