package execution

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
)

// MetadataService keeps the client version, chain id and sync status of a
// node up to date.
type MetadataService struct {
	rpcClient *rpc.Client
	log       logrus.FieldLogger

	onReadyCallbacks []func(context.Context) error

	scheduler *gocron.Scheduler

	mu          sync.RWMutex
	nodeVersion string
	chainID     int32
	synced      bool
}

func NewMetadataService(log logrus.FieldLogger, rpcClient *rpc.Client) *MetadataService {
	return &MetadataService{
		rpcClient:        rpcClient,
		log:              log.WithField("module", "ethereum/execution/metadata"),
		onReadyCallbacks: []func(context.Context) error{},
	}
}

func (m *MetadataService) Start(ctx context.Context) error {
	m.log.Info("Starting metadata service")

	go func() {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 500 * time.Millisecond
		b.MaxInterval = 5 * time.Second
		b.MaxElapsedTime = 2 * time.Minute

		operation := func() error {
			if err := m.RefreshAll(ctx); err != nil {
				m.log.WithError(err).Warn("Failed to refresh metadata, will retry")

				return err
			}

			if err := m.updateSyncStatus(ctx); err != nil {
				m.log.WithError(err).Warn("Failed to fetch sync status, will retry")

				return err
			}

			return m.Ready()
		}

		if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
			if ctx.Err() == nil {
				m.log.WithError(err).Error("Failed to refresh metadata after retries")
			}

			return
		}

		m.log.WithFields(logrus.Fields{
			"node_version": m.ClientVersion(),
			"chain_id":     m.ChainID(),
		}).Info("Metadata service initialization completed")

		for _, cb := range m.onReadyCallbacks {
			if err := cb(ctx); err != nil {
				m.log.WithError(err).Warn("Failed to execute onReady callback")
			}
		}
	}()

	s := gocron.NewScheduler(time.Local)

	if _, err := s.Every("5m").Do(func() {
		refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		if err := m.RefreshAll(refreshCtx); err != nil {
			m.log.WithError(err).Warn("Failed to refresh metadata")
		}
	}); err != nil {
		return err
	}

	if _, err := s.Every("15s").Do(func() {
		syncCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := m.updateSyncStatus(syncCtx); err != nil {
			m.log.WithError(err).Warn("Failed to update sync status")
		}
	}); err != nil {
		return err
	}

	s.StartAsync()

	m.scheduler = s

	return nil
}

func (m *MetadataService) Stop(_ context.Context) error {
	if m.scheduler != nil {
		m.scheduler.Stop()
	}

	return nil
}

// OnReady must be called before Start.
func (m *MetadataService) OnReady(_ context.Context, cb func(context.Context) error) {
	m.onReadyCallbacks = append(m.onReadyCallbacks, cb)
}

func (m *MetadataService) Ready() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.nodeVersion == "" || m.chainID == 0 {
		return ErrMetadataNotReady
	}

	return nil
}

func (m *MetadataService) RefreshAll(ctx context.Context) error {
	var version string
	if err := m.rpcClient.CallContext(ctx, &version, "web3_clientVersion"); err != nil {
		return fmt.Errorf("failed to get client version: %w", err)
	}

	chainID, err := m.fetchChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain ID: %w", err)
	}

	m.mu.Lock()
	m.nodeVersion = version
	m.chainID = chainID
	m.mu.Unlock()

	return nil
}

func (m *MetadataService) fetchChainID(ctx context.Context) (int32, error) {
	var raw string
	if err := m.rpcClient.CallContext(ctx, &raw, "eth_chainId"); err != nil {
		return 0, err
	}

	id, err := strconv.ParseInt(strings.TrimPrefix(raw, "0x"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("failed to parse chain ID %s: %w", raw, err)
	}

	return int32(id), nil
}

func (m *MetadataService) updateSyncStatus(ctx context.Context) error {
	var raw any
	if err := m.rpcClient.CallContext(ctx, &raw, "eth_syncing"); err != nil {
		return err
	}

	// eth_syncing returns false when not syncing, or an object when syncing
	var synced bool

	switch v := raw.(type) {
	case bool:
		synced = !v
	case map[string]any:
		synced = false
	default:
		return fmt.Errorf("unexpected eth_syncing response %T", raw)
	}

	m.mu.Lock()
	m.synced = synced
	m.mu.Unlock()

	return nil
}

func (m *MetadataService) Client() Client {
	return ClientFromString(m.ClientVersion())
}

func (m *MetadataService) ClientVersion() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.nodeVersion
}

func (m *MetadataService) IsSynced() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.synced
}

func (m *MetadataService) ChainID() int32 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.chainID
}
