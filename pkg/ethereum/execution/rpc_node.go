package execution

import (
	"context"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"

	pcommon "github.com/ethpandaops/trace-processor/pkg/common"
)

// Compile-time check that RPCNode implements the Node interface.
var _ Node = (*RPCNode)(nil)

const (
	statusError   = "error"
	statusSuccess = "success"

	defaultTraceTimeout = 60 * time.Second
)

// headerTransport adds custom headers to requests and respects context cancellation.
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for key, value := range t.headers {
		req.Header.Set(key, value)
	}

	if req.Context().Err() != nil {
		return nil, req.Context().Err()
	}

	return t.base.RoundTrip(req)
}

// RPCNode implements Node over a JSON-RPC connection.
type RPCNode struct {
	config    *Config
	log       logrus.FieldLogger
	client    *ethclient.Client
	rpcClient *rpc.Client
	metadata  *MetadataService

	onReadyCallbacks []func(ctx context.Context) error

	mu     sync.RWMutex
	cancel context.CancelFunc
}

// NewRPCNode creates a new RPC-based execution node.
func NewRPCNode(log logrus.FieldLogger, conf *Config) *RPCNode {
	return &RPCNode{
		config: conf,
		log:    log.WithFields(logrus.Fields{"type": "execution", "source": conf.Name}),
	}
}

func (n *RPCNode) OnReady(_ context.Context, callback func(ctx context.Context) error) {
	n.onReadyCallbacks = append(n.onReadyCallbacks, callback)
}

func (n *RPCNode) Start(ctx context.Context) error {
	n.log.WithField("node_address", n.config.NodeAddress).Info("Starting execution node")

	nodeCtx, cancel := context.WithCancel(ctx)

	// No fixed client timeout, the request context controls the lifecycle.
	httpClient := &http.Client{
		Transport: &headerTransport{
			headers: n.config.NodeHeaders,
			base: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}

	rpcClient, err := rpc.DialOptions(nodeCtx, n.config.NodeAddress, rpc.WithHTTPClient(httpClient))
	if err != nil {
		cancel()

		return fmt.Errorf("failed to create RPC client for %s: %w", n.config.NodeAddress, err)
	}

	metadata := NewMetadataService(n.log, rpcClient)

	metadata.OnReady(nodeCtx, func(readyCtx context.Context) error {
		n.log.WithFields(logrus.Fields{
			"client_type": metadata.Client(),
			"synced":      metadata.IsSynced(),
		}).Info("Execution node is ready")

		for _, callback := range n.onReadyCallbacks {
			if err := callback(readyCtx); err != nil {
				n.log.WithError(err).Error("Failed to run on ready callback")
			}
		}

		return nil
	})

	n.mu.Lock()
	n.cancel = cancel
	n.rpcClient = rpcClient
	n.client = ethclient.NewClient(rpcClient)
	n.metadata = metadata
	n.mu.Unlock()

	if err := metadata.Start(nodeCtx); err != nil {
		return fmt.Errorf("failed to start metadata service: %w", err)
	}

	return nil
}

func (n *RPCNode) Stop(ctx context.Context) error {
	n.log.Info("Stopping execution node")

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.cancel != nil {
		n.cancel()
	}

	if n.metadata != nil {
		if err := n.metadata.Stop(ctx); err != nil {
			n.log.WithError(err).Error("Failed to stop metadata service")
		}
	}

	if n.rpcClient != nil {
		n.rpcClient.Close()
	}

	return nil
}

func (n *RPCNode) clients() (*ethclient.Client, *rpc.Client, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.client == nil {
		return nil, nil, ErrNotStarted
	}

	return n.client, n.rpcClient, nil
}

// observe records the duration and outcome of an RPC call.
func (n *RPCNode) observe(method string, start time.Time, err error) {
	status := statusSuccess
	if err != nil {
		status = statusError
	}

	chainID := fmt.Sprintf("%d", n.ChainID())

	pcommon.RPCCallDuration.WithLabelValues(chainID, n.config.Name, method, status).Observe(time.Since(start).Seconds())
	pcommon.RPCCallsTotal.WithLabelValues(chainID, n.config.Name, method, status).Inc()
}

// Name returns the configured name for this node.
func (n *RPCNode) Name() string {
	return n.config.Name
}

func (n *RPCNode) ChainID() int32 {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.metadata == nil {
		return 0
	}

	return n.metadata.ChainID()
}

func (n *RPCNode) ClientVersion() string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.metadata == nil {
		return ""
	}

	return n.metadata.ClientVersion()
}

func (n *RPCNode) IsSynced() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.metadata == nil {
		return false
	}

	return n.metadata.IsSynced()
}

func (n *RPCNode) BlockNumber(ctx context.Context) (*uint64, error) {
	client, _, err := n.clients()
	if err != nil {
		return nil, err
	}

	start := time.Now()

	number, err := client.BlockNumber(ctx)

	n.observe("eth_blockNumber", start, err)

	if err != nil {
		return nil, err
	}

	return &number, nil
}

func (n *RPCNode) PeerCount(ctx context.Context) (uint64, error) {
	client, _, err := n.clients()
	if err != nil {
		return 0, err
	}

	start := time.Now()

	count, err := client.PeerCount(ctx)

	n.observe("net_peerCount", start, err)

	return count, err
}

func (n *RPCNode) SyncProgress(ctx context.Context) (*ethereum.SyncProgress, error) {
	client, _, err := n.clients()
	if err != nil {
		return nil, err
	}

	start := time.Now()

	progress, err := client.SyncProgress(ctx)

	n.observe("eth_syncing", start, err)

	return progress, err
}

func (n *RPCNode) GasPrice(ctx context.Context) (*big.Int, error) {
	client, _, err := n.clients()
	if err != nil {
		return nil, err
	}

	start := time.Now()

	price, err := client.SuggestGasPrice(ctx)

	n.observe("eth_gasPrice", start, err)

	return price, err
}

// blockBody is the subset of eth_getBlockByNumber needed to match traces to
// transactions.
type blockBody struct {
	Hash         common.Hash   `json:"hash"`
	Transactions []common.Hash `json:"transactions"`
}

// TraceBlock fetches the block body and the callTracer output for every
// transaction in it.
func (n *RPCNode) TraceBlock(ctx context.Context, number uint64) (*BlockTrace, error) {
	_, rpcClient, err := n.clients()
	if err != nil {
		return nil, err
	}

	tag := hexutil.EncodeUint64(number)

	var body *blockBody

	start := time.Now()

	err = rpcClient.CallContext(ctx, &body, "eth_getBlockByNumber", tag, false)

	n.observe("eth_getBlockByNumber", start, err)

	if err != nil {
		return nil, err
	}

	if body == nil {
		return nil, ethereum.NotFound
	}

	timeout := n.config.TraceTimeout
	if timeout <= 0 {
		timeout = defaultTraceTimeout
	}

	traceCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var results []TxTraceResult

	start = time.Now()

	err = rpcClient.CallContext(traceCtx, &results, "debug_traceBlockByNumber", tag, map[string]any{
		"tracer":  "callTracer",
		"timeout": timeout.String(),
	})

	n.observe("debug_traceBlockByNumber", start, err)

	if err != nil {
		return nil, err
	}

	return NewBlockTrace(number, body.Hash, body.Transactions, results)
}
