package testutil

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// FakeBlock is a block served by FakeExecution. Frames holds one callTracer
// frame per transaction.
type FakeBlock struct {
	Hash         common.Hash
	Transactions []common.Hash
	Frames       []json.RawMessage
}

// FakeExecution is the state behind an in-process execution client.
type FakeExecution struct {
	mu sync.RWMutex

	ChainID  uint64
	Head     uint64
	Version  string
	Peers    uint
	GasPrice *big.Int
	Syncing  bool
	Blocks   map[uint64]FakeBlock

	traceCalls atomic.Int64
}

// SetHead moves the reported chain head.
func (f *FakeExecution) SetHead(head uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Head = head
}

// AddBlock registers a block.
func (f *FakeExecution) AddBlock(number uint64, block FakeBlock) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Blocks == nil {
		f.Blocks = make(map[uint64]FakeBlock)
	}

	f.Blocks[number] = block
}

// TraceCalls returns how many debug_traceBlockByNumber calls were served.
func (f *FakeExecution) TraceCalls() int64 {
	return f.traceCalls.Load()
}

type fakeEth struct{ f *FakeExecution }

func (s *fakeEth) ChainId() hexutil.Uint64 {
	return hexutil.Uint64(s.f.ChainID)
}

func (s *fakeEth) BlockNumber() hexutil.Uint64 {
	s.f.mu.RLock()
	defer s.f.mu.RUnlock()

	return hexutil.Uint64(s.f.Head)
}

func (s *fakeEth) Syncing() any {
	if !s.f.Syncing {
		return false
	}

	return map[string]hexutil.Uint64{
		"startingBlock": 0,
		"currentBlock":  hexutil.Uint64(s.f.Head),
		"highestBlock":  hexutil.Uint64(s.f.Head + 100),
	}
}

func (s *fakeEth) GasPrice() *hexutil.Big {
	if s.f.GasPrice == nil {
		return (*hexutil.Big)(big.NewInt(0))
	}

	return (*hexutil.Big)(s.f.GasPrice)
}

func (s *fakeEth) GetBlockByNumber(number hexutil.Uint64, _ bool) map[string]any {
	s.f.mu.RLock()
	defer s.f.mu.RUnlock()

	block, ok := s.f.Blocks[uint64(number)]
	if !ok {
		return nil
	}

	txs := block.Transactions
	if txs == nil {
		txs = []common.Hash{}
	}

	return map[string]any{
		"number":       number,
		"hash":         block.Hash,
		"transactions": txs,
	}
}

type fakeWeb3 struct{ f *FakeExecution }

func (s *fakeWeb3) ClientVersion() string {
	return s.f.Version
}

type fakeNet struct{ f *FakeExecution }

func (s *fakeNet) PeerCount() hexutil.Uint {
	return hexutil.Uint(s.f.Peers)
}

type fakeDebug struct{ f *FakeExecution }

type fakeTxTrace struct {
	TxHash common.Hash     `json:"txHash"`
	Result json.RawMessage `json:"result"`
}

func (s *fakeDebug) TraceBlockByNumber(number hexutil.Uint64, _ map[string]any) ([]fakeTxTrace, error) {
	s.f.traceCalls.Add(1)

	s.f.mu.RLock()
	defer s.f.mu.RUnlock()

	block, ok := s.f.Blocks[uint64(number)]
	if !ok {
		return nil, fmt.Errorf("block #%d not found", uint64(number))
	}

	out := make([]fakeTxTrace, len(block.Frames))
	for i, frame := range block.Frames {
		out[i] = fakeTxTrace{Result: frame}
		if i < len(block.Transactions) {
			out[i].TxHash = block.Transactions[i]
		}
	}

	return out, nil
}

// NewFakeExecutionServer serves f over JSON-RPC on an httptest server.
// The server is automatically closed when the test completes.
func NewFakeExecutionServer(t testing.TB, f *FakeExecution) *httptest.Server {
	t.Helper()

	srv := rpc.NewServer()

	apis := map[string]any{
		"eth":   &fakeEth{f: f},
		"web3":  &fakeWeb3{f: f},
		"net":   &fakeNet{f: f},
		"debug": &fakeDebug{f: f},
	}

	for namespace, api := range apis {
		if err := srv.RegisterName(namespace, api); err != nil {
			t.Fatalf("failed to register %s api: %v", namespace, err)
		}
	}

	ts := httptest.NewServer(srv)

	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
	})

	return ts
}
