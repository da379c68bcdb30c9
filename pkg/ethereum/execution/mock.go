package execution

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Compile-time check that MockNode implements the Node interface.
var _ Node = (*MockNode)(nil)

// MockBlock is the raw tracer output a MockNode serves for one block.
type MockBlock struct {
	Hash         common.Hash
	Transactions []common.Hash
	Frames       []CallFrame
}

// MockNode is an in-memory Node for testing. Every TraceBlock call builds a
// fresh tree from the registered frames.
type MockNode struct {
	NameValue          string
	ChainIDValue       int32
	ClientVersionValue string
	Synced             bool
	Peers              uint64
	GasPriceValue      *big.Int
	Progress           *ethereum.SyncProgress

	// TraceBlockFunc overrides TraceBlock when set.
	TraceBlockFunc func(ctx context.Context, number uint64) (*BlockTrace, error)

	mu         sync.Mutex
	head       uint64
	blocks     map[uint64]MockBlock
	traceCalls map[uint64]int
	callbacks  []func(ctx context.Context) error
}

// NewMockNode creates a synced mock node.
func NewMockNode(name string, chainID int32) *MockNode {
	return &MockNode{
		NameValue:          name,
		ChainIDValue:       chainID,
		ClientVersionValue: "Geth/v1.14.13-mock",
		Synced:             true,
		GasPriceValue:      big.NewInt(1),
		blocks:             make(map[uint64]MockBlock),
		traceCalls:         make(map[uint64]int),
	}
}

// SetHead sets the block number reported by BlockNumber.
func (m *MockNode) SetHead(head uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.head = head
}

// AddBlock registers the frames served for a block.
func (m *MockNode) AddBlock(number uint64, block MockBlock) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocks[number] = block
}

// TraceCalls returns how many times the given block was traced.
func (m *MockNode) TraceCalls(number uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.traceCalls[number]
}

func (m *MockNode) Start(ctx context.Context) error {
	m.mu.Lock()
	callbacks := m.callbacks
	m.mu.Unlock()

	for _, cb := range callbacks {
		if err := cb(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (m *MockNode) Stop(_ context.Context) error {
	return nil
}

func (m *MockNode) OnReady(_ context.Context, callback func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callbacks = append(m.callbacks, callback)
}

func (m *MockNode) BlockNumber(_ context.Context) (*uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	head := m.head

	return &head, nil
}

func (m *MockNode) TraceBlock(ctx context.Context, number uint64) (*BlockTrace, error) {
	m.mu.Lock()
	m.traceCalls[number]++
	block, ok := m.blocks[number]
	m.mu.Unlock()

	if m.TraceBlockFunc != nil {
		return m.TraceBlockFunc(ctx, number)
	}

	if !ok {
		return nil, ethereum.NotFound
	}

	results := make([]TxTraceResult, len(block.Frames))
	for i := range block.Frames {
		results[i] = TxTraceResult{Result: &block.Frames[i]}
	}

	return NewBlockTrace(number, block.Hash, block.Transactions, results)
}

func (m *MockNode) PeerCount(_ context.Context) (uint64, error) {
	return m.Peers, nil
}

func (m *MockNode) SyncProgress(_ context.Context) (*ethereum.SyncProgress, error) {
	return m.Progress, nil
}

func (m *MockNode) GasPrice(_ context.Context) (*big.Int, error) {
	return m.GasPriceValue, nil
}

func (m *MockNode) ChainID() int32 {
	return m.ChainIDValue
}

func (m *MockNode) ClientVersion() string {
	return m.ClientVersionValue
}

func (m *MockNode) IsSynced() bool {
	return m.Synced
}

func (m *MockNode) Name() string {
	return m.NameValue
}
