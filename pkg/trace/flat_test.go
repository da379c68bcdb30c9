package trace

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int {
	return &v
}

func testCreate() *Trace {
	return &Trace{
		Depth: 3,
		Action: Create{
			From:  common.BigToAddress(uint256.NewInt(6).ToBig()),
			Value: uint256.NewInt(7),
			Gas:   8,
			Init:  []byte{0x9},
		},
		Result: FailedCreate{},
	}
}

// testTree is a root call with a create holding two failed creates and a
// second, leaf create.
func testTree() *Trace {
	first := testCreate()
	first.Subs = []*Trace{testCreate(), testCreate()}

	return &Trace{
		Depth: 2,
		Action: Call{
			From:  common.BigToAddress(uint256.NewInt(1).ToBig()),
			To:    common.BigToAddress(uint256.NewInt(2).ToBig()),
			Value: uint256.NewInt(3),
			Gas:   4,
			Input: []byte{0x5},
		},
		Subs: []*Trace{first, testCreate()},
		Result: CallResult{
			GasUsed: 10,
			Output:  []byte{0x11, 0x12},
		},
	}
}

func TestNewTransactionTraces_NestedTree(t *testing.T) {
	block := NewBlockTraces([]*Trace{testTree()})

	txs := block.Transactions()
	require.Len(t, txs, 1)

	traces := txs[0].Traces()
	require.Len(t, traces, 5)

	assert.Nil(t, traces[0].Parent)
	assert.Equal(t, []int{1, 4}, traces[0].Children)
	assert.Equal(t, intPtr(0), traces[1].Parent)
	assert.Equal(t, []int{2, 3}, traces[1].Children)
	assert.Equal(t, intPtr(1), traces[2].Parent)
	assert.Empty(t, traces[2].Children)
	assert.Equal(t, intPtr(1), traces[3].Parent)
	assert.Empty(t, traces[3].Children)
	assert.Equal(t, intPtr(0), traces[4].Parent)
	assert.Empty(t, traces[4].Children)

	require.NoError(t, Verify(traces))
}

func TestNewTransactionTraces_PayloadsMoved(t *testing.T) {
	root := testTree()
	traces := NewTransactionTraces(root).Traces()

	assert.Equal(t, 2, traces[0].Depth)
	assert.Equal(t, 3, traces[1].Depth)

	call, ok := traces[0].Action.(Call)
	require.True(t, ok)
	assert.Equal(t, []byte{0x5}, call.Input)
	assert.Equal(t, uint64(4), call.Gas)

	res, ok := traces[0].Result.(CallResult)
	require.True(t, ok)
	assert.Equal(t, []byte{0x11, 0x12}, res.Output)

	for i := 1; i < len(traces); i++ {
		assert.IsType(t, Create{}, traces[i].Action)
		assert.IsType(t, FailedCreate{}, traces[i].Result)
	}

	// The source tree is consumed.
	assert.Nil(t, root.Action)
	assert.Nil(t, root.Result)
	assert.Nil(t, root.Subs)
}

func TestNewTransactionTraces_Leaf(t *testing.T) {
	traces := NewTransactionTraces(testCreate()).Traces()

	require.Len(t, traces, 1)
	assert.Nil(t, traces[0].Parent)
	assert.True(t, traces[0].IsRoot())
	assert.Empty(t, traces[0].Children)
	require.NoError(t, Verify(traces))
}

func TestNewTransactionTraces_Nil(t *testing.T) {
	assert.Equal(t, 0, NewTransactionTraces(nil).Len())
}

func TestNewTransactionTraces_DeepChain(t *testing.T) {
	const depth = 2000

	root := testCreate()
	node := root

	for i := 1; i < depth; i++ {
		child := testCreate()
		child.Depth = i
		node.Subs = []*Trace{child}
		node = child
	}

	traces := NewTransactionTraces(root).Traces()
	require.Len(t, traces, depth)

	for p := 1; p < depth; p++ {
		require.Equal(t, intPtr(p-1), traces[p].Parent)
		require.Equal(t, []int{p}, traces[p-1].Children)
	}

	require.NoError(t, Verify(traces))
}

func TestNewTransactionTraces_WideTree(t *testing.T) {
	root := testCreate()
	for i := 0; i < 100; i++ {
		root.Subs = append(root.Subs, testCreate())
	}

	traces := NewTransactionTraces(root).Traces()
	require.Len(t, traces, 101)

	expected := make([]int, 100)
	for i := range expected {
		expected[i] = i + 1
	}

	assert.Equal(t, expected, traces[0].Children)
	require.NoError(t, Verify(traces))
}

func TestTrace_Size(t *testing.T) {
	assert.Equal(t, 5, testTree().Size())
	assert.Equal(t, 1, testCreate().Size())

	var nilTrace *Trace
	assert.Equal(t, 0, nilTrace.Size())
}

func TestTraceAddresses(t *testing.T) {
	traces := NewTransactionTraces(testTree()).Traces()

	addrs := TraceAddresses(traces)
	assert.Equal(t, [][]int{{}, {0}, {0, 0}, {0, 1}, {1}}, addrs)
	assert.Equal(t, []int{5, 3, 1, 1, 1}, SubtreeSizes(traces))
}
