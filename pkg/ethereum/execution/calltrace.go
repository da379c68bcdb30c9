package execution

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/ethpandaops/trace-processor/pkg/trace"
)

// CallFrame is a single frame of the callTracer output.
type CallFrame struct {
	Type         string          `json:"type"`
	From         common.Address  `json:"from"`
	To           *common.Address `json:"to,omitempty"`
	Value        *hexutil.Big    `json:"value,omitempty"`
	Gas          hexutil.Uint64  `json:"gas"`
	GasUsed      hexutil.Uint64  `json:"gasUsed"`
	Input        hexutil.Bytes   `json:"input"`
	Output       hexutil.Bytes   `json:"output,omitempty"`
	Error        string          `json:"error,omitempty"`
	RevertReason string          `json:"revertReason,omitempty"`
	Calls        []CallFrame     `json:"calls,omitempty"`
}

// TxTraceResult is one element of the debug_traceBlockByNumber response.
type TxTraceResult struct {
	TxHash common.Hash `json:"txHash"`
	Result *CallFrame  `json:"result"`
	Error  string      `json:"error,omitempty"`
}

// TransactionTrace is the call tree of one transaction.
type TransactionTrace struct {
	Hash  common.Hash
	Index int
	Root  *trace.Trace
}

// BlockTrace holds the call trees of every transaction in a block, in
// transaction order.
type BlockTrace struct {
	Number       uint64
	Hash         common.Hash
	Transactions []TransactionTrace
}

// Roots returns the root of every transaction tree in order.
func (b *BlockTrace) Roots() []*trace.Trace {
	roots := make([]*trace.Trace, len(b.Transactions))
	for i := range b.Transactions {
		roots[i] = b.Transactions[i].Root
	}

	return roots
}

func (f *CallFrame) isCreate() bool {
	switch strings.ToUpper(f.Type) {
	case "CREATE", "CREATE2":
		return true
	}

	return false
}

func (f *CallFrame) failure() string {
	if f.RevertReason != "" {
		return fmt.Sprintf("%s: %s", f.Error, f.RevertReason)
	}

	return f.Error
}

// ToTrace converts the frame and its sub-calls into a trace tree rooted at
// the given depth.
func (f *CallFrame) ToTrace(depth int) (*trace.Trace, error) {
	value := new(uint256.Int)

	if f.Value != nil {
		v, overflow := uint256.FromBig((*big.Int)(f.Value))
		if overflow {
			return nil, fmt.Errorf("frame value %s overflows 256 bits", f.Value.String())
		}

		value = v
	}

	node := &trace.Trace{Depth: depth}

	if f.isCreate() {
		node.Action = trace.Create{
			From:  f.From,
			Value: value,
			Gas:   uint64(f.Gas),
			Init:  f.Input,
		}

		if f.Error != "" {
			node.Result = trace.FailedCreate{Error: f.failure()}
		} else {
			var address common.Address
			if f.To != nil {
				address = *f.To
			}

			node.Result = trace.CreateResult{
				GasUsed: uint64(f.GasUsed),
				Code:    f.Output,
				Address: address,
			}
		}
	} else {
		var to common.Address
		if f.To != nil {
			to = *f.To
		}

		node.Action = trace.Call{
			CallType: strings.ToLower(f.Type),
			From:     f.From,
			To:       to,
			Value:    value,
			Gas:      uint64(f.Gas),
			Input:    f.Input,
		}

		if f.Error != "" {
			node.Result = trace.FailedCall{Error: f.failure()}
		} else {
			node.Result = trace.CallResult{
				GasUsed: uint64(f.GasUsed),
				Output:  f.Output,
			}
		}
	}

	if len(f.Calls) > 0 {
		node.Subs = make([]*trace.Trace, 0, len(f.Calls))

		for i := range f.Calls {
			sub, err := f.Calls[i].ToTrace(depth + 1)
			if err != nil {
				return nil, err
			}

			node.Subs = append(node.Subs, sub)
		}
	}

	return node, nil
}

// NewBlockTrace assembles a BlockTrace from the raw tracer output. The
// transaction hashes come from the block body so that clients which omit
// txHash in the tracer output are still matched by index.
func NewBlockTrace(number uint64, hash common.Hash, txHashes []common.Hash, results []TxTraceResult) (*BlockTrace, error) {
	if len(results) != len(txHashes) {
		return nil, fmt.Errorf("%w: block %d has %d transactions but %d traces",
			ErrTraceMismatch, number, len(txHashes), len(results))
	}

	block := &BlockTrace{
		Number:       number,
		Hash:         hash,
		Transactions: make([]TransactionTrace, 0, len(results)),
	}

	for i, res := range results {
		if res.Error != "" {
			return nil, fmt.Errorf("transaction %s: tracer error: %s", txHashes[i].Hex(), res.Error)
		}

		if res.Result == nil {
			return nil, fmt.Errorf("transaction %s: %w", txHashes[i].Hex(), ErrEmptyTrace)
		}

		if res.TxHash != (common.Hash{}) && res.TxHash != txHashes[i] {
			return nil, fmt.Errorf("%w: position %d is %s, trace is for %s",
				ErrTraceMismatch, i, txHashes[i].Hex(), res.TxHash.Hex())
		}

		root, err := res.Result.ToTrace(0)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", txHashes[i].Hex(), err)
		}

		block.Transactions = append(block.Transactions, TransactionTrace{
			Hash:  txHashes[i],
			Index: i,
			Root:  root,
		})
	}

	return block, nil
}
