package rpc

import (
	"context"
	"errors"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/ethpandaops/trace-processor/pkg/store"
	"github.com/ethpandaops/trace-processor/pkg/trace"
)

// LocalizedTrace is a flat trace placed within its block and transaction.
type LocalizedTrace struct {
	Action              trace.Action `json:"action"`
	Result              any          `json:"result"`
	Error               string       `json:"error,omitempty"`
	TraceAddress        []int        `json:"traceAddress"`
	Subtraces           int          `json:"subtraces"`
	TransactionPosition int          `json:"transactionPosition"`
	TransactionHash     common.Hash  `json:"transactionHash"`
	BlockNumber         uint64       `json:"blockNumber"`
	BlockHash           common.Hash  `json:"blockHash"`
	Type                trace.Kind   `json:"type"`
}

// LocalizeTransaction converts a stored transaction into localized traces in
// trace order.
func LocalizeTransaction(tx *store.TransactionRecord) []LocalizedTrace {
	addresses := trace.TraceAddresses(tx.Traces)
	out := make([]LocalizedTrace, len(tx.Traces))

	for i := range tx.Traces {
		ft := &tx.Traces[i]
		result, reason := trace.ResultJSON(ft.Result)

		out[i] = LocalizedTrace{
			Action:              ft.Action,
			Result:              result,
			Error:               reason,
			TraceAddress:        addresses[i],
			Subtraces:           len(ft.Children),
			TransactionPosition: tx.Index,
			TransactionHash:     tx.Hash,
			BlockNumber:         tx.BlockNumber,
			BlockHash:           tx.BlockHash,
			Type:                ft.Action.Kind(),
		}
	}

	return out
}

// traceAPI serves trace_* from stored flat traces.
type traceAPI struct {
	traces Traces
}

// Block returns every trace of a block, or null when it is not stored.
func (api *traceAPI) Block(ctx context.Context, number gethrpc.BlockNumber) ([]LocalizedTrace, error) {
	n, ok, err := api.resolve(ctx, number)
	if err != nil || !ok {
		return nil, err
	}

	block, err := api.traces.Block(ctx, n)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	out := make([]LocalizedTrace, 0, block.TraceCount())
	for _, tx := range block.Transactions {
		out = append(out, LocalizeTransaction(tx)...)
	}

	return out, nil
}

// Transaction returns the traces of a transaction, or null when it is not stored.
func (api *traceAPI) Transaction(ctx context.Context, hash common.Hash) ([]LocalizedTrace, error) {
	tx, err := api.traces.Transaction(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return LocalizeTransaction(tx), nil
}

// Get returns the trace of a transaction at the given trace address.
func (api *traceAPI) Get(ctx context.Context, hash common.Hash, indices []hexutil.Uint64) (*LocalizedTrace, error) {
	traces, err := api.Transaction(ctx, hash)
	if err != nil || traces == nil {
		return nil, err
	}

	address := make([]int, len(indices))
	for i, idx := range indices {
		address[i] = int(idx) //nolint:gosec // compared against bounded trace addresses
	}

	for i := range traces {
		if slices.Equal(traces[i].TraceAddress, address) {
			return &traces[i], nil
		}
	}

	return nil, nil
}

// resolve maps block tags onto stored block numbers. "latest" is the last
// fully processed block.
func (api *traceAPI) resolve(ctx context.Context, number gethrpc.BlockNumber) (uint64, bool, error) {
	switch number {
	case gethrpc.EarliestBlockNumber:
		return 0, true, nil
	case gethrpc.LatestBlockNumber, gethrpc.PendingBlockNumber, gethrpc.SafeBlockNumber, gethrpc.FinalizedBlockNumber:
		return api.traces.Cursor(ctx)
	}

	if number < 0 {
		return 0, false, nil
	}

	return uint64(number), true, nil
}
