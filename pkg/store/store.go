// Package store persists flattened block traces and the ingest cursor.
package store

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/trace-processor/pkg/redis"
	"github.com/ethpandaops/trace-processor/pkg/trace"
)

// TransactionRecord is the flattened trace array of one transaction.
type TransactionRecord struct {
	BlockNumber uint64            `json:"blockNumber"`
	BlockHash   common.Hash       `json:"blockHash"`
	Hash        common.Hash       `json:"hash"`
	Index       int               `json:"index"`
	Traces      []trace.FlatTrace `json:"traces"`
}

// BlockRecord holds every transaction of a block in transaction order.
// Records handed out by a Store are shared and must be treated as read-only.
type BlockRecord struct {
	Number       uint64               `json:"number"`
	Hash         common.Hash          `json:"hash"`
	Transactions []*TransactionRecord `json:"transactions"`
}

// NewBlockRecord pairs each flattened transaction with its hash.
func NewBlockRecord(number uint64, hash common.Hash, txHashes []common.Hash, traces *trace.BlockTraces) (*BlockRecord, error) {
	if traces.Len() != len(txHashes) {
		return nil, fmt.Errorf("%w: %d hashes, %d traces", ErrMismatchedBlock, len(txHashes), traces.Len())
	}

	record := &BlockRecord{
		Number:       number,
		Hash:         hash,
		Transactions: make([]*TransactionRecord, 0, traces.Len()),
	}

	for i, tx := range traces.Transactions() {
		record.Transactions = append(record.Transactions, &TransactionRecord{
			BlockNumber: number,
			BlockHash:   hash,
			Hash:        txHashes[i],
			Index:       i,
			Traces:      tx.Traces(),
		})
	}

	return record, nil
}

// TraceCount returns the number of flat traces across all transactions.
func (b *BlockRecord) TraceCount() int {
	n := 0
	for _, tx := range b.Transactions {
		n += len(tx.Traces)
	}

	return n
}

// Store is a persistence backend for flattened traces.
type Store interface {
	// PutBlock stores or replaces a block.
	PutBlock(ctx context.Context, block *BlockRecord) error
	// Block returns ErrNotFound when the block is not stored.
	Block(ctx context.Context, number uint64) (*BlockRecord, error)
	// Transaction returns ErrNotFound when the transaction is not stored.
	Transaction(ctx context.Context, hash common.Hash) (*TransactionRecord, error)
	// Cursor returns the last fully processed block; ok is false when none was recorded.
	Cursor(ctx context.Context) (number uint64, ok bool, err error)
	// SetCursor records the last fully processed block.
	SetCursor(ctx context.Context, number uint64) error
	Close() error
}

// New creates the backend selected by config.
func New(log logrus.FieldLogger, config *Config) (Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}

	log = log.WithField("component", "store")

	switch config.Type {
	case TypeMemory:
		return NewMemoryStore(log, &config.Memory)
	case TypeRedis:
		client, err := redis.New(&config.Redis.Config)
		if err != nil {
			return nil, err
		}

		return NewRedisStore(log, client, &config.Redis), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, config.Type)
	}
}
