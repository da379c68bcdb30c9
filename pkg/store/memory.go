package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

var _ Store = (*MemoryStore)(nil)

type txLocation struct {
	block uint64
	index int
}

// MemoryStore keeps the most recently written blocks in process memory.
type MemoryStore struct {
	log    logrus.FieldLogger
	blocks *lru.Cache[uint64, *BlockRecord]
	txs    *lru.Cache[common.Hash, txLocation]

	mu        sync.RWMutex
	cursor    uint64
	hasCursor bool
}

func NewMemoryStore(log logrus.FieldLogger, config *MemoryConfig) (*MemoryStore, error) {
	s := &MemoryStore{log: log.WithField("backend", TypeMemory)}

	// Transactions outnumber blocks, so the index is only bounded through block eviction.
	txs, err := lru.New[common.Hash, txLocation](config.MaxBlocks * 1024)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction index: %w", err)
	}

	blocks, err := lru.NewWithEvict(config.MaxBlocks, func(_ uint64, block *BlockRecord) {
		s.dropIndex(block)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create block cache: %w", err)
	}

	s.blocks = blocks
	s.txs = txs

	return s, nil
}

// dropIndex removes the index entries that still point at block.
func (s *MemoryStore) dropIndex(block *BlockRecord) {
	for _, tx := range block.Transactions {
		if loc, ok := s.txs.Peek(tx.Hash); ok && loc.block == block.Number {
			s.txs.Remove(tx.Hash)
		}
	}
}

func (s *MemoryStore) PutBlock(_ context.Context, block *BlockRecord) error {
	defer observe(TypeMemory, "put_block", time.Now(), nil)

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.blocks.Peek(block.Number); ok {
		s.dropIndex(prev)
	}

	s.blocks.Add(block.Number, block)

	for _, tx := range block.Transactions {
		s.txs.Add(tx.Hash, txLocation{block: block.Number, index: tx.Index})
	}

	return nil
}

func (s *MemoryStore) Block(_ context.Context, number uint64) (*BlockRecord, error) {
	block, ok := s.blocks.Get(number)
	if !ok {
		return nil, fmt.Errorf("block %d: %w", number, ErrNotFound)
	}

	return block, nil
}

func (s *MemoryStore) Transaction(_ context.Context, hash common.Hash) (*TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.txs.Get(hash)
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", hash.Hex(), ErrNotFound)
	}

	block, ok := s.blocks.Get(loc.block)
	if !ok || loc.index >= len(block.Transactions) {
		return nil, fmt.Errorf("transaction %s: %w", hash.Hex(), ErrNotFound)
	}

	return block.Transactions[loc.index], nil
}

func (s *MemoryStore) Cursor(_ context.Context) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cursor, s.hasCursor, nil
}

func (s *MemoryStore) SetCursor(_ context.Context, number uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursor = number
	s.hasCursor = true

	return nil
}

func (s *MemoryStore) Close() error {
	s.blocks.Purge()
	s.txs.Purge()

	return nil
}
