package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps blocks as JSON documents with a transaction hash index.
//
// Keys:
//
//	<prefix>:block:<number> -> BlockRecord JSON
//	<prefix>:tx:<hash>      -> "<number>:<index>"
//	<prefix>:cursor         -> last processed block number
type RedisStore struct {
	log    logrus.FieldLogger
	client *redis.Client
	config *RedisConfig
}

func NewRedisStore(log logrus.FieldLogger, client *redis.Client, config *RedisConfig) *RedisStore {
	return &RedisStore{
		log:    log.WithField("backend", TypeRedis),
		client: client,
		config: config,
	}
}

func (s *RedisStore) blockKey(number uint64) string {
	return s.config.Key("block", strconv.FormatUint(number, 10))
}

func (s *RedisStore) txKey(hash common.Hash) string {
	return s.config.Key("tx", hash.Hex())
}

func (s *RedisStore) cursorKey() string {
	return s.config.Key("cursor")
}

func (s *RedisStore) PutBlock(ctx context.Context, block *BlockRecord) (err error) {
	defer func(start time.Time) { observe(TypeRedis, "put_block", start, err) }(time.Now())

	data, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("failed to encode block %d: %w", block.Number, err)
	}

	// A re-processed block may have lost transactions.
	prev, err := s.Block(ctx, block.Number)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	current := make(map[common.Hash]struct{}, len(block.Transactions))
	for _, tx := range block.Transactions {
		current[tx.Hash] = struct{}{}
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if prev != nil {
			for _, tx := range prev.Transactions {
				if _, ok := current[tx.Hash]; !ok {
					pipe.Del(ctx, s.txKey(tx.Hash))
				}
			}
		}

		pipe.Set(ctx, s.blockKey(block.Number), data, s.config.TTL)

		for _, tx := range block.Transactions {
			pipe.Set(ctx, s.txKey(tx.Hash), fmt.Sprintf("%d:%d", block.Number, tx.Index), s.config.TTL)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write block %d: %w", block.Number, err)
	}

	return nil
}

func (s *RedisStore) Block(ctx context.Context, number uint64) (*BlockRecord, error) {
	data, err := s.client.Get(ctx, s.blockKey(number)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("block %d: %w", number, ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read block %d: %w", number, err)
	}

	var block BlockRecord
	if err := json.Unmarshal(data, &block); err != nil {
		return nil, fmt.Errorf("failed to decode block %d: %w", number, err)
	}

	return &block, nil
}

func parseLocation(raw string) (uint64, int, error) {
	blockPart, indexPart, ok := strings.Cut(raw, ":")
	if !ok {
		return 0, 0, fmt.Errorf("malformed transaction location %q", raw)
	}

	number, err := strconv.ParseUint(blockPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed transaction location %q: %w", raw, err)
	}

	index, err := strconv.Atoi(indexPart)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed transaction location %q: %w", raw, err)
	}

	return number, index, nil
}

func (s *RedisStore) Transaction(ctx context.Context, hash common.Hash) (*TransactionRecord, error) {
	raw, err := s.client.Get(ctx, s.txKey(hash)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("transaction %s: %w", hash.Hex(), ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read transaction %s: %w", hash.Hex(), err)
	}

	number, index, err := parseLocation(raw)
	if err != nil {
		return nil, err
	}

	block, err := s.Block(ctx, number)
	if err != nil {
		return nil, err
	}

	if index < 0 || index >= len(block.Transactions) || block.Transactions[index].Hash != hash {
		return nil, fmt.Errorf("transaction %s: %w", hash.Hex(), ErrNotFound)
	}

	return block.Transactions[index], nil
}

func (s *RedisStore) Cursor(ctx context.Context) (uint64, bool, error) {
	number, err := s.client.Get(ctx, s.cursorKey()).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, fmt.Errorf("failed to read cursor: %w", err)
	}

	return number, true, nil
}

func (s *RedisStore) SetCursor(ctx context.Context, number uint64) error {
	if err := s.client.Set(ctx, s.cursorKey(), number, 0).Err(); err != nil {
		return fmt.Errorf("failed to write cursor: %w", err)
	}

	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
