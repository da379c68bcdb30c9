package store

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/trace-processor/internal/testutil"
	"github.com/ethpandaops/trace-processor/pkg/redis"
	"github.com/ethpandaops/trace-processor/pkg/trace"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func txRoot(seed byte) *trace.Trace {
	return &trace.Trace{
		Action: trace.Call{
			CallType: "call",
			From:     common.BytesToAddress([]byte{seed}),
			To:       common.BytesToAddress([]byte{seed + 1}),
			Value:    uint256.NewInt(uint64(seed)),
			Gas:      100,
			Input:    []byte{seed},
		},
		Result: trace.CallResult{GasUsed: 50, Output: []byte{seed, seed}},
		Subs: []*trace.Trace{{
			Depth: 1,
			Action: trace.Create{
				From:  common.BytesToAddress([]byte{seed + 1}),
				Value: uint256.NewInt(0),
				Gas:   40,
				Init:  []byte{0x60},
			},
			Result: trace.FailedCreate{Error: "out of gas"},
		}},
	}
}

func testBlock(t *testing.T, number uint64, seeds ...byte) *BlockRecord {
	t.Helper()

	roots := make([]*trace.Trace, len(seeds))
	hashes := make([]common.Hash, len(seeds))

	for i, seed := range seeds {
		roots[i] = txRoot(seed)
		hashes[i] = common.BytesToHash([]byte{byte(number), seed})
	}

	record, err := NewBlockRecord(number, common.BytesToHash([]byte{byte(number)}), hashes, trace.NewBlockTraces(roots))
	require.NoError(t, err)

	return record
}

func newRedisStore(t *testing.T, ttl time.Duration) *RedisStore {
	t.Helper()

	client, _ := testutil.NewMiniredisClient(t)

	return NewRedisStore(testLogger(), client, &RedisConfig{
		Config: redis.Config{Address: "unused", Prefix: "test"},
		TTL:    ttl,
	})
}

func backends(t *testing.T) map[string]Store {
	t.Helper()

	memory, err := NewMemoryStore(testLogger(), &MemoryConfig{MaxBlocks: 16})
	require.NoError(t, err)

	return map[string]Store{
		TypeMemory: memory,
		TypeRedis:  newRedisStore(t, 0),
	}
}

func TestStore_BlockRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			block := testBlock(t, 10, 1, 2)
			require.NoError(t, s.PutBlock(ctx, block))

			got, err := s.Block(ctx, 10)
			require.NoError(t, err)
			assert.Equal(t, block, got)
			assert.Equal(t, 4, got.TraceCount())

			tx, err := s.Transaction(ctx, block.Transactions[1].Hash)
			require.NoError(t, err)
			assert.Equal(t, block.Transactions[1], tx)
			require.NoError(t, trace.Verify(tx.Traces))

			reason, failed := trace.FailureReason(tx.Traces[1].Result)
			assert.True(t, failed)
			assert.Equal(t, "out of gas", reason)
		})
	}
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Block(ctx, 99)
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = s.Transaction(ctx, common.HexToHash("0xdead"))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_ReplaceBlockDropsStaleTransactions(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			first := testBlock(t, 5, 1, 2)
			require.NoError(t, s.PutBlock(ctx, first))

			second := testBlock(t, 5, 2)
			require.NoError(t, s.PutBlock(ctx, second))

			_, err := s.Transaction(ctx, first.Transactions[0].Hash)
			assert.ErrorIs(t, err, ErrNotFound)

			tx, err := s.Transaction(ctx, second.Transactions[0].Hash)
			require.NoError(t, err)
			assert.Equal(t, 0, tx.Index)

			got, err := s.Block(ctx, 5)
			require.NoError(t, err)
			assert.Len(t, got.Transactions, 1)
		})
	}
}

func TestStore_Cursor(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Cursor(ctx)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.SetCursor(ctx, 0))

			number, ok, err := s.Cursor(ctx)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, uint64(0), number)

			require.NoError(t, s.SetCursor(ctx, 1234))

			number, _, err = s.Cursor(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(1234), number)
		})
	}
}

func TestMemoryStore_Eviction(t *testing.T) {
	ctx := context.Background()

	s, err := NewMemoryStore(testLogger(), &MemoryConfig{MaxBlocks: 2})
	require.NoError(t, err)

	b1 := testBlock(t, 1, 1)
	require.NoError(t, s.PutBlock(ctx, b1))
	require.NoError(t, s.PutBlock(ctx, testBlock(t, 2, 1)))
	require.NoError(t, s.PutBlock(ctx, testBlock(t, 3, 1)))

	_, err = s.Block(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Transaction(ctx, b1.Transactions[0].Hash)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Block(ctx, 3)
	assert.NoError(t, err)
}

func TestRedisStore_TTL(t *testing.T) {
	ctx := context.Background()

	client, mr := testutil.NewMiniredisClient(t)
	s := NewRedisStore(testLogger(), client, &RedisConfig{
		Config: redis.Config{Address: mr.Addr(), Prefix: "ttl"},
		TTL:    time.Minute,
	})

	block := testBlock(t, 7, 1)
	require.NoError(t, s.PutBlock(ctx, block))
	require.NoError(t, s.SetCursor(ctx, 7))

	assert.True(t, mr.Exists("ttl:block:7"))
	assert.True(t, mr.Exists("ttl:tx:"+block.Transactions[0].Hash.Hex()))

	mr.FastForward(2 * time.Minute)

	_, err := s.Block(ctx, 7)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Transaction(ctx, block.Transactions[0].Hash)
	assert.ErrorIs(t, err, ErrNotFound)

	// The cursor never expires.
	number, ok, err := s.Cursor(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(7), number)
}

func TestNewBlockRecord_Mismatch(t *testing.T) {
	_, err := NewBlockRecord(1, common.Hash{}, []common.Hash{{}}, trace.NewBlockTraces(nil))
	assert.ErrorIs(t, err, ErrMismatchedBlock)
}

func TestNew(t *testing.T) {
	mr := testutil.NewMiniredis(t)

	testCases := []struct {
		name     string
		config   *Config
		expected any
		wantErr  bool
	}{
		{
			name:     "memory",
			config:   &Config{Type: TypeMemory, Memory: MemoryConfig{MaxBlocks: 4}},
			expected: &MemoryStore{},
		},
		{
			name:     "redis",
			config:   &Config{Type: TypeRedis, Redis: RedisConfig{Config: redis.Config{Address: mr.Addr()}}},
			expected: &RedisStore{},
		},
		{
			name:    "unknown",
			config:  &Config{Type: "postgres"},
			wantErr: true,
		},
		{
			name:    "memory without capacity",
			config:  &Config{Type: TypeMemory},
			wantErr: true,
		},
		{
			name:    "redis without address",
			config:  &Config{Type: TypeRedis},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := New(testLogger(), tc.config)
			if tc.wantErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.IsType(t, tc.expected, s)
			assert.NoError(t, s.Close())
		})
	}
}
