package execution

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
)

// Node is an upstream execution client that produces call trees for blocks.
//
// All methods must be safe for concurrent use by multiple goroutines.
//
// Lifecycle:
//  1. Create the node with NewRPCNode
//  2. Register OnReady callbacks before calling Start
//  3. Call Start to begin initialization
//  4. The node signals readiness by executing OnReady callbacks
//  5. Call Stop for graceful shutdown
type Node interface {
	// Start initializes the node and begins background metadata refreshes.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the node and releases resources.
	Stop(ctx context.Context) error

	// OnReady registers a callback to be invoked when the node becomes ready.
	// Callbacks execute in registration order.
	OnReady(ctx context.Context, callback func(ctx context.Context) error)

	// BlockNumber returns the current head block number.
	BlockNumber(ctx context.Context) (*uint64, error)

	// TraceBlock returns the call tree of every transaction in the block.
	TraceBlock(ctx context.Context, number uint64) (*BlockTrace, error)

	// PeerCount returns the number of peers connected to the client.
	PeerCount(ctx context.Context) (uint64, error)

	// SyncProgress returns nil when the client is not syncing.
	SyncProgress(ctx context.Context) (*ethereum.SyncProgress, error)

	// GasPrice returns the client's suggested gas price.
	GasPrice(ctx context.Context) (*big.Int, error)

	// ChainID returns the chain ID reported by the execution client.
	ChainID() int32

	// ClientVersion returns the web3_clientVersion string (e.g., "Geth/v1.14.0").
	ClientVersion() string

	// IsSynced returns true if the execution client is fully synced.
	IsSynced() bool

	// Name returns the configured name for this node.
	Name() string
}
