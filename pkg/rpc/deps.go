package rpc

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ethpandaops/trace-processor/pkg/store"
)

// Chain is the blockchain view of the upstream node.
type Chain interface {
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (uint64, error)
}

// Sync is the peer and sync view of the upstream node.
type Sync interface {
	PeerCount(ctx context.Context) (uint64, error)
	// SyncProgress returns nil when the node is not syncing.
	SyncProgress(ctx context.Context) (*ethereum.SyncProgress, error)
}

// Accounts lists the addresses the service exposes.
type Accounts interface {
	Accounts(ctx context.Context) ([]common.Address, error)
}

// Miner is the transaction pool view of the upstream node.
type Miner interface {
	GasPrice(ctx context.Context) (*big.Int, error)
}

// Logs exposes recent log output.
type Logs interface {
	Lines() []string
	LevelName() string
}

// NetworkSettings describes the node for the ethcore namespace.
type NetworkSettings struct {
	Name         string
	Chain        string
	NetworkPort  uint16
	MaxPeers     uint32
	RPCEnabled   bool
	RPCInterface string
	RPCPort      int
}

// Settings returns the current network settings. The chain name is only
// known once the upstream node has been resolved.
type Settings interface {
	NetworkSettings() NetworkSettings
}

// SettingsFunc adapts a function to Settings.
type SettingsFunc func() NetworkSettings

func (f SettingsFunc) NetworkSettings() NetworkSettings {
	return f()
}

// Traces reads stored flat traces.
type Traces interface {
	Block(ctx context.Context, number uint64) (*store.BlockRecord, error)
	Transaction(ctx context.Context, hash common.Hash) (*store.TransactionRecord, error)
	Cursor(ctx context.Context) (uint64, bool, error)
}

// Dependencies are the views shared by the API handlers. Only the views an
// enabled API needs must be set.
type Dependencies struct {
	ClientVersion string
	Chain         Chain
	Sync          Sync
	Accounts      Accounts
	Miner         Miner
	Logs          Logs
	Settings      Settings
	Traces        Traces
}

// StaticAccounts serves a fixed address list.
type StaticAccounts []common.Address

func (s StaticAccounts) Accounts(_ context.Context) ([]common.Address, error) {
	out := make([]common.Address, len(s))
	copy(out, s)

	return out, nil
}
