package rpc

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// web3API serves web3_*.
type web3API struct {
	clientVersion string
}

func (api *web3API) ClientVersion() string {
	return api.clientVersion
}

// Sha3 returns the Keccak-256 of input.
func (api *web3API) Sha3(input hexutil.Bytes) hexutil.Bytes {
	return crypto.Keccak256(input)
}

// netAPI serves net_*.
type netAPI struct {
	chain Chain
	sync  Sync
}

// Version returns the network ID in decimal.
func (api *netAPI) Version(ctx context.Context) (string, error) {
	id, err := api.chain.ChainID(ctx)
	if err != nil {
		return "", err
	}

	return strconv.FormatUint(id, 10), nil
}

func (api *netAPI) PeerCount(ctx context.Context) (hexutil.Uint64, error) {
	n, err := api.sync.PeerCount(ctx)

	return hexutil.Uint64(n), err
}

func (api *netAPI) Listening() bool {
	return true
}

// ethAPI serves the read-only subset of eth_*.
type ethAPI struct {
	chain    Chain
	sync     Sync
	accounts Accounts
	miner    Miner
}

type syncStatus struct {
	StartingBlock hexutil.Uint64 `json:"startingBlock"`
	CurrentBlock  hexutil.Uint64 `json:"currentBlock"`
	HighestBlock  hexutil.Uint64 `json:"highestBlock"`
}

func (api *ethAPI) BlockNumber(ctx context.Context) (hexutil.Uint64, error) {
	n, err := api.chain.BlockNumber(ctx)

	return hexutil.Uint64(n), err
}

//nolint:revive // method name maps to eth_chainId
func (api *ethAPI) ChainId(ctx context.Context) (hexutil.Uint64, error) {
	id, err := api.chain.ChainID(ctx)

	return hexutil.Uint64(id), err
}

// Syncing returns false, or the sync status while the node is syncing.
func (api *ethAPI) Syncing(ctx context.Context) (any, error) {
	progress, err := api.sync.SyncProgress(ctx)
	if err != nil {
		return nil, err
	}

	if progress == nil {
		return false, nil
	}

	return syncStatus{
		StartingBlock: hexutil.Uint64(progress.StartingBlock),
		CurrentBlock:  hexutil.Uint64(progress.CurrentBlock),
		HighestBlock:  hexutil.Uint64(progress.HighestBlock),
	}, nil
}

func (api *ethAPI) Accounts(ctx context.Context) ([]common.Address, error) {
	return api.accounts.Accounts(ctx)
}

func (api *ethAPI) GasPrice(ctx context.Context) (*hexutil.Big, error) {
	price, err := api.miner.GasPrice(ctx)
	if err != nil {
		return nil, err
	}

	return (*hexutil.Big)(price), nil
}

// personalAPI serves personal_*.
type personalAPI struct {
	accounts Accounts
}

func (api *personalAPI) ListAccounts(ctx context.Context) ([]common.Address, error) {
	return api.accounts.Accounts(ctx)
}

// ethcoreAPI serves ethcore_*.
type ethcoreAPI struct {
	miner    Miner
	logs     Logs
	settings Settings
}

type rpcSettings struct {
	Enabled   bool   `json:"enabled"`
	Interface string `json:"interface"`
	Port      int    `json:"port"`
}

func (api *ethcoreAPI) MinGasPrice(ctx context.Context) (*hexutil.Big, error) {
	price, err := api.miner.GasPrice(ctx)
	if err != nil {
		return nil, err
	}

	return (*hexutil.Big)(price), nil
}

func (api *ethcoreAPI) DevLogs() []string {
	return api.logs.Lines()
}

func (api *ethcoreAPI) DevLogsLevels() string {
	return api.logs.LevelName()
}

func (api *ethcoreAPI) NetChain() string {
	return api.settings.NetworkSettings().Chain
}

func (api *ethcoreAPI) NetPort() uint16 {
	return api.settings.NetworkSettings().NetworkPort
}

func (api *ethcoreAPI) NetMaxPeers() uint32 {
	return api.settings.NetworkSettings().MaxPeers
}

func (api *ethcoreAPI) NodeName() string {
	return api.settings.NetworkSettings().Name
}

//nolint:revive // method name maps to ethcore_rpcSettings
func (api *ethcoreAPI) RpcSettings() rpcSettings {
	s := api.settings.NetworkSettings()

	return rpcSettings{
		Enabled:   s.RPCEnabled,
		Interface: s.RPCInterface,
		Port:      s.RPCPort,
	}
}
