package rpc

import (
	"context"
	"encoding/json"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/trace-processor/pkg/store"
	"github.com/ethpandaops/trace-processor/pkg/trace"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func stringPtr(s string) *string {
	return &s
}

type fakeNode struct {
	head     uint64
	chainID  uint64
	peers    uint64
	progress *ethereum.SyncProgress
	price    *big.Int
}

func (f *fakeNode) BlockNumber(_ context.Context) (uint64, error) { return f.head, nil }
func (f *fakeNode) ChainID(_ context.Context) (uint64, error)     { return f.chainID, nil }
func (f *fakeNode) PeerCount(_ context.Context) (uint64, error)   { return f.peers, nil }
func (f *fakeNode) GasPrice(_ context.Context) (*big.Int, error)  { return f.price, nil }

func (f *fakeNode) SyncProgress(_ context.Context) (*ethereum.SyncProgress, error) {
	return f.progress, nil
}

type fakeLogs struct{}

func (fakeLogs) Lines() []string   { return []string{"second", "first"} }
func (fakeLogs) LevelName() string { return "info" }

func testTraces(t *testing.T) (*store.MemoryStore, *store.BlockRecord) {
	t.Helper()

	st, err := store.NewMemoryStore(testLogger(), &store.MemoryConfig{MaxBlocks: 8})
	require.NoError(t, err)

	root := &trace.Trace{
		Action: trace.Call{
			CallType: "call",
			From:     common.HexToAddress("0x1111111111111111111111111111111111111111"),
			To:       common.HexToAddress("0x2222222222222222222222222222222222222222"),
			Value:    uint256.NewInt(7),
			Gas:      1000,
		},
		Result: trace.CallResult{GasUsed: 600},
		Subs: []*trace.Trace{
			{
				Depth:  1,
				Action: trace.Call{CallType: "delegatecall", Value: uint256.NewInt(0), Gas: 500},
				Result: trace.FailedCall{Error: "execution reverted"},
			},
			{
				Depth:  1,
				Action: trace.Create{Value: uint256.NewInt(0), Gas: 300, Init: []byte{0x60}},
				Result: trace.CreateResult{GasUsed: 200, Address: common.HexToAddress("0x3333333333333333333333333333333333333333")},
				Subs: []*trace.Trace{{
					Depth:  2,
					Action: trace.Call{CallType: "call", Value: uint256.NewInt(0), Gas: 10},
					Result: trace.CallResult{GasUsed: 5},
				}},
			},
		},
	}

	hashes := []common.Hash{common.HexToHash("0xaa")}
	record, err := store.NewBlockRecord(12, common.HexToHash("0xbb"), hashes, trace.NewFlattener(1).Flatten([]*trace.Trace{root}))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, st.PutBlock(ctx, record))
	require.NoError(t, st.SetCursor(ctx, 12))

	return st, record
}

func testDeps(t *testing.T) Dependencies {
	t.Helper()

	node := &fakeNode{head: 0x10, chainID: 1, peers: 3, price: big.NewInt(1_000_000_000)}
	traces, _ := testTraces(t)

	return Dependencies{
		ClientVersion: "trace-processor/v1.0.0",
		Chain:         node,
		Sync:          node,
		Accounts:      StaticAccounts{common.HexToAddress("0x4444444444444444444444444444444444444444")},
		Miner:         node,
		Logs:          fakeLogs{},
		Settings: SettingsFunc(func() NetworkSettings {
			return NetworkSettings{
				Name:         "node-a",
				Chain:        "mainnet",
				NetworkPort:  30303,
				MaxPeers:     25,
				RPCEnabled:   true,
				RPCInterface: "local",
				RPCPort:      8545,
			}
		}),
		Traces: traces,
	}
}

func testConfig(apis string) *Config {
	return &Config{Enabled: true, Interface: "local", Port: 0, APIs: apis}
}

func dial(t *testing.T, srv *Server) *gethrpc.Client {
	t.Helper()

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client, err := gethrpc.DialHTTP(ts.URL)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client
}

func TestNew_Disabled(t *testing.T) {
	srv, err := New(testLogger(), &Config{Enabled: false, APIs: "bogus"}, Dependencies{})
	require.NoError(t, err)
	assert.Nil(t, srv)
}

func TestNew_Errors(t *testing.T) {
	testCases := []struct {
		name     string
		config   *Config
		deps     Dependencies
		expected error
	}{
		{name: "unknown api", config: testConfig("web3,admin"), expected: ErrUnknownAPI},
		{name: "bad interface", config: &Config{Enabled: true, Interface: "nowhere", APIs: "web3"}, expected: ErrInvalidListenAddress},
		{name: "bad port", config: &Config{Enabled: true, Interface: "all", Port: 70000, APIs: "web3"}, expected: ErrInvalidListenAddress},
		{name: "missing dependency", config: testConfig("trace"), expected: ErrMissingDependency},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv, err := New(testLogger(), tc.config, tc.deps)
			require.ErrorIs(t, err, tc.expected)
			assert.Nil(t, srv)
		})
	}
}

func TestConfig(t *testing.T) {
	testCases := []struct {
		name      string
		config    Config
		addr      string
		apis      []string
		validates bool
	}{
		{name: "all", config: Config{Enabled: true, Interface: "all", Port: 8545, APIs: "web3, net,,eth"}, addr: "0.0.0.0:8545", apis: []string{"web3", "net", "eth"}, validates: true},
		{name: "local", config: Config{Enabled: true, Interface: "local", Port: 1, APIs: "trace"}, addr: "127.0.0.1:1", apis: []string{"trace"}, validates: true},
		{name: "ipv6", config: Config{Enabled: true, Interface: "::1", Port: 9, APIs: "ethcore,personal"}, addr: "[::1]:9", apis: []string{"ethcore", "personal"}, validates: true},
		{name: "unknown api", config: Config{Enabled: true, Interface: "local", Port: 1, APIs: "eth,debug"}, addr: "127.0.0.1:1", apis: []string{"eth", "debug"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			addr, err := tc.config.ListenAddr()
			require.NoError(t, err)
			assert.Equal(t, tc.addr, addr)
			assert.Equal(t, tc.apis, tc.config.APINames())

			if tc.validates {
				assert.NoError(t, tc.config.Validate())
			} else {
				assert.Error(t, tc.config.Validate())
			}
		})
	}

	cfg := Config{CORS: stringPtr("https://a.example, https://b.example")}
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins())
	assert.Nil(t, (&Config{}).CORSOrigins())
}

func TestServer_Namespaces(t *testing.T) {
	srv, err := New(testLogger(), testConfig("web3,net,eth,personal,ethcore"), testDeps(t))
	require.NoError(t, err)

	client := dial(t, srv)

	testCases := []struct {
		method   string
		args     []any
		expected string
	}{
		{method: "web3_clientVersion", expected: `"trace-processor/v1.0.0"`},
		{method: "web3_sha3", args: []any{"0x68656c6c6f"}, expected: `"` + hexutil.Encode(crypto.Keccak256([]byte("hello"))) + `"`},
		{method: "net_version", expected: `"1"`},
		{method: "net_peerCount", expected: `"0x3"`},
		{method: "net_listening", expected: `true`},
		{method: "eth_blockNumber", expected: `"0x10"`},
		{method: "eth_chainId", expected: `"0x1"`},
		{method: "eth_syncing", expected: `false`},
		{method: "eth_accounts", expected: `["0x4444444444444444444444444444444444444444"]`},
		{method: "eth_gasPrice", expected: `"0x3b9aca00"`},
		{method: "personal_listAccounts", expected: `["0x4444444444444444444444444444444444444444"]`},
		{method: "ethcore_minGasPrice", expected: `"0x3b9aca00"`},
		{method: "ethcore_devLogs", expected: `["second","first"]`},
		{method: "ethcore_devLogsLevels", expected: `"info"`},
		{method: "ethcore_netChain", expected: `"mainnet"`},
		{method: "ethcore_netPort", expected: `30303`},
		{method: "ethcore_netMaxPeers", expected: `25`},
		{method: "ethcore_nodeName", expected: `"node-a"`},
		{method: "ethcore_rpcSettings", expected: `{"enabled":true,"interface":"local","port":8545}`},
	}

	for _, tc := range testCases {
		t.Run(tc.method, func(t *testing.T) {
			var result json.RawMessage

			require.NoError(t, client.Call(&result, tc.method, tc.args...))
			assert.JSONEq(t, tc.expected, string(result))
		})
	}

	t.Run("disabled namespace", func(t *testing.T) {
		var result json.RawMessage

		assert.Error(t, client.Call(&result, "trace_block", "latest"))
	})
}

func TestServer_Syncing(t *testing.T) {
	deps := testDeps(t)
	deps.Sync = &fakeNode{progress: &ethereum.SyncProgress{StartingBlock: 1, CurrentBlock: 5, HighestBlock: 9}}

	srv, err := New(testLogger(), testConfig("eth"), deps)
	require.NoError(t, err)

	var result json.RawMessage

	require.NoError(t, dial(t, srv).Call(&result, "eth_syncing"))
	assert.JSONEq(t, `{"startingBlock":"0x1","currentBlock":"0x5","highestBlock":"0x9"}`, string(result))
}

type localizedTraceJSON struct {
	Action              map[string]any `json:"action"`
	Result              map[string]any `json:"result"`
	Error               string         `json:"error"`
	TraceAddress        []int          `json:"traceAddress"`
	Subtraces           int            `json:"subtraces"`
	TransactionPosition int            `json:"transactionPosition"`
	TransactionHash     common.Hash    `json:"transactionHash"`
	BlockNumber         uint64         `json:"blockNumber"`
	BlockHash           common.Hash    `json:"blockHash"`
	Type                string         `json:"type"`
}

func TestServer_Trace(t *testing.T) {
	srv, err := New(testLogger(), testConfig("trace"), testDeps(t))
	require.NoError(t, err)

	client := dial(t, srv)

	for _, tag := range []string{"0xc", "latest"} {
		t.Run("block "+tag, func(t *testing.T) {
			var traces []localizedTraceJSON

			require.NoError(t, client.Call(&traces, "trace_block", tag))
			require.Len(t, traces, 4)

			expected := []struct {
				address   []int
				subtraces int
				kind      string
				failed    bool
			}{
				{address: []int{}, subtraces: 2, kind: "call"},
				{address: []int{0}, subtraces: 0, kind: "call", failed: true},
				{address: []int{1}, subtraces: 1, kind: "create"},
				{address: []int{1, 0}, subtraces: 0, kind: "call"},
			}

			for i, want := range expected {
				got := traces[i]

				assert.Equal(t, want.address, got.TraceAddress, "trace %d", i)
				assert.Equal(t, want.subtraces, got.Subtraces, "trace %d", i)
				assert.Equal(t, want.kind, got.Type, "trace %d", i)
				assert.Equal(t, uint64(12), got.BlockNumber)
				assert.Equal(t, common.HexToHash("0xaa"), got.TransactionHash)

				if want.failed {
					assert.Nil(t, got.Result)
					assert.Equal(t, "execution reverted", got.Error)
				} else {
					assert.NotNil(t, got.Result)
					assert.Empty(t, got.Error)
				}
			}

			assert.Equal(t, "0x7", traces[0].Action["value"])
			assert.Equal(t, "0x3333333333333333333333333333333333333333", traces[2].Result["address"])
		})
	}

	t.Run("missing block is null", func(t *testing.T) {
		var traces []localizedTraceJSON

		require.NoError(t, client.Call(&traces, "trace_block", "0x99"))
		assert.Nil(t, traces)
	})

	t.Run("transaction", func(t *testing.T) {
		var traces []localizedTraceJSON

		require.NoError(t, client.Call(&traces, "trace_transaction", common.HexToHash("0xaa")))
		assert.Len(t, traces, 4)

		require.NoError(t, client.Call(&traces, "trace_transaction", common.HexToHash("0xcc")))
		assert.Nil(t, traces)
	})

	t.Run("get", func(t *testing.T) {
		var got *localizedTraceJSON

		require.NoError(t, client.Call(&got, "trace_get", common.HexToHash("0xaa"), []string{"0x1", "0x0"}))
		require.NotNil(t, got)
		assert.Equal(t, []int{1, 0}, got.TraceAddress)

		got = nil
		require.NoError(t, client.Call(&got, "trace_get", common.HexToHash("0xaa"), []string{"0x5"}))
		assert.Nil(t, got)
	})
}

func TestServer_CORS(t *testing.T) {
	config := testConfig("web3")
	config.CORS = stringPtr("https://allowed.example")

	srv, err := New(testLogger(), config, testDeps(t))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	req, err := http.NewRequest(http.MethodOptions, ts.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://allowed.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "https://allowed.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_StartStop(t *testing.T) {
	srv, err := New(testLogger(), testConfig("web3"), testDeps(t))
	require.NoError(t, err)

	require.NoError(t, srv.Start(context.Background()))

	addr := srv.Addr()
	assert.False(t, strings.HasSuffix(addr, ":0"))

	client, err := gethrpc.DialHTTP("http://" + addr)
	require.NoError(t, err)

	defer client.Close()

	var version string

	require.NoError(t, client.Call(&version, "web3_clientVersion"))
	assert.Equal(t, "trace-processor/v1.0.0", version)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	require.NoError(t, srv.Stop(ctx))
}

func TestServer_StartBindFailure(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	defer occupied.Close()

	config := testConfig("web3")
	config.Port = occupied.Addr().(*net.TCPAddr).Port

	srv, err := New(testLogger(), config, testDeps(t))
	require.NoError(t, err)

	assert.ErrorIs(t, srv.Start(context.Background()), ErrListen)
}

func TestRequestMethods(t *testing.T) {
	served := map[string]bool{"eth": true}

	testCases := []struct {
		name     string
		body     string
		expected []string
	}{
		{name: "single", body: `{"jsonrpc":"2.0","id":1,"method":"eth_chainId"}`, expected: []string{"eth_chainId"}},
		{name: "batch", body: ` [{"method":"eth_chainId"},{"method":"admin_peers"}]`, expected: []string{"eth_chainId", "unknown"}},
		{name: "garbage", body: `not json`, expected: []string{"unknown"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			methods := requestMethods([]byte(tc.body))
			labels := make([]string, len(methods))

			for i, m := range methods {
				labels[i] = methodLabel(m, served)
			}

			assert.Equal(t, tc.expected, labels)
		})
	}
}
