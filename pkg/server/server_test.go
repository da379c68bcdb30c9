package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/trace-processor/internal/testutil"
	"github.com/ethpandaops/trace-processor/pkg/ethereum"
	"github.com/ethpandaops/trace-processor/pkg/leaderelection"
	"github.com/ethpandaops/trace-processor/pkg/redis"
	"github.com/ethpandaops/trace-processor/pkg/rpc"
	"github.com/ethpandaops/trace-processor/pkg/store"
)

func freeAddr(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	require.NoError(t, l.Close())

	return addr
}

func fakeChain(t *testing.T, head uint64) *httptest.Server {
	t.Helper()

	fake := &testutil.FakeExecution{ChainID: 1, Head: head, Version: "Geth/v1.14.12-stable", Peers: 3}

	for n := uint64(0); n <= head; n++ {
		tx := common.BytesToHash([]byte{0x71, byte(n)})
		frame := fmt.Sprintf(`{"type":"CALL","from":"0x0000000000000000000000000000000000000001","to":"0x0000000000000000000000000000000000000002","gas":"0x10","gasUsed":"0x8","input":"0x",
			"calls":[{"type":"STATICCALL","from":"0x0000000000000000000000000000000000000002","to":"0x0000000000000000000000000000000000000003","gas":"0x4","gasUsed":"0x2","input":"0x%02x"}]}`, n)

		fake.AddBlock(n, testutil.FakeBlock{
			Hash:         common.BytesToHash([]byte{0xb0, byte(n)}),
			Transactions: []common.Hash{tx},
			Frames:       []json.RawMessage{json.RawMessage(frame)},
		})
	}

	return testutil.NewFakeExecutionServer(t, fake)
}

func TestNewServer_Wiring(t *testing.T) {
	config := validConfig(t)
	config.RPC.APIs = "web3,net,eth,personal,ethcore,trace"
	config.Node.Accounts = []string{"0x00000000000000000000000000000000000000aa"}

	s, err := NewServer(context.Background(), testLogger(), "trace_processor_test", config)
	require.NoError(t, err)
	require.NotNil(t, s.rpc)
	assert.IsType(t, &store.MemoryStore{}, s.store)

	settings := s.networkSettings()
	assert.Equal(t, rpc.NetworkSettings{
		Name:         "trace-processor",
		NetworkPort:  30303,
		MaxPeers:     25,
		RPCEnabled:   true,
		RPCInterface: "local",
		RPCPort:      8545,
	}, settings)

	require.NoError(t, s.store.Close())
}

func TestNewServer_Errors(t *testing.T) {
	config := validConfig(t)
	config.Ethereum.Execution = nil

	_, err := NewServer(context.Background(), testLogger(), "trace_processor_test", config)
	assert.ErrorIs(t, err, ethereum.ErrNoNodesConfigured)
}

func TestServer_NewElector(t *testing.T) {
	mr := testutil.NewMiniredis(t)

	t.Run("standalone", func(t *testing.T) {
		s := &Server{log: testLogger(), config: validConfig(t)}
		s.config.Processor.LeaderElection.NodeID = "node-a"

		elector, err := s.newElector("mainnet")
		require.NoError(t, err)
		assert.IsType(t, &leaderelection.Standalone{}, elector)
		assert.Nil(t, s.electorRedis)
	})

	t.Run("redis", func(t *testing.T) {
		s := &Server{log: testLogger(), config: validConfig(t)}
		s.config.Store.Type = store.TypeRedis
		s.config.Store.Redis.Config = redis.Config{Address: mr.Addr(), Prefix: "tp"}
		s.config.Processor.LeaderElection.Enabled = true
		s.config.Processor.LeaderElection.NodeID = "node-a"

		elector, err := s.newElector("mainnet")
		require.NoError(t, err)
		require.IsType(t, &leaderelection.RedisElector{}, elector)
		assert.Equal(t, "node-a", elector.(*leaderelection.RedisElector).NodeID())
		require.NotNil(t, s.electorRedis)
		assert.NoError(t, s.electorRedis.Close())
	})
}

func TestAddHook(t *testing.T) {
	log := logrus.New()
	log.SetOutput(&strings.Builder{})

	testCases := []struct {
		name string
		log  logrus.FieldLogger
	}{
		{name: "logger", log: log},
		{name: "entry", log: log.WithField("component", "test")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			hook := &countingHook{}
			addHook(tc.log, hook)

			tc.log.Info("hello")
			assert.Equal(t, 1, hook.fired)
		})
	}
}

type countingHook struct {
	fired int
}

func (h *countingHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *countingHook) Fire(*logrus.Entry) error {
	h.fired++

	return nil
}

func TestServer_StartProcessesAndServes(t *testing.T) {
	node := fakeChain(t, 4)

	startBlock := uint64(0)
	apiAddr := freeAddr(t)
	healthAddr := freeAddr(t)

	config := validConfig(t)
	config.MetricsAddr = freeAddr(t)
	config.APIAddr = &apiAddr
	config.HealthCheckAddr = &healthAddr
	config.Ethereum.Execution[0].NodeAddress = node.URL
	config.Processor.Interval = 20 * time.Millisecond
	config.Processor.Confirmations = 0
	config.Processor.StartBlock = &startBlock
	config.RPC.Port = 0
	config.RPC.APIs = "web3,ethcore,trace"
	config.ShutdownTimeout = 5 * time.Second

	s, err := NewServer(context.Background(), testLogger(), "trace_processor_test", config)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- s.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		cursor, ok, err := s.store.Cursor(context.Background())

		return err == nil && ok && cursor == 4
	}, 10*time.Second, 20*time.Millisecond)

	client, err := gethrpc.DialHTTP("http://" + s.rpc.Addr())
	require.NoError(t, err)

	defer client.Close()

	var traces []struct {
		BlockNumber  uint64 `json:"blockNumber"`
		TraceAddress []int  `json:"traceAddress"`
		Subtraces    int    `json:"subtraces"`
	}

	require.NoError(t, client.Call(&traces, "trace_block", "latest"))
	require.Len(t, traces, 2)
	assert.Equal(t, uint64(4), traces[0].BlockNumber)
	assert.Equal(t, 1, traces[0].Subtraces)
	assert.Equal(t, []int{0}, traces[1].TraceAddress)

	var chain string

	require.NoError(t, client.Call(&chain, "ethcore_netChain"))
	assert.Equal(t, "mainnet", chain)

	resp, err := http.Get("http://" + apiAddr + "/api/v1/blocks/2")
	require.NoError(t, err)

	var block store.BlockRecord

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&block))
	resp.Body.Close()
	assert.Equal(t, uint64(2), block.Number)

	resp, err = http.Get("http://" + healthAddr)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
