package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/trace-processor/pkg/processor"
	"github.com/ethpandaops/trace-processor/pkg/store"
	"github.com/ethpandaops/trace-processor/pkg/trace"
)

func testRecord(t *testing.T, number uint64) *store.BlockRecord {
	t.Helper()

	root := &trace.Trace{
		Action: trace.Call{CallType: "call", Value: uint256.NewInt(1), Gas: 21000},
		Result: trace.CallResult{GasUsed: 21000},
		Subs: []*trace.Trace{{
			Depth:  1,
			Action: trace.Call{CallType: "staticcall", Value: uint256.NewInt(0)},
			Result: trace.FailedCall{Error: "out of gas"},
		}},
	}

	record, err := store.NewBlockRecord(number, common.HexToHash("0xbeef"), []common.Hash{common.HexToHash("0x01")},
		trace.NewFlattener(1).Flatten([]*trace.Trace{root}))
	require.NoError(t, err)

	return record
}

type fakeProcessor struct {
	record *store.BlockRecord
	err    error

	mu    sync.Mutex
	calls []uint64
}

func (f *fakeProcessor) ProcessBlock(_ context.Context, number uint64) (*store.BlockRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, number)

	return f.record, f.err
}

func (f *fakeProcessor) processed() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]uint64(nil), f.calls...)
}

func newTestServer(t *testing.T, p BlockProcessor, reader BlockReader) *httptest.Server {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	mux := http.NewServeMux()
	NewHandler(log, p, reader).RegisterRoutes(mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return ts
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	defer resp.Body.Close()

	var out T

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return out
}

func TestHandler_ProcessBlock(t *testing.T) {
	testCases := []struct {
		name       string
		path       string
		processor  *fakeProcessor
		wantStatus int
		wantError  string
	}{
		{
			name:       "processed",
			path:       "/api/v1/blocks/42",
			processor:  &fakeProcessor{record: testRecord(t, 42)},
			wantStatus: http.StatusOK,
		},
		{
			name:       "invalid number",
			path:       "/api/v1/blocks/latest",
			processor:  &fakeProcessor{},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid block number format",
		},
		{
			name:       "not found",
			path:       "/api/v1/blocks/42",
			processor:  &fakeProcessor{err: fmt.Errorf("%w: 42", processor.ErrBlockNotFound)},
			wantStatus: http.StatusNotFound,
			wantError:  "block not found on execution node",
		},
		{
			name:       "not started",
			path:       "/api/v1/blocks/42",
			processor:  &fakeProcessor{err: processor.ErrNotStarted},
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "processor is not started",
		},
		{
			name:       "upstream failure",
			path:       "/api/v1/blocks/42",
			processor:  &fakeProcessor{err: errors.New("connection refused")},
			wantStatus: http.StatusBadGateway,
			wantError:  "connection refused",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, tc.processor, nil)

			resp, err := http.Post(ts.URL+tc.path, "application/json", nil)
			require.NoError(t, err)
			require.Equal(t, tc.wantStatus, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

			if tc.wantError != "" {
				body := decode[ErrorResponse](t, resp)
				assert.Equal(t, tc.wantError, body.Error)
				assert.NotNil(t, body.BlockNumber)

				return
			}

			body := decode[ProcessBlockResponse](t, resp)
			assert.Equal(t, "processed", body.Status)
			assert.Equal(t, uint64(42), body.BlockNumber)
			assert.Equal(t, 1, body.TransactionCount)
			assert.Equal(t, 2, body.TraceCount)
			assert.Equal(t, []uint64{42}, tc.processor.processed())
		})
	}
}

func TestHandler_GetBlock(t *testing.T) {
	st, err := store.NewMemoryStore(logrus.New(), &store.MemoryConfig{MaxBlocks: 4})
	require.NoError(t, err)
	require.NoError(t, st.PutBlock(context.Background(), testRecord(t, 7)))

	ts := newTestServer(t, &fakeProcessor{}, st)

	t.Run("stored", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/blocks/7")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		block := decode[store.BlockRecord](t, resp)
		assert.Equal(t, uint64(7), block.Number)
		require.Len(t, block.Transactions, 1)
		require.Len(t, block.Transactions[0].Traces, 2)

		child := block.Transactions[0].Traces[1]
		require.NotNil(t, child.Parent)
		assert.Equal(t, 0, *child.Parent)

		reason, failed := trace.FailureReason(child.Result)
		assert.True(t, failed)
		assert.Equal(t, "out of gas", reason)
	})

	t.Run("missing", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/blocks/8")
		require.NoError(t, err)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)

		body := decode[ErrorResponse](t, resp)
		assert.Equal(t, "block not stored", body.Error)
		assert.InDelta(t, 8, body.BlockNumber, 0)
	})

	t.Run("method not allowed", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/blocks/7", nil)
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}
