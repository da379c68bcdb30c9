package clickhouse

import (
	"context"
	"sync"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/proto"
)

var _ ClientInterface = (*MockClient)(nil)

// MockClient is an in-memory ClientInterface for tests. It is safe for
// concurrent use.
type MockClient struct {
	StartFunc   func() error
	StopFunc    func() error
	DoFunc      func(ctx context.Context, query ch.Query) error
	ExecuteFunc func(ctx context.Context, query string) error
	InsertFunc  func(ctx context.Context, table string, input proto.Input) error

	mu       sync.Mutex
	calls    []MockCall
	inserted map[string]int
	network  string
}

// MockCall represents a method call made to the mock.
type MockCall struct {
	Method string
	Args   []any
}

func NewMockClient() *MockClient {
	return &MockClient{inserted: make(map[string]int)}
}

func (m *MockClient) record(method string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{Method: method, Args: args})
}

func (m *MockClient) Start() error {
	m.record("Start")

	if m.StartFunc != nil {
		return m.StartFunc()
	}

	return nil
}

func (m *MockClient) Stop() error {
	m.record("Stop")

	if m.StopFunc != nil {
		return m.StopFunc()
	}

	return nil
}

func (m *MockClient) Do(ctx context.Context, query ch.Query) error {
	m.record("Do", query.Body)

	if m.DoFunc != nil {
		return m.DoFunc(ctx, query)
	}

	return nil
}

func (m *MockClient) Execute(ctx context.Context, query string) error {
	m.record("Execute", query)

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, query)
	}

	return nil
}

// Insert counts rows per table when InsertFunc is unset or succeeds.
func (m *MockClient) Insert(ctx context.Context, table string, input proto.Input) error {
	m.record("Insert", table)

	if m.InsertFunc != nil {
		if err := m.InsertFunc(ctx, table, input); err != nil {
			return err
		}
	}

	rows := 0
	if len(input) > 0 {
		rows = input[0].Data.Rows()
	}

	m.mu.Lock()
	m.inserted[table] += rows
	m.mu.Unlock()

	return nil
}

func (m *MockClient) SetNetwork(network string) {
	m.record("SetNetwork", network)

	m.mu.Lock()
	m.network = network
	m.mu.Unlock()
}

// Network returns the last value passed to SetNetwork.
func (m *MockClient) Network() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.network
}

// InsertedRows returns the number of rows successfully inserted into table.
func (m *MockClient) InsertedRows(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.inserted[table]
}

func (m *MockClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]MockCall(nil), m.calls...)
}

// GetCallCount returns the number of times a method was called.
func (m *MockClient) GetCallCount(method string) int {
	count := 0

	for _, call := range m.Calls() {
		if call.Method == method {
			count++
		}
	}

	return count
}

func (m *MockClient) WasCalled(method string) bool {
	return m.GetCallCount(method) > 0
}

// Reset clears recorded calls and insert counts.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = nil
	m.inserted = make(map[string]int)
}
