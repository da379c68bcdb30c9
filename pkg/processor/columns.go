package processor

import (
	"fmt"
	"time"

	"github.com/ClickHouse/ch-go/proto"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/ethpandaops/trace-processor/pkg/store"
	"github.com/ethpandaops/trace-processor/pkg/trace"
)

// Row is one flat trace as exported to ClickHouse.
type Row struct {
	UpdatedDateTime  time.Time
	BlockNumber      uint64
	BlockHash        string
	TransactionHash  string
	TransactionIndex uint32
	TraceIndex       uint32
	ParentIndex      *uint32
	Children         []uint32
	TraceAddress     []uint32
	Depth            uint32
	Type             string
	CallType         string
	From             string
	To               *string
	Value            *uint256.Int
	Gas              uint64
	GasUsed          *uint64
	Input            string
	Output           string
	Error            *string
	MetaNetworkName  string
}

func toUint32s(in []int) []uint32 {
	out := make([]uint32, len(in))
	for i, v := range in {
		//nolint:gosec // trace indices are bounded by block gas
		out[i] = uint32(v)
	}

	return out
}

func addressPtr(a common.Address) *string {
	s := a.Hex()

	return &s
}

// BlockRows converts a stored block into export rows in trace order.
func BlockRows(block *store.BlockRecord, network string, now time.Time) []Row {
	rows := make([]Row, 0, block.TraceCount())

	for _, tx := range block.Transactions {
		addresses := trace.TraceAddresses(tx.Traces)

		for i := range tx.Traces {
			rows = append(rows, newRow(block, tx, i, addresses[i], network, now))
		}
	}

	return rows
}

//nolint:gosec // indices and depths are bounded by block gas
func newRow(block *store.BlockRecord, tx *store.TransactionRecord, index int, address []int, network string, now time.Time) Row {
	ft := &tx.Traces[index]

	row := Row{
		UpdatedDateTime:  now,
		BlockNumber:      block.Number,
		BlockHash:        block.Hash.Hex(),
		TransactionHash:  tx.Hash.Hex(),
		TransactionIndex: uint32(tx.Index),
		TraceIndex:       uint32(index),
		Children:         toUint32s(ft.Children),
		TraceAddress:     toUint32s(address),
		Depth:            uint32(ft.Depth),
		Type:             string(ft.Action.Kind()),
	}

	if ft.Parent != nil {
		parent := uint32(*ft.Parent)
		row.ParentIndex = &parent
	}

	switch action := ft.Action.(type) {
	case trace.Call:
		row.CallType = action.CallType
		row.From = action.From.Hex()
		row.To = addressPtr(action.To)
		row.Value = action.Value
		row.Gas = action.Gas
		row.Input = hexutil.Encode(action.Input)
	case trace.Create:
		row.From = action.From.Hex()
		row.Value = action.Value
		row.Gas = action.Gas
		row.Input = hexutil.Encode(action.Init)
	}

	switch result := ft.Result.(type) {
	case trace.CallResult:
		row.GasUsed = &result.GasUsed
		row.Output = hexutil.Encode(result.Output)
	case trace.CreateResult:
		row.GasUsed = &result.GasUsed
		row.Output = hexutil.Encode(result.Code)
		row.To = addressPtr(result.Address)
	}

	if reason, failed := trace.FailureReason(ft.Result); failed {
		row.Error = &reason
	}

	row.MetaNetworkName = network

	return row
}

// Columns holds export rows in ch-go columnar form.
type Columns struct {
	UpdatedDateTime  proto.ColDateTime
	BlockNumber      proto.ColUInt64
	BlockHash        proto.ColStr
	TransactionHash  proto.ColStr
	TransactionIndex proto.ColUInt32
	TraceIndex       proto.ColUInt32
	ParentIndex      *proto.ColNullable[uint32]
	Children         *proto.ColArr[uint32]
	TraceAddress     *proto.ColArr[uint32]
	Depth            proto.ColUInt32
	Type             proto.ColStr
	CallType         proto.ColStr
	From             proto.ColStr
	To               *proto.ColNullable[string]
	Value            proto.ColUInt256
	Gas              proto.ColUInt64
	GasUsed          *proto.ColNullable[uint64]
	InputData        proto.ColStr
	Output           proto.ColStr
	Error            *proto.ColNullable[string]
	MetaNetworkName  proto.ColStr
}

func NewColumns() *Columns {
	return &Columns{
		ParentIndex:  new(proto.ColUInt32).Nullable(),
		Children:     new(proto.ColUInt32).Array(),
		TraceAddress: new(proto.ColUInt32).Array(),
		To:           new(proto.ColStr).Nullable(),
		GasUsed:      new(proto.ColUInt64).Nullable(),
		Error:        new(proto.ColStr).Nullable(),
	}
}

func nullable[T any](v *T) proto.Nullable[T] {
	if v == nil {
		return proto.Null[T]()
	}

	return proto.NewNullable(*v)
}

// toUInt256 maps the little-endian limbs of v onto ClickHouse UInt256.
func toUInt256(v *uint256.Int) proto.UInt256 {
	if v == nil {
		return proto.UInt256{}
	}

	return proto.UInt256{
		Low:  proto.UInt128{Low: v[0], High: v[1]},
		High: proto.UInt128{Low: v[2], High: v[3]},
	}
}

func (c *Columns) Append(r Row) {
	c.UpdatedDateTime.Append(r.UpdatedDateTime)
	c.BlockNumber.Append(r.BlockNumber)
	c.BlockHash.Append(r.BlockHash)
	c.TransactionHash.Append(r.TransactionHash)
	c.TransactionIndex.Append(r.TransactionIndex)
	c.TraceIndex.Append(r.TraceIndex)
	c.ParentIndex.Append(nullable(r.ParentIndex))
	c.Children.Append(r.Children)
	c.TraceAddress.Append(r.TraceAddress)
	c.Depth.Append(r.Depth)
	c.Type.Append(r.Type)
	c.CallType.Append(r.CallType)
	c.From.Append(r.From)
	c.To.Append(nullable(r.To))
	c.Value.Append(toUInt256(r.Value))
	c.Gas.Append(r.Gas)
	c.GasUsed.Append(nullable(r.GasUsed))
	c.InputData.Append(r.Input)
	c.Output.Append(r.Output)
	c.Error.Append(nullable(r.Error))
	c.MetaNetworkName.Append(r.MetaNetworkName)
}

func (c *Columns) Reset() {
	c.UpdatedDateTime.Reset()
	c.BlockNumber.Reset()
	c.BlockHash.Reset()
	c.TransactionHash.Reset()
	c.TransactionIndex.Reset()
	c.TraceIndex.Reset()
	c.ParentIndex.Reset()
	c.Children.Reset()
	c.TraceAddress.Reset()
	c.Depth.Reset()
	c.Type.Reset()
	c.CallType.Reset()
	c.From.Reset()
	c.To.Reset()
	c.Value.Reset()
	c.Gas.Reset()
	c.GasUsed.Reset()
	c.InputData.Reset()
	c.Output.Reset()
	c.Error.Reset()
	c.MetaNetworkName.Reset()
}

func (c *Columns) Input() proto.Input {
	return proto.Input{
		{Name: "updated_date_time", Data: &c.UpdatedDateTime},
		{Name: "block_number", Data: &c.BlockNumber},
		{Name: "block_hash", Data: &c.BlockHash},
		{Name: "transaction_hash", Data: &c.TransactionHash},
		{Name: "transaction_index", Data: &c.TransactionIndex},
		{Name: "trace_index", Data: &c.TraceIndex},
		{Name: "parent_index", Data: c.ParentIndex},
		{Name: "children", Data: c.Children},
		{Name: "trace_address", Data: c.TraceAddress},
		{Name: "depth", Data: &c.Depth},
		{Name: "type", Data: &c.Type},
		{Name: "call_type", Data: &c.CallType},
		{Name: "from_address", Data: &c.From},
		{Name: "to_address", Data: c.To},
		{Name: "value", Data: &c.Value},
		{Name: "gas", Data: &c.Gas},
		{Name: "gas_used", Data: c.GasUsed},
		{Name: "input", Data: &c.InputData},
		{Name: "output", Data: &c.Output},
		{Name: "error", Data: c.Error},
		{Name: "meta_network_name", Data: &c.MetaNetworkName},
	}
}

func (c *Columns) Rows() int {
	return c.BlockNumber.Rows()
}

// CreateTableQuery returns the DDL matching Columns.
func CreateTableQuery(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	updated_date_time DateTime,
	block_number UInt64,
	block_hash String,
	transaction_hash String,
	transaction_index UInt32,
	trace_index UInt32,
	parent_index Nullable(UInt32),
	children Array(UInt32),
	trace_address Array(UInt32),
	depth UInt32,
	type String,
	call_type String,
	from_address String,
	to_address Nullable(String),
	value UInt256,
	gas UInt64,
	gas_used Nullable(UInt64),
	input String,
	output String,
	error Nullable(String),
	meta_network_name String
) ENGINE = ReplacingMergeTree(updated_date_time)
ORDER BY (meta_network_name, block_number, transaction_index, trace_index)`, table)
}
