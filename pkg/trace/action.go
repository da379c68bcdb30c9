package trace

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Kind identifies the shape of an action.
type Kind string

const (
	KindCall   Kind = "call"
	KindCreate Kind = "create"
)

// Action is the operation a trace records. Implementations are Call and Create.
type Action interface {
	Kind() Kind
	isAction()
}

// Result is the outcome of an action. Implementations are CallResult,
// CreateResult, FailedCall and FailedCreate.
type Result interface {
	Failed() bool
	isResult()
}

// Call is a message call into an account.
type Call struct {
	// CallType is the opcode flavour reported by the client (call, staticcall,
	// delegatecall, callcode, selfdestruct). Empty when unknown.
	CallType string
	From     common.Address
	To       common.Address
	Value    *uint256.Int
	Gas      uint64
	Input    []byte
}

// Create is a contract creation.
type Create struct {
	From  common.Address
	Value *uint256.Int
	Gas   uint64
	Init  []byte
}

func (Call) Kind() Kind   { return KindCall }
func (Create) Kind() Kind { return KindCreate }
func (Call) isAction()    {}
func (Create) isAction()  {}

// CallResult is the result of a successful call.
type CallResult struct {
	GasUsed uint64
	Output  []byte
}

// CreateResult is the result of a successful contract creation.
type CreateResult struct {
	GasUsed uint64
	Code    []byte
	Address common.Address
}

// FailedCall marks a call that did not complete. Error holds the reason
// reported by the execution client, if any.
type FailedCall struct {
	Error string
}

// FailedCreate marks a contract creation that did not complete.
type FailedCreate struct {
	Error string
}

func (CallResult) Failed() bool   { return false }
func (CreateResult) Failed() bool { return false }
func (FailedCall) Failed() bool   { return true }
func (FailedCreate) Failed() bool { return true }
func (CallResult) isResult()      {}
func (CreateResult) isResult()    {}
func (FailedCall) isResult()      {}
func (FailedCreate) isResult()    {}

// FailureReason returns the reason carried by a failure marker and whether r
// is a failure at all.
func FailureReason(r Result) (string, bool) {
	switch v := r.(type) {
	case FailedCall:
		return v.Error, true
	case FailedCreate:
		return v.Error, true
	default:
		return "", false
	}
}
