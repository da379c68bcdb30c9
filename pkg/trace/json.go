package trace

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// The JSON shapes below follow the parity trace_* API.

type callJSON struct {
	CallType string         `json:"callType,omitempty"`
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Value    *hexutil.Big   `json:"value"`
	Gas      hexutil.Uint64 `json:"gas"`
	Input    hexutil.Bytes  `json:"input"`
}

type createJSON struct {
	From  common.Address `json:"from"`
	Value *hexutil.Big   `json:"value"`
	Gas   hexutil.Uint64 `json:"gas"`
	Init  hexutil.Bytes  `json:"init"`
}

type callResultJSON struct {
	GasUsed hexutil.Uint64 `json:"gasUsed"`
	Output  hexutil.Bytes  `json:"output"`
}

type createResultJSON struct {
	GasUsed hexutil.Uint64 `json:"gasUsed"`
	Code    hexutil.Bytes  `json:"code"`
	Address common.Address `json:"address"`
}

func toHexBig(v *uint256.Int) *hexutil.Big {
	if v == nil {
		return (*hexutil.Big)(new(big.Int))
	}

	return (*hexutil.Big)(v.ToBig())
}

func fromHexBig(v *hexutil.Big) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}

	out, overflow := uint256.FromBig((*big.Int)(v))
	if overflow {
		return nil, fmt.Errorf("value %s overflows 256 bits", v.String())
	}

	return out, nil
}

// MarshalJSON implements json.Marshaler.
func (c Call) MarshalJSON() ([]byte, error) {
	return json.Marshal(callJSON{
		CallType: c.CallType,
		From:     c.From,
		To:       c.To,
		Value:    toHexBig(c.Value),
		Gas:      hexutil.Uint64(c.Gas),
		Input:    c.Input,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Call) UnmarshalJSON(input []byte) error {
	var dec callJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}

	value, err := fromHexBig(dec.Value)
	if err != nil {
		return err
	}

	*c = Call{
		CallType: dec.CallType,
		From:     dec.From,
		To:       dec.To,
		Value:    value,
		Gas:      uint64(dec.Gas),
		Input:    dec.Input,
	}

	return nil
}

// MarshalJSON implements json.Marshaler.
func (c Create) MarshalJSON() ([]byte, error) {
	return json.Marshal(createJSON{
		From:  c.From,
		Value: toHexBig(c.Value),
		Gas:   hexutil.Uint64(c.Gas),
		Init:  c.Init,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Create) UnmarshalJSON(input []byte) error {
	var dec createJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}

	value, err := fromHexBig(dec.Value)
	if err != nil {
		return err
	}

	*c = Create{
		From:  dec.From,
		Value: value,
		Gas:   uint64(dec.Gas),
		Init:  dec.Init,
	}

	return nil
}

// MarshalJSON implements json.Marshaler.
func (r CallResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(callResultJSON{GasUsed: hexutil.Uint64(r.GasUsed), Output: r.Output})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *CallResult) UnmarshalJSON(input []byte) error {
	var dec callResultJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}

	*r = CallResult{GasUsed: uint64(dec.GasUsed), Output: dec.Output}

	return nil
}

// MarshalJSON implements json.Marshaler.
func (r CreateResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(createResultJSON{GasUsed: hexutil.Uint64(r.GasUsed), Code: r.Code, Address: r.Address})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *CreateResult) UnmarshalJSON(input []byte) error {
	var dec createResultJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}

	*r = CreateResult{GasUsed: uint64(dec.GasUsed), Code: dec.Code, Address: dec.Address}

	return nil
}

// ResultJSON returns the value to encode as the "result" field of a trace and
// the failure reason. Failure markers encode as null.
func ResultJSON(r Result) (any, string) {
	if reason, failed := FailureReason(r); failed {
		return nil, reason
	}

	return r, ""
}

type flatTraceJSON struct {
	Parent   *int            `json:"parent"`
	Children []int           `json:"children"`
	Depth    int             `json:"depth"`
	Type     Kind            `json:"type"`
	Action   json.RawMessage `json:"action"`
	Result   json.RawMessage `json:"result"`
	Error    string          `json:"error,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (f FlatTrace) MarshalJSON() ([]byte, error) {
	if f.Action == nil {
		return nil, fmt.Errorf("trace has no action")
	}

	action, err := json.Marshal(f.Action)
	if err != nil {
		return nil, err
	}

	res, reason := ResultJSON(f.Result)

	result, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}

	children := f.Children
	if children == nil {
		children = []int{}
	}

	return json.Marshal(flatTraceJSON{
		Parent:   f.Parent,
		Children: children,
		Depth:    f.Depth,
		Type:     f.Action.Kind(),
		Action:   action,
		Result:   result,
		Error:    reason,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlatTrace) UnmarshalJSON(input []byte) error {
	var dec flatTraceJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}

	failed := len(dec.Result) == 0 || string(dec.Result) == "null"

	out := FlatTrace{
		Parent:   dec.Parent,
		Children: dec.Children,
		Depth:    dec.Depth,
	}

	switch dec.Type {
	case KindCall:
		var action Call
		if err := json.Unmarshal(dec.Action, &action); err != nil {
			return fmt.Errorf("invalid call action: %w", err)
		}

		out.Action = action

		if failed {
			out.Result = FailedCall{Error: dec.Error}
		} else {
			var result CallResult
			if err := json.Unmarshal(dec.Result, &result); err != nil {
				return fmt.Errorf("invalid call result: %w", err)
			}

			out.Result = result
		}
	case KindCreate:
		var action Create
		if err := json.Unmarshal(dec.Action, &action); err != nil {
			return fmt.Errorf("invalid create action: %w", err)
		}

		out.Action = action

		if failed {
			out.Result = FailedCreate{Error: dec.Error}
		} else {
			var result CreateResult
			if err := json.Unmarshal(dec.Result, &result); err != nil {
				return fmt.Errorf("invalid create result: %w", err)
			}

			out.Result = result
		}
	default:
		return fmt.Errorf("unknown trace type %q", dec.Type)
	}

	if out.Children == nil {
		out.Children = []int{}
	}

	*f = out

	return nil
}
