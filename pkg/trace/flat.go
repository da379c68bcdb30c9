package trace

// FlatTrace is a trace localized in the array of traces produced by a single
// transaction. Parent and Children are positions in that same array.
type FlatTrace struct {
	// Parent is the position of the parent trace, nil for the root.
	Parent *int
	// Children are the positions of the direct child traces in execution order.
	Children []int
	// Depth is the VM call depth.
	Depth  int
	Action Action
	Result Result
}

// IsRoot reports whether the trace has no parent.
func (f *FlatTrace) IsRoot() bool {
	return f.Parent == nil
}

// TransactionTraces holds every flat trace produced by one transaction.
// It is immutable once built and safe to share between readers.
type TransactionTraces struct {
	traces []FlatTrace
}

// NewTransactionTraces flattens the trace tree of one transaction. The root
// is placed at position 0. The tree is consumed: its payloads move into the
// flat records and it must not be used afterwards.
func NewTransactionTraces(root *Trace) *TransactionTraces {
	if root == nil {
		return &TransactionTraces{}
	}

	return &TransactionTraces{traces: flatten(make([]FlatTrace, 0, root.Size()), nil, root)}
}

// Traces returns the flat traces in pre-order. Callers must treat the slice
// as read-only.
func (t *TransactionTraces) Traces() []FlatTrace {
	return t.traces
}

// Len returns the number of traces.
func (t *TransactionTraces) Len() int {
	return len(t.traces)
}

// flatten appends node and its subtree to out in pre-order and returns the
// extended slice. node occupies position len(out); the subtree consumed
// len(result)-len(out) positions. Child positions are known before each
// child is descended into, so no record is revisited once its subtree is done.
func flatten(out []FlatTrace, parent *int, node *Trace) []FlatTrace {
	self := len(out)

	out = append(out, FlatTrace{
		Parent: parent,
		Depth:  node.Depth,
		Action: node.Action,
		Result: node.Result,
	})

	children := make([]int, 0, len(node.Subs))
	for _, sub := range node.Subs {
		children = append(children, len(out))
		out = flatten(out, &self, sub)
	}

	out[self].Children = children
	node.Action, node.Result, node.Subs = nil, nil, nil

	return out
}
