// Package trace holds the nested execution trace tree produced while executing
// transactions and the flatten engine that turns each tree into an indexable
// array of FlatTrace records.
package trace

// Trace is one node of the nested trace tree produced for a transaction.
// Subs are the child traces in execution order.
type Trace struct {
	Depth  int
	Action Action
	Result Result
	Subs   []*Trace
}

// Size returns the number of nodes in the tree rooted at t.
func (t *Trace) Size() int {
	if t == nil {
		return 0
	}

	n := 1
	for _, sub := range t.Subs {
		n += sub.Size()
	}

	return n
}
