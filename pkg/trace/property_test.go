package trace

import (
	"testing"

	"github.com/holiman/uint256"
	"pgregory.net/rapid"
)

// genTree draws a random tree of at most budget nodes. Every node carries its
// pre-order ordinal in Call.Gas so the output order can be checked against
// the source order.
func genTree(t *rapid.T, depth int, budget *int, ordinal *uint64) *Trace {
	node := &Trace{
		Depth:  depth,
		Action: Call{Gas: *ordinal, Value: uint256.NewInt(0)},
		Result: CallResult{GasUsed: uint64(depth)},
	}

	*ordinal++
	*budget--

	width := rapid.IntRange(0, 4).Draw(t, "width")
	for i := 0; i < width && *budget > 0; i++ {
		node.Subs = append(node.Subs, genTree(t, depth+1, budget, ordinal))
	}

	return node
}

func drawTree(t *rapid.T) (*Trace, int) {
	budget := rapid.IntRange(1, 200).Draw(t, "budget")

	var ordinal uint64

	root := genTree(t, 0, &budget, &ordinal)

	return root, int(ordinal)
}

func TestFlatten_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		root, nodes := drawTree(t)
		traces := NewTransactionTraces(root).Traces()

		// Size law: every source node is emitted exactly once.
		if len(traces) != nodes {
			t.Fatalf("expected %d traces, got %d", nodes, len(traces))
		}

		if err := Verify(traces); err != nil {
			t.Fatalf("verify failed: %v", err)
		}

		roots := 0

		for p, tr := range traces {
			// Pre-order: position equals the source pre-order ordinal.
			call, ok := tr.Action.(Call)
			if !ok || call.Gas != uint64(p) {
				t.Fatalf("position %d holds node %d", p, call.Gas)
			}

			if tr.Parent == nil {
				roots++

				continue
			}

			q := *tr.Parent
			if q >= p {
				t.Fatalf("parent %d does not precede %d", q, p)
			}

			if tr.Depth != traces[q].Depth+1 {
				t.Fatalf("depth of %d not copied through", p)
			}

			found := false
			for _, c := range traces[q].Children {
				if c == p {
					found = true
				}
			}

			if !found {
				t.Fatalf("parent %d does not list %d", q, p)
			}
		}

		if roots != 1 || traces[0].Parent != nil {
			t.Fatalf("expected a single root at 0, got %d roots", roots)
		}

		sizes := SubtreeSizes(traces)
		if sizes[0] != nodes {
			t.Fatalf("root subtree spans %d of %d", sizes[0], nodes)
		}
	})
}

func TestFlattener_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		txCount := rapid.IntRange(0, 16).Draw(t, "txs")
		workers := rapid.IntRange(1, 8).Draw(t, "workers")

		roots := make([]*Trace, txCount)
		sizes := make([]int, txCount)

		for i := range roots {
			roots[i], sizes[i] = drawTree(t)
		}

		block := NewFlattener(workers).Flatten(roots)
		if block.Len() != txCount {
			t.Fatalf("expected %d transactions, got %d", txCount, block.Len())
		}

		for i, tx := range block.Transactions() {
			if tx.Len() != sizes[i] {
				t.Fatalf("transaction %d: expected %d traces, got %d", i, sizes[i], tx.Len())
			}

			if err := Verify(tx.Traces()); err != nil {
				t.Fatalf("transaction %d: %v", i, err)
			}
		}
	})
}
