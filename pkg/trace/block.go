package trace

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// BlockTraces holds the flattened traces of every transaction in a block, in
// block transaction order. Each transaction has its own zero-based array.
type BlockTraces struct {
	transactions []*TransactionTraces
}

// NewBlockTraces flattens each transaction root sequentially.
func NewBlockTraces(roots []*Trace) *BlockTraces {
	txs := make([]*TransactionTraces, len(roots))
	for i, root := range roots {
		txs[i] = NewTransactionTraces(root)
	}

	return &BlockTraces{transactions: txs}
}

// Transactions returns the per-transaction traces in block order. Callers
// must treat the slice as read-only.
func (b *BlockTraces) Transactions() []*TransactionTraces {
	return b.transactions
}

// Len returns the number of transactions.
func (b *BlockTraces) Len() int {
	return len(b.transactions)
}

// Flattener flattens the transactions of a block on a bounded number of
// goroutines.
type Flattener struct {
	workers int
}

// NewFlattener returns a Flattener running at most workers goroutines.
// A non-positive value uses GOMAXPROCS.
func NewFlattener(workers int) *Flattener {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &Flattener{workers: workers}
}

// Workers returns the goroutine limit.
func (f *Flattener) Workers() int {
	return f.workers
}

// Flatten flattens every root independently. The output preserves the order
// of roots regardless of completion order.
func (f *Flattener) Flatten(roots []*Trace) *BlockTraces {
	if f.workers == 1 || len(roots) < 2 {
		return NewBlockTraces(roots)
	}

	txs := make([]*TransactionTraces, len(roots))

	g := new(errgroup.Group)
	g.SetLimit(f.workers)

	for i, root := range roots {
		g.Go(func() error {
			txs[i] = NewTransactionTraces(root)

			return nil
		})
	}

	// Flattening never fails.
	_ = g.Wait()

	return &BlockTraces{transactions: txs}
}
