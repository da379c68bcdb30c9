package trace

import "fmt"

// Verify checks that traces is a well-formed pre-order flattening of a
// single-rooted tree. It is meant for arrays read back from untrusted
// sources; arrays built by NewTransactionTraces always pass.
func Verify(traces []FlatTrace) error {
	n := len(traces)
	if n == 0 || traces[0].Parent != nil {
		return ErrNoRoot
	}

	childCount := make([]int, n)

	for p := range traces {
		if p > 0 {
			if traces[p].Parent == nil {
				return fmt.Errorf("%w: position %d", ErrMultipleRoots, p)
			}

			q := *traces[p].Parent
			if q < 0 || q >= p {
				return fmt.Errorf("%w: position %d has parent %d", ErrParentOrder, p, q)
			}

			childCount[q]++
		}

		prev := p
		for _, c := range traces[p].Children {
			if c <= prev || c >= n {
				return fmt.Errorf("%w: position %d lists child %d", ErrChildOrder, p, c)
			}

			if traces[c].Parent == nil || *traces[c].Parent != p {
				return fmt.Errorf("%w: position %d lists child %d", ErrChildParent, p, c)
			}

			prev = c
		}
	}

	for p := range traces {
		if childCount[p] != len(traces[p].Children) {
			return fmt.Errorf("%w: position %d has %d children but lists %d",
				ErrChildParent, p, childCount[p], len(traces[p].Children))
		}
	}

	// Children always follow their parent, so sizes resolve back to front.
	size := make([]int, n)

	for p := n - 1; p >= 0; p-- {
		size[p] = 1
		expected := p + 1

		for _, c := range traces[p].Children {
			if c != expected {
				return fmt.Errorf("%w: child %d of position %d expected at %d", ErrSubtreeLayout, c, p, expected)
			}

			size[p] += size[c]
			expected = c + size[c]
		}
	}

	if size[0] != n {
		return fmt.Errorf("%w: root spans %d of %d positions", ErrSubtreeLayout, size[0], n)
	}

	return nil
}

// SubtreeSizes returns, for each position, the number of traces in the
// subtree rooted there. traces must be well-formed.
func SubtreeSizes(traces []FlatTrace) []int {
	size := make([]int, len(traces))

	for p := len(traces) - 1; p >= 0; p-- {
		size[p] = 1
		for _, c := range traces[p].Children {
			size[p] += size[c]
		}
	}

	return size
}

// TraceAddresses returns the parity style trace address of every position:
// the path of child ordinals from the root, with the root at []. traces must
// be well-formed.
func TraceAddresses(traces []FlatTrace) [][]int {
	addrs := make([][]int, len(traces))

	for p := range traces {
		if addrs[p] == nil {
			addrs[p] = []int{}
		}

		for k, c := range traces[p].Children {
			addr := make([]int, len(addrs[p])+1)
			copy(addr, addrs[p])
			addr[len(addrs[p])] = k
			addrs[c] = addr
		}
	}

	return addrs
}
