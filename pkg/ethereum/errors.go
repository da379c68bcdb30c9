package ethereum

import "errors"

// Sentinel errors for execution pool operations.
var (
	// ErrNoHealthyNode indicates no healthy execution node is available.
	ErrNoHealthyNode = errors.New("no healthy execution node available")

	// ErrNoNodesConfigured indicates the pool was created without execution nodes.
	ErrNoNodesConfigured = errors.New("no execution nodes configured")

	// ErrUnsupportedChainID indicates an unsupported chain ID was provided.
	ErrUnsupportedChainID = errors.New("unsupported chain ID")
)
