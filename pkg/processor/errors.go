package processor

import "errors"

var (
	// ErrBlockNotFound indicates the execution node does not know the block.
	ErrBlockNotFound = errors.New("block not found")

	// ErrNotStarted is returned by operations that need the resolved network.
	ErrNotStarted = errors.New("processor not started")
)
