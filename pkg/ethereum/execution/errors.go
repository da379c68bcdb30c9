package execution

import "errors"

var (
	// ErrNotStarted is returned by RPC calls made before Start.
	ErrNotStarted = errors.New("execution node not started")

	// ErrTraceMismatch indicates the tracer output does not line up with the block body.
	ErrTraceMismatch = errors.New("trace does not match block transactions")

	// ErrEmptyTrace indicates the tracer returned no call frame for a transaction.
	ErrEmptyTrace = errors.New("tracer returned an empty result")

	// ErrMetadataNotReady indicates the client version or chain id is not yet known.
	ErrMetadataNotReady = errors.New("node metadata is not available")
)
