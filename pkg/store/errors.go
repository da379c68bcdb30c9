package store

import "errors"

var (
	// ErrNotFound is returned when a block or transaction is not stored.
	ErrNotFound = errors.New("not found")

	// ErrUnknownType is returned for an unsupported store type.
	ErrUnknownType = errors.New("unknown store type")

	// ErrMismatchedBlock is returned when the traces do not line up with the block's transactions.
	ErrMismatchedBlock = errors.New("traces do not match block transactions")
)
