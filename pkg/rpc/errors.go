package rpc

import "errors"

var (
	// ErrInvalidListenAddress indicates the interface or port cannot be listened on.
	ErrInvalidListenAddress = errors.New("invalid JSON-RPC listen host/port")

	// ErrUnknownAPI indicates an API name that is not served.
	ErrUnknownAPI = errors.New("invalid API name to be enabled")

	// ErrMissingDependency indicates an enabled API without the view it serves.
	ErrMissingDependency = errors.New("missing dependency for API")

	// ErrListen indicates the listener could not be bound.
	ErrListen = errors.New("failed to start JSON-RPC server")
)
