package server

import "errors"

var (
	// ErrLeaderElectionRequiresRedis is returned when leader election is enabled
	// without a shared store to hold the lock and cursor.
	ErrLeaderElectionRequiresRedis = errors.New("leader election requires the redis store")

	// ErrInvalidAccount is returned for account entries that are not hex addresses.
	ErrInvalidAccount = errors.New("invalid account address")
)
