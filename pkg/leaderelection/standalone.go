package leaderelection

import (
	"context"
	"sync"
)

var _ Elector = (*Standalone)(nil)

// Standalone is the elector used when leader election is disabled. It holds
// leadership from Start until Stop.
type Standalone struct {
	nodeID string

	mu        sync.Mutex
	leader    bool
	callbacks []LeadershipCallback
}

func NewStandalone(nodeID string) *Standalone {
	return &Standalone{nodeID: nodeID}
}

func (s *Standalone) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.leader {
		s.mu.Unlock()

		return nil
	}

	s.leader = true
	callbacks := append([]LeadershipCallback(nil), s.callbacks...)
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb(ctx, true)
	}

	return nil
}

func (s *Standalone) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.leader {
		s.mu.Unlock()

		return nil
	}

	s.leader = false
	callbacks := append([]LeadershipCallback(nil), s.callbacks...)
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb(ctx, false)
	}

	return nil
}

func (s *Standalone) IsLeader() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.leader
}

func (s *Standalone) OnLeadershipChange(callback LeadershipCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callbacks = append(s.callbacks, callback)
}

func (s *Standalone) LeaderID(_ context.Context) (string, error) {
	if !s.IsLeader() {
		return "", ErrNoLeader
	}

	return s.nodeID, nil
}
