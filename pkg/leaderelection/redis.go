package leaderelection

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/trace-processor/pkg/common"
)

var _ Elector = (*RedisElector)(nil)

// Ownership is checked inside the scripts so a replica never extends or
// deletes a lock another replica acquired after ours expired.
var (
	renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)
)

// RedisElector holds leadership through a single Redis key with a TTL.
type RedisElector struct {
	client  *redis.Client
	log     logrus.FieldLogger
	config  *Config
	nodeID  string
	key     string
	network string

	mu          sync.RWMutex
	isLeader    bool
	leaderSince time.Time
	stopped     bool

	callbacksMu sync.RWMutex
	callbacks   []LeadershipCallback

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewNodeID returns config.NodeID, or a random ID when unset.
func NewNodeID(config *Config) (string, error) {
	if config.NodeID != "" {
		return config.NodeID, nil
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate node ID: %w", err)
	}

	return hex.EncodeToString(b), nil
}

func NewRedisElector(log logrus.FieldLogger, client *redis.Client, key, network string, config *Config) (*RedisElector, error) {
	nodeID, err := NewNodeID(config)
	if err != nil {
		return nil, err
	}

	return &RedisElector{
		client:   client,
		log:      log.WithFields(logrus.Fields{"component": "leader-election", "node_id": nodeID}),
		config:   config,
		nodeID:   nodeID,
		key:      key,
		network:  network,
		stopChan: make(chan struct{}),
	}, nil
}

func (e *RedisElector) NodeID() string {
	return e.nodeID
}

func (e *RedisElector) Start(ctx context.Context) error {
	e.log.WithField("key", e.key).Info("Starting leader election")

	common.LeaderElectionStatus.WithLabelValues(e.network, e.nodeID).Set(0)

	e.wg.Add(1)

	go e.run(ctx)

	return nil
}

// Stop ends the election loop and releases the lock if this node holds it.
func (e *RedisElector) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()

		return nil
	}

	e.stopped = true
	e.mu.Unlock()

	close(e.stopChan)
	e.wg.Wait()

	if !e.IsLeader() {
		return nil
	}

	e.setFollower()

	if err := e.release(ctx); err != nil {
		common.LeaderElectionErrors.WithLabelValues(e.network, e.nodeID, "release").Inc()

		return err
	}

	e.notify(ctx, false)

	return nil
}

func (e *RedisElector) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.isLeader
}

func (e *RedisElector) LeaderID(ctx context.Context) (string, error) {
	val, err := e.client.Get(ctx, e.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoLeader
	}

	if err != nil {
		return "", fmt.Errorf("failed to get leader ID: %w", err)
	}

	return val, nil
}

func (e *RedisElector) OnLeadershipChange(callback LeadershipCallback) {
	e.callbacksMu.Lock()
	defer e.callbacksMu.Unlock()

	e.callbacks = append(e.callbacks, callback)
}

func (e *RedisElector) notify(ctx context.Context, isLeader bool) {
	e.callbacksMu.RLock()
	callbacks := append([]LeadershipCallback(nil), e.callbacks...)
	e.callbacksMu.RUnlock()

	for _, callback := range callbacks {
		callback(ctx, isLeader)
	}
}

func (e *RedisElector) run(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.RenewalInterval)
	defer ticker.Stop()

	e.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *RedisElector) tick(ctx context.Context) {
	if !e.IsLeader() {
		if e.acquire(ctx) {
			e.log.Info("Gained leadership")
			e.notify(ctx, true)
		}

		return
	}

	if !e.renew(ctx) {
		e.setFollower()
		e.log.Warn("Lost leadership")
		e.notify(ctx, false)
	}
}

func (e *RedisElector) acquire(ctx context.Context) bool {
	ok, err := e.client.SetNX(ctx, e.key, e.nodeID, e.config.TTL).Result()
	if err != nil {
		e.log.WithError(err).Error("Failed to acquire leadership")
		common.LeaderElectionErrors.WithLabelValues(e.network, e.nodeID, "acquire").Inc()

		return false
	}

	if !ok {
		return false
	}

	e.mu.Lock()
	e.isLeader = true
	e.leaderSince = time.Now()
	e.mu.Unlock()

	common.LeaderElectionStatus.WithLabelValues(e.network, e.nodeID).Set(1)
	common.LeaderElectionTransitions.WithLabelValues(e.network, e.nodeID, "gained").Inc()

	return true
}

func (e *RedisElector) renew(ctx context.Context) bool {
	val, err := renewScript.Run(ctx, e.client, []string{e.key}, e.nodeID, e.config.TTL.Milliseconds()).Int64()
	if err != nil {
		e.log.WithError(err).Error("Failed to renew leadership")
		common.LeaderElectionErrors.WithLabelValues(e.network, e.nodeID, "renew").Inc()

		return false
	}

	if val != 1 {
		common.LeaderElectionErrors.WithLabelValues(e.network, e.nodeID, "renew").Inc()

		return false
	}

	return true
}

func (e *RedisElector) release(ctx context.Context) error {
	val, err := releaseScript.Run(ctx, e.client, []string{e.key}, e.nodeID).Int64()
	if err != nil {
		return fmt.Errorf("failed to release leadership: %w", err)
	}

	if val == 0 {
		e.log.Warn("Leader lock was no longer owned by this node")
	} else {
		e.log.Info("Released leadership")
	}

	return nil
}

// setFollower clears leadership and records how long it was held.
func (e *RedisElector) setFollower() {
	e.mu.Lock()
	held := time.Since(e.leaderSince)
	e.isLeader = false
	e.mu.Unlock()

	common.LeaderElectionStatus.WithLabelValues(e.network, e.nodeID).Set(0)
	common.LeaderElectionTransitions.WithLabelValues(e.network, e.nodeID, "lost").Inc()
	common.LeaderElectionDuration.WithLabelValues(e.network, e.nodeID).Observe(held.Seconds())
}
