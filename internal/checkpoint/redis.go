package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/firmlens/orchestrator/internal/metrics"
	"github.com/firmlens/orchestrator/internal/state"
)

const (
	stateKeyPrefix = "thread:state:"
	leaseKeyPrefix = "thread:lease:"

	leaseTTL     = 30 * time.Second
	leaseRetry   = 50 * time.Millisecond
	leaseAcquire = 5 * time.Second
)

// releaseScript deletes the lease only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0
`)

// RedisStore persists checkpoints in Redis. Redis's single-threaded
// command execution plus the per-thread lease give the at-most-one-writer
// guarantee; reads after a completed SET observe the written value.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection. A zero ttl
// keeps checkpoints forever (retention is an external policy).
func NewRedisStore(addr, password string, db int, ttl time.Duration, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl, logger: logger}, nil
}

// NewRedisStoreFromClient wraps an existing client (used by tests).
func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, logger: logger}
}

func (r *RedisStore) Load(ctx context.Context, threadID string) (*state.ConversationState, error) {
	raw, err := r.client.Get(ctx, stateKeyPrefix+threadID).Bytes()
	if err == redis.Nil {
		metrics.CheckpointOps.WithLabelValues("load", "miss").Inc()
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.CheckpointOps.WithLabelValues("load", "error").Inc()
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	var st state.ConversationState
	if err := json.Unmarshal(raw, &st); err != nil {
		metrics.CheckpointOps.WithLabelValues("load", "error").Inc()
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	metrics.CheckpointOps.WithLabelValues("load", "ok").Inc()
	return &st, nil
}

func (r *RedisStore) Save(ctx context.Context, threadID string, st *state.ConversationState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := r.client.Set(ctx, stateKeyPrefix+threadID, raw, r.ttl).Err(); err != nil {
		metrics.CheckpointOps.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("save checkpoint: %w", err)
	}
	metrics.CheckpointOps.WithLabelValues("save", "ok").Inc()
	return nil
}

// Acquire takes the per-thread writer lease with SET NX. It retries for a
// bounded window so a racing resume fails fast instead of queueing forever.
func (r *RedisStore) Acquire(ctx context.Context, threadID string) (func(), error) {
	key := leaseKeyPrefix + threadID
	token := uuid.New().String()
	deadline := time.Now().Add(leaseAcquire)

	for {
		ok, err := r.client.SetNX(ctx, key, token, leaseTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lease: %w", err)
		}
		if ok {
			release := func() {
				rctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := releaseScript.Run(rctx, r.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
					r.logger.Warn("Failed to release thread lease",
						zap.String("thread_id", threadID), zap.Error(err))
				}
			}
			return release, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLeaseHeld
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(leaseRetry):
		}
	}
}

// Ping verifies the Redis connection is alive.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (r *RedisStore) Close() error { return r.client.Close() }
