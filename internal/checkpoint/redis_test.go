package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/firmlens/orchestrator/internal/state"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStoreFromClient(client, 0, zap.NewNop()), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	st := state.New("t-1")
	st.ResetForQuery("tell me about Tesla", "run-1")
	st.DetectedCompany = "Tesla"
	st.Messages = append(st.Messages, state.Message{Role: "user", Content: "Tell me about Tesla"})
	st.ResearchFindings = &state.ResearchFindings{Company: "Tesla", Overview: "EV maker"}
	st.ConfidenceScore = 7

	require.NoError(t, store.Save(ctx, "t-1", st))

	// Read-your-writes: an immediate load returns the written snapshot.
	got, err := store.Load(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "Tesla", got.DetectedCompany)
	assert.Equal(t, 7, got.ConfidenceScore)
	require.NotNil(t, got.ResearchFindings)
	assert.Equal(t, "EV maker", got.ResearchFindings.Overview)
	assert.Len(t, got.Messages, 1)
}

func TestRedisStoreLoadMissingThread(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreSurvivesNewStoreInstance(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	first := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0, zap.NewNop())
	st := state.New("t-1")
	st.Phase = state.PhaseSuspended
	st.ClarificationQuestion = "Which company?"
	require.NoError(t, first.Save(ctx, "t-1", st))

	// A fresh store against the same backend sees the suspended run, the
	// way a restarted process would.
	second := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0, zap.NewNop())
	got, err := second.Load(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, state.PhaseSuspended, got.Phase)
	assert.Equal(t, "Which company?", got.ClarificationQuestion)
}

func TestRedisStoreLeaseSerializesWriters(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	release, err := store.Acquire(ctx, "t-1")
	require.NoError(t, err)

	// A second writer cannot take the lease while it is held.
	shortCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = store.Acquire(shortCtx, "t-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLeaseHeld) || errors.Is(err, context.DeadlineExceeded))

	// Leases on other threads are independent.
	otherRelease, err := store.Acquire(ctx, "t-2")
	require.NoError(t, err)
	otherRelease()

	release()
	release2, err := store.Acquire(ctx, "t-1")
	require.NoError(t, err)
	release2()
}
