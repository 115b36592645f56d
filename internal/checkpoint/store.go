// Package checkpoint persists conversation state snapshots between steps.
// Durable implementations make the suspend/resume contract survive process
// restarts; the store is the only shared resource in the system and must
// serialize concurrent writers on the same thread id.
package checkpoint

import (
	"context"
	"errors"

	"github.com/firmlens/orchestrator/internal/state"
)

// ErrNotFound is returned by Load when no checkpoint exists for a thread.
var ErrNotFound = errors.New("checkpoint not found")

// ErrLeaseHeld is returned by Acquire when another writer holds the thread.
var ErrLeaseHeld = errors.New("thread lease held by another writer")

// Store is the durable keyed-by-thread persistence contract. Save must
// provide read-your-writes consistency for the thread that just wrote.
type Store interface {
	Load(ctx context.Context, threadID string) (*state.ConversationState, error)
	Save(ctx context.Context, threadID string, st *state.ConversationState) error

	// Acquire takes the per-thread writer lease, serializing races between
	// concurrent start/resume calls on the same thread. The returned
	// release function must be called when the run suspends or terminates.
	Acquire(ctx context.Context, threadID string) (release func(), err error)
}
