package streaming

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	m := NewManager(16)
	ch := m.Subscribe("t-1", 8)
	defer m.Unsubscribe("t-1", ch)

	m.Publish("t-1", Event{ThreadID: "t-1", Type: EventAgentStarted, Agent: "clarity"})
	m.Publish("t-2", Event{ThreadID: "t-2", Type: EventAgentStarted, Agent: "research"})

	ev := <-ch
	assert.Equal(t, EventAgentStarted, ev.Type)
	assert.Equal(t, "clarity", ev.Agent)
	assert.Len(t, ch, 0, "events from other threads must not be delivered")
}

func TestSequenceNumbersArePerThread(t *testing.T) {
	m := NewManager(16)
	for i := 0; i < 3; i++ {
		m.Publish("t-1", Event{ThreadID: "t-1", Type: EventAgentCompleted})
	}
	m.Publish("t-2", Event{ThreadID: "t-2", Type: EventAgentCompleted})

	events := m.ReplaySince("t-1", 0)
	require.Len(t, events, 2, "seq 0 event is excluded by a since of 0")
	assert.Equal(t, uint64(1), events[0].Seq)
	assert.Equal(t, uint64(2), events[1].Seq)
}

func TestReplayBoundedByCapacity(t *testing.T) {
	m := NewManager(4)
	for i := 0; i < 10; i++ {
		m.Publish("t-1", Event{ThreadID: "t-1", Type: EventAgentCompleted})
	}
	events := m.ReplaySince("t-1", 0)
	require.Len(t, events, 4)
	assert.Equal(t, uint64(6), events[0].Seq, "oldest retained event after overwrite")
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	m := NewManager(16)
	ch := m.Subscribe("t-1", 1)
	defer m.Unsubscribe("t-1", ch)

	// Second publish must not block even though the buffer is full.
	m.Publish("t-1", Event{ThreadID: "t-1", Type: EventAgentStarted})
	m.Publish("t-1", Event{ThreadID: "t-1", Type: EventAgentCompleted})

	ev := <-ch
	assert.Equal(t, EventAgentStarted, ev.Type)
	assert.Len(t, ch, 0)
}

// Publishing while subscribers churn on the same thread must never panic:
// a client disconnecting mid-run closes its channel, and a send racing
// that close would kill the run goroutine. Run with -race.
func TestPublishDuringSubscriberChurn(t *testing.T) {
	m := NewManager(16)
	done := make(chan struct{})

	var pubWg sync.WaitGroup
	pubWg.Add(1)
	go func() {
		defer pubWg.Done()
		for {
			select {
			case <-done:
				return
			default:
				m.Publish("t-1", Event{ThreadID: "t-1", Type: EventAgentCompleted})
			}
		}
	}()

	var churnWg sync.WaitGroup
	for i := 0; i < 8; i++ {
		churnWg.Add(1)
		go func() {
			defer churnWg.Done()
			for j := 0; j < 200; j++ {
				ch := m.Subscribe("t-1", 1)
				// Drain at most one event, then disconnect immediately.
				select {
				case <-ch:
				default:
				}
				m.Unsubscribe("t-1", ch)
			}
		}()
	}

	churnWg.Wait()
	close(done)
	pubWg.Wait()
}
