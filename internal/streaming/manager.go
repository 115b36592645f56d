// Package streaming provides in-memory pub/sub of run events for the SSE
// and WebSocket endpoints, with a per-thread ring buffer for replay.
package streaming

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/firmlens/orchestrator/internal/metrics"
)

// Event types emitted by the engine.
const (
	EventAgentStarted    = "AGENT_STARTED"
	EventAgentCompleted  = "AGENT_COMPLETED"
	EventAgentFailed     = "AGENT_FAILED"
	EventWaitingForInput = "WAITING_FOR_INPUT"
	EventRunCompleted    = "RUN_COMPLETED"
)

// Event is a minimal streaming event consumed by SSE and WebSocket clients.
type Event struct {
	ThreadID  string    `json:"thread_id"`
	RunID     string    `json:"run_id,omitempty"`
	Type      string    `json:"type"`
	Agent     string    `json:"agent,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Seq       uint64    `json:"seq"`
}

// Marshal returns JSON for event payloads in SSE frames or logs.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Manager provides per-thread pub/sub with bounded replay history.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	history     map[string]*ring
	capacity    int
}

// NewManager creates a manager whose replay rings hold capacity events.
func NewManager(capacity int) *Manager {
	if capacity <= 0 {
		capacity = 256
	}
	return &Manager{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
	}
}

// Subscribe adds a subscriber channel for a thread; the caller must drain
// the channel and call Unsubscribe when done.
func (m *Manager) Subscribe(threadID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[threadID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[threadID] = subs
	}
	subs[ch] = struct{}{}
	metrics.StreamSubscribers.Inc()
	return ch
}

// Unsubscribe removes the subscriber channel and closes it.
func (m *Manager) Unsubscribe(threadID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[threadID]; ok {
		if _, member := subs[ch]; member {
			delete(subs, ch)
			close(ch)
			metrics.StreamSubscribers.Dec()
		}
		if len(subs) == 0 {
			delete(m.subscribers, threadID)
		}
	}
}

// Publish sends an event to all subscribers of the thread (non-blocking;
// slow subscribers drop events rather than stall the engine).
func (m *Manager) Publish(threadID string, evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rg := m.history[threadID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[threadID] = rg
	}
	evt.Seq = rg.nextSeq
	rg.nextSeq++
	rg.push(evt)

	// Sends happen under the lock: Unsubscribe closes channels under the
	// same lock, so a send can never hit a closed channel. Sends are
	// non-blocking, so holding the lock here is cheap.
	for ch := range m.subscribers[threadID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

// ReplaySince returns events with Seq > since, best effort within the
// ring capacity.
func (m *Manager) ReplaySince(threadID string, since uint64) []Event {
	m.mu.RLock()
	rg := m.history[threadID]
	m.mu.RUnlock()
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// ring is a fixed-capacity ring buffer of events.
type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity)} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
