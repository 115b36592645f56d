// Package health runs periodic dependency checks and serves a readiness
// endpoint summarizing them.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status of one dependency.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// CheckResult is the outcome of one dependency check.
type CheckResult struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
	Latency   string    `json:"latency"`
}

// Checker probes one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to the Checker interface.
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) error
}

func (c CheckFunc) Name() string                    { return c.CheckName }
func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

// Manager runs the registered checkers on an interval and caches results.
type Manager struct {
	logger   *zap.Logger
	interval time.Duration
	timeout  time.Duration

	mu       sync.RWMutex
	checkers []Checker
	results  map[string]CheckResult

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewManager creates a manager checking every interval (default 15s).
func NewManager(interval time.Duration, logger *zap.Logger) *Manager {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Manager{
		logger:   logger,
		interval: interval,
		timeout:  5 * time.Second,
		results:  make(map[string]CheckResult),
		stopCh:   make(chan struct{}),
	}
}

// Register adds a checker. Register before Start.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
	m.results[c.Name()] = CheckResult{Name: c.Name(), Status: StatusUnknown}
}

// Start runs an immediate round of checks and then checks periodically
// until Stop is called.
func (m *Manager) Start() {
	m.runChecks()
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.runChecks()
			}
		}
	}()
}

// Stop ends the periodic checks.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Manager) runChecks() {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	for _, c := range checkers {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		started := time.Now()
		err := c.Check(ctx)
		cancel()

		result := CheckResult{
			Name:      c.Name(),
			Status:    StatusHealthy,
			CheckedAt: time.Now().UTC(),
			Latency:   time.Since(started).String(),
		}
		if err != nil {
			result.Status = StatusUnhealthy
			result.Error = err.Error()
			m.logger.Warn("Dependency check failed",
				zap.String("dependency", c.Name()),
				zap.Error(err),
			)
		}

		m.mu.Lock()
		m.results[c.Name()] = result
		m.mu.Unlock()
	}
}

// Results returns the latest result per dependency.
func (m *Manager) Results() []CheckResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]CheckResult, 0, len(m.results))
	for _, r := range m.results {
		out = append(out, r)
	}
	return out
}

// Ready reports whether every dependency is healthy.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.results {
		if r.Status != StatusHealthy {
			return false
		}
	}
	return true
}

// RegisterRoutes registers the readiness endpoint on the mux.
// GET /readyz returns 200 with per-dependency detail, or 503 when any
// dependency is down.
func (m *Manager) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		ready := m.Ready()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"ready":        ready,
			"dependencies": m.Results(),
		})
	})
}
