// Package engine is the workflow orchestration core: it drives the
// clarify → research → validate → synthesize pipeline over checkpointed
// conversation state, suspending at the interrupt boundary and recovering
// step failures into a graceful terminal answer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/firmlens/orchestrator/internal/agents"
	"github.com/firmlens/orchestrator/internal/checkpoint"
	"github.com/firmlens/orchestrator/internal/constants"
	"github.com/firmlens/orchestrator/internal/db"
	"github.com/firmlens/orchestrator/internal/metrics"
	"github.com/firmlens/orchestrator/internal/state"
	"github.com/firmlens/orchestrator/internal/streaming"
	"github.com/firmlens/orchestrator/internal/tracing"
)

var (
	// ErrUnknownThread is returned by Resume for a thread with no checkpoint.
	ErrUnknownThread = errors.New("unknown thread")
	// ErrNotSuspended is returned by Resume when the thread is not awaiting input.
	ErrNotSuspended = errors.New("thread is not awaiting input")
)

// Config holds the routing thresholds and budgets. It is immutable after
// engine construction.
type Config struct {
	ConfidenceThreshold      int
	MaxResearchAttempts      int
	MaxClarificationAttempts int
	MaxTransitions           int
}

// DefaultConfig returns the canonical thresholds.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold:      constants.ConfidenceThreshold,
		MaxResearchAttempts:      constants.MaxResearchAttempts,
		MaxClarificationAttempts: constants.MaxClarificationAttempts,
		MaxTransitions:           constants.MaxTransitions,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = d.ConfidenceThreshold
	}
	if c.MaxResearchAttempts <= 0 {
		c.MaxResearchAttempts = d.MaxResearchAttempts
	}
	if c.MaxClarificationAttempts <= 0 {
		c.MaxClarificationAttempts = d.MaxClarificationAttempts
	}
	if c.MaxTransitions <= 0 {
		c.MaxTransitions = d.MaxTransitions
	}
	return c
}

// RunResult is the terminal outcome of one top-level query.
type RunResult struct {
	ThreadID        string `json:"thread_id"`
	RunID           string `json:"run_id"`
	FinalSummary    string `json:"final_summary"`
	DetectedCompany string `json:"detected_company,omitempty"`
	CurrentAgent    string `json:"current_agent"`
}

// Outcome is what a Start or Resume call hands back: either a terminal
// result or an awaiting-input marker with the pending question.
type Outcome struct {
	Awaiting bool       `json:"awaiting"`
	Question string     `json:"question,omitempty"`
	Result   *RunResult `json:"result,omitempty"`
}

// Engine executes runs over a checkpoint store. It holds no per-thread
// mutable state; any number of threads may run concurrently.
type Engine struct {
	registry *agents.Registry
	store    checkpoint.Store
	logger   *zap.Logger

	cfgMu sync.RWMutex
	cfg   Config

	events  *streaming.Manager // optional
	archive *db.Client         // optional
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithEvents publishes run events to the streaming manager.
func WithEvents(m *streaming.Manager) Option {
	return func(e *Engine) { e.events = m }
}

// WithArchive records transitions and terminal results in the run archive.
func WithArchive(c *db.Client) Option {
	return func(e *Engine) { e.archive = c }
}

// New builds an engine. The registry must contain every routable agent;
// a missing one surfaces as a fatal error at the first routing attempt.
func New(registry *agents.Registry, store checkpoint.Store, cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		store:    store,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Config returns the current routing configuration.
func (e *Engine) Config() Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

// UpdateConfig swaps in new routing thresholds. In-flight runs keep the
// configuration they started with; new runs pick up the change.
func (e *Engine) UpdateConfig(cfg Config) {
	cfg = cfg.withDefaults()
	e.cfgMu.Lock()
	e.cfg = cfg
	e.cfgMu.Unlock()
	e.logger.Info("Routing configuration updated",
		zap.Int("confidence_threshold", cfg.ConfidenceThreshold),
		zap.Int("max_research_attempts", cfg.MaxResearchAttempts),
		zap.Int("max_clarification_attempts", cfg.MaxClarificationAttempts),
		zap.Int("max_transitions", cfg.MaxTransitions),
	)
}

// Start begins a new top-level query on the thread, creating the thread
// on first use. Per-query state resets; the detected company and the
// message history carry over from previous queries.
func (e *Engine) Start(ctx context.Context, threadID, query string) (*Outcome, error) {
	if threadID == "" || query == "" {
		return nil, errors.New("thread id and query are required")
	}

	release, err := e.store.Acquire(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("acquire thread %s: %w", threadID, err)
	}
	defer release()

	st, err := e.store.Load(ctx, threadID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		st = state.New(threadID)
	} else if err != nil {
		return nil, err
	}

	if st.Phase == state.PhaseSuspended {
		// The new query abandons the pending clarification; the run it
		// belonged to is no longer suspended.
		metrics.SuspendedRuns.Dec()
		e.logger.Info("Pending clarification abandoned by new query",
			zap.String("thread_id", threadID),
			zap.String("abandoned_run_id", st.RunID),
		)
	}

	runID := uuid.New().String()
	st.ResetForQuery(query, runID)
	st.Messages = append(st.Messages, state.Message{
		Role:      "user",
		Content:   query,
		Timestamp: time.Now().UTC(),
	})
	if err := e.store.Save(ctx, threadID, st); err != nil {
		return nil, err
	}

	metrics.RunsStarted.WithLabelValues("start").Inc()
	e.logger.Info("Run started",
		zap.String("thread_id", threadID),
		zap.String("run_id", runID),
	)

	// A fresh query always enters through clarity.
	return e.run(ctx, st, constants.AgentClarity)
}

// Resume supplies the user's clarification answer to a suspended thread
// and continues the run from the interrupt boundary.
func (e *Engine) Resume(ctx context.Context, threadID, answer string) (*Outcome, error) {
	if threadID == "" {
		return nil, errors.New("thread id is required")
	}

	release, err := e.store.Acquire(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("acquire thread %s: %w", threadID, err)
	}
	defer release()

	st, err := e.store.Load(ctx, threadID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownThread, threadID)
	}
	if err != nil {
		return nil, err
	}
	if st.Phase != state.PhaseSuspended {
		return nil, fmt.Errorf("%w: %s", ErrNotSuspended, threadID)
	}

	// The interrupt step completes here: fold the answer into the query
	// context and transcript, then route back to clarity.
	st.Phase = state.PhaseResumed
	st.Apply(state.Update{
		OriginalQuery:         state.Ptr(st.OriginalQuery + "\n\nClarification: " + answer),
		ClarificationQuestion: state.Ptr(""),
		Messages: []state.Message{{
			Role:      "user",
			Content:   answer,
			Timestamp: time.Now().UTC(),
		}},
	})
	if err := e.store.Save(ctx, threadID, st); err != nil {
		return nil, err
	}

	metrics.RunsStarted.WithLabelValues("resume").Inc()
	metrics.SuspendedRuns.Dec()
	e.logger.Info("Run resumed",
		zap.String("thread_id", threadID),
		zap.String("run_id", st.RunID),
	)

	return e.runFrom(ctx, st, constants.AgentInterrupt)
}

// run executes the loop starting by executing firstAgent.
func (e *Engine) run(ctx context.Context, st *state.ConversationState, firstAgent string) (*Outcome, error) {
	started := time.Now()
	out, err := e.loop(ctx, st, Decision{Next: firstAgent})
	metrics.RunDuration.Observe(time.Since(started).Seconds())
	return out, err
}

// runFrom executes the loop starting by routing after lastAgent.
func (e *Engine) runFrom(ctx context.Context, st *state.ConversationState, lastAgent string) (*Outcome, error) {
	dec, err := Route(lastAgent, st, e.Config())
	if err != nil {
		return nil, err
	}
	started := time.Now()
	out, err := e.loop(ctx, st, dec)
	metrics.RunDuration.Observe(time.Since(started).Seconds())
	return out, err
}

func (e *Engine) loop(ctx context.Context, st *state.ConversationState, dec Decision) (*Outcome, error) {
	// A run keeps the configuration it started with even if an override
	// lands mid-flight.
	cfg := e.Config()
	for i := 0; i < cfg.MaxTransitions; i++ {
		switch {
		case dec.Terminal:
			return e.finish(ctx, st)

		case dec.Suspend:
			return e.suspend(ctx, st)
		}

		agent, err := e.registry.Get(dec.Next)
		if err != nil {
			// Registry gaps are configuration errors, not run failures.
			return nil, err
		}

		e.step(ctx, agent, st)
		if err := e.store.Save(ctx, st.ThreadID, st); err != nil {
			return nil, err
		}

		dec, err = Route(st.CurrentAgent, st, cfg)
		if err != nil {
			return nil, err
		}
		e.recordTransition(st, dec)
	}
	return nil, fmt.Errorf("thread %s exceeded %d transitions", st.ThreadID, cfg.MaxTransitions)
}

// step runs one agent, converting any failure (error or panic) into
// errorContext so the router only ever observes data.
func (e *Engine) step(ctx context.Context, agent agents.Agent, st *state.ConversationState) {
	name := agent.Name()
	stepCtx, span := tracing.StartAgentSpan(ctx, name, st.ThreadID, st.RunID)
	defer span.End()

	e.publish(st, streaming.Event{Type: streaming.EventAgentStarted, Agent: name})
	started := time.Now()

	upd, err := e.executeSafely(stepCtx, agent, st)
	elapsed := time.Since(started)
	metrics.AgentExecutionDuration.WithLabelValues(name).Observe(float64(elapsed.Milliseconds()))

	if err != nil {
		metrics.AgentExecutions.WithLabelValues(name, "error").Inc()
		e.logger.Warn("Agent step failed",
			zap.String("thread_id", st.ThreadID),
			zap.String("run_id", st.RunID),
			zap.String("agent", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		st.Apply(state.Update{ErrorContext: &state.ErrorContext{
			FailedAgent: name,
			Message:     err.Error(),
			Retryable:   isRetryable(err),
		}})
		st.CurrentAgent = name
		e.publish(st, streaming.Event{Type: streaming.EventAgentFailed, Agent: name, Message: err.Error()})
		return
	}

	metrics.AgentExecutions.WithLabelValues(name, "ok").Inc()
	st.Apply(upd)
	st.CurrentAgent = name
	e.publish(st, streaming.Event{Type: streaming.EventAgentCompleted, Agent: name})
}

// executeSafely guards the engine boundary: a panicking step is reported
// as a failed step, never as a crashed run.
func (e *Engine) executeSafely(ctx context.Context, agent agents.Agent, st *state.ConversationState) (upd state.Update, err error) {
	defer func() {
		if r := recover(); r != nil {
			upd = state.Update{}
			err = fmt.Errorf("agent panicked: %v", r)
		}
	}()
	return agent.Execute(ctx, st)
}

func (e *Engine) suspend(ctx context.Context, st *state.ConversationState) (*Outcome, error) {
	st.Phase = state.PhaseSuspended
	st.CurrentAgent = constants.AgentInterrupt
	st.ClarificationAttempts++
	if err := e.store.Save(ctx, st.ThreadID, st); err != nil {
		return nil, err
	}

	metrics.RunsSuspended.Inc()
	metrics.SuspendedRuns.Inc()
	e.publish(st, streaming.Event{
		Type:    streaming.EventWaitingForInput,
		Agent:   constants.AgentInterrupt,
		Message: st.ClarificationQuestion,
	})
	e.logger.Info("Run suspended awaiting clarification",
		zap.String("thread_id", st.ThreadID),
		zap.String("run_id", st.RunID),
		zap.Int("clarification_attempts", st.ClarificationAttempts),
	)

	return &Outcome{Awaiting: true, Question: st.ClarificationQuestion}, nil
}

func (e *Engine) finish(ctx context.Context, st *state.ConversationState) (*Outcome, error) {
	st.Phase = state.PhaseCompleted
	if err := e.store.Save(ctx, st.ThreadID, st); err != nil {
		return nil, err
	}

	metrics.RunsCompleted.WithLabelValues(st.CurrentAgent).Inc()
	e.publish(st, streaming.Event{Type: streaming.EventRunCompleted, Agent: st.CurrentAgent})
	if e.archive != nil {
		e.archive.EnqueueRunRecord(&db.RunRecord{
			ThreadID:        st.ThreadID,
			RunID:           st.RunID,
			Query:           st.OriginalQuery,
			DetectedCompany: st.DetectedCompany,
			TerminalAgent:   st.CurrentAgent,
			FinalSummary:    st.FinalSummary,
		})
	}
	e.logger.Info("Run completed",
		zap.String("thread_id", st.ThreadID),
		zap.String("run_id", st.RunID),
		zap.String("terminal_agent", st.CurrentAgent),
		zap.Int("research_attempts", st.ResearchAttempts),
	)

	return &Outcome{Result: &RunResult{
		ThreadID:        st.ThreadID,
		RunID:           st.RunID,
		FinalSummary:    st.FinalSummary,
		DetectedCompany: st.DetectedCompany,
		CurrentAgent:    st.CurrentAgent,
	}}, nil
}

func (e *Engine) publish(st *state.ConversationState, evt streaming.Event) {
	if e.events == nil {
		return
	}
	evt.ThreadID = st.ThreadID
	evt.RunID = st.RunID
	e.events.Publish(st.ThreadID, evt)
}

func (e *Engine) recordTransition(st *state.ConversationState, dec Decision) {
	if e.archive == nil {
		return
	}
	e.archive.EnqueueTransition(&db.Transition{
		ThreadID:              st.ThreadID,
		RunID:                 st.RunID,
		Agent:                 st.CurrentAgent,
		Decision:              dec.String(),
		ClarificationAttempts: st.ClarificationAttempts,
		ResearchAttempts:      st.ResearchAttempts,
		Confidence:            st.ConfidenceScore,
	})
}

// isRetryable asks the error whether a retry could help; collaborator
// errors implement this, anything else defaults to false.
func isRetryable(err error) bool {
	var r interface{ IsRetryable() bool }
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}
