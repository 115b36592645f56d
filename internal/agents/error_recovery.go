package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/firmlens/orchestrator/internal/constants"
	"github.com/firmlens/orchestrator/internal/state"
)

// ErrorRecoveryAgent converts a captured step failure into a graceful
// user-facing answer. It is total: every failed-agent value, including
// unrecognized ones, maps to a non-empty final summary, and the error
// context is always cleared. It performs no external calls and never fails.
type ErrorRecoveryAgent struct {
	logger *zap.Logger
}

func NewErrorRecoveryAgent(logger *zap.Logger) *ErrorRecoveryAgent {
	return &ErrorRecoveryAgent{logger: logger}
}

func (a *ErrorRecoveryAgent) Name() string { return constants.AgentErrorRecovery }

func (a *ErrorRecoveryAgent) Execute(ctx context.Context, st *state.ConversationState) (state.Update, error) {
	failed := "unknown"
	if st.ErrorContext != nil {
		failed = st.ErrorContext.FailedAgent
		a.logger.Warn("Recovering from step failure",
			zap.String("thread_id", st.ThreadID),
			zap.String("run_id", st.RunID),
			zap.String("failed_agent", failed),
			zap.Bool("retryable", st.ErrorContext.Retryable),
			zap.String("error", st.ErrorContext.Message),
		)
	}

	var summary string
	switch failed {
	case constants.AgentResearch:
		summary = "Company data is temporarily unavailable. Please try your question again in a few minutes."
	case constants.AgentClarity:
		summary = "I had trouble understanding the request. Could you rephrase the question, ideally naming the company you are interested in?"
	case constants.AgentValidator:
		summary = a.partialFindings(st, false)
	case constants.AgentSynthesis:
		summary = a.partialFindings(st, true)
	default:
		summary = "Something went wrong while processing your request. Please try again."
	}

	return state.Update{
		FinalSummary: state.Ptr(summary),
		ClearError:   true,
		Messages: []state.Message{{
			Role:      "assistant",
			Content:   summary,
			Timestamp: time.Now().UTC(),
		}},
	}, nil
}

// partialFindings renders whatever research data exists, with key
// developments included only for synthesis-stage failures where the data
// had already passed validation.
func (a *ErrorRecoveryAgent) partialFindings(st *state.ConversationState, includeDevelopments bool) string {
	f := st.ResearchFindings
	if f == nil {
		return "I could not complete the research for your request. Apologies; please try again."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "I ran into a problem finishing your request, so here is what I found about %s so far. Apologies for the incomplete answer.\n\n", f.Company)
	if f.Overview != "" {
		b.WriteString(f.Overview)
		b.WriteString("\n")
	}
	if includeDevelopments && len(f.KeyDevelopments) > 0 {
		b.WriteString("\nKey developments:\n")
		for _, d := range f.KeyDevelopments {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}
	return b.String()
}
