package engine

import (
	"fmt"

	"github.com/firmlens/orchestrator/internal/constants"
	"github.com/firmlens/orchestrator/internal/metrics"
	"github.com/firmlens/orchestrator/internal/state"
)

// Decision is the router's verdict after a step completes.
type Decision struct {
	// Next is the agent to execute; empty when Suspend or Terminal is set.
	Next string
	// Suspend pauses the run at the interrupt boundary awaiting user input.
	Suspend bool
	// Terminal ends the run.
	Terminal bool
}

func (d Decision) String() string {
	switch {
	case d.Suspend:
		return constants.AgentInterrupt
	case d.Terminal:
		return "terminal"
	default:
		return d.Next
	}
}

// Route maps the completed step and current state to the next move. It is
// a pure function of its arguments; the ordered rules below encode the
// entire branching policy, and the two budget rules guarantee every run
// reaches a terminal step in a bounded number of transitions.
func Route(lastAgent string, st *state.ConversationState, cfg Config) (Decision, error) {
	// Rule 1: a captured failure always diverts to error recovery.
	if st.ErrorContext != nil {
		return Decision{Next: constants.AgentErrorRecovery}, nil
	}

	switch lastAgent {
	case constants.AgentClarity:
		// Rule 2: ask for clarification only while budget remains; once
		// it is spent, proceed to research even if still ambiguous.
		if st.ClarityStatus == state.ClarityNeedsClarification {
			if st.ClarificationAttempts < cfg.MaxClarificationAttempts {
				return Decision{Suspend: true}, nil
			}
			metrics.ForcedTerminations.WithLabelValues("clarification").Inc()
		}
		return Decision{Next: constants.AgentResearch}, nil

	case constants.AgentInterrupt:
		// Rule 3: re-evaluate clarity with the new answer.
		return Decision{Next: constants.AgentClarity}, nil

	case constants.AgentResearch:
		// Rule 4: confidence can short-circuit validation, but only when
		// findings actually exist.
		if st.ResearchFindings != nil && st.ConfidenceScore >= cfg.ConfidenceThreshold {
			return Decision{Next: constants.AgentSynthesis}, nil
		}
		return Decision{Next: constants.AgentValidator}, nil

	case constants.AgentValidator:
		// Rule 5: retry research with feedback while budget remains;
		// otherwise synthesize best-effort data.
		if st.ValidationResult == state.ValidationSufficient {
			return Decision{Next: constants.AgentSynthesis}, nil
		}
		if st.ResearchAttempts < cfg.MaxResearchAttempts {
			return Decision{Next: constants.AgentResearch}, nil
		}
		metrics.ForcedTerminations.WithLabelValues("research").Inc()
		return Decision{Next: constants.AgentSynthesis}, nil

	case constants.AgentSynthesis, constants.AgentErrorRecovery:
		// Rule 6: terminal steps.
		return Decision{Terminal: true}, nil
	}

	return Decision{}, fmt.Errorf("no routing rule for agent %q", lastAgent)
}
