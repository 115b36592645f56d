package agents

import (
	"context"

	"go.uber.org/zap"

	"github.com/firmlens/orchestrator/internal/constants"
	"github.com/firmlens/orchestrator/internal/llm"
	"github.com/firmlens/orchestrator/internal/state"
)

// ValidatorAgent judges whether the research findings answer the query.
// An insufficient verdict carries feedback for the next research attempt.
type ValidatorAgent struct {
	llm    llm.Client
	logger *zap.Logger
}

func NewValidatorAgent(client llm.Client, logger *zap.Logger) *ValidatorAgent {
	return &ValidatorAgent{llm: client, logger: logger}
}

func (a *ValidatorAgent) Name() string { return constants.AgentValidator }

func (a *ValidatorAgent) Execute(ctx context.Context, st *state.ConversationState) (state.Update, error) {
	if st.ResearchFindings == nil {
		// Nothing was found; no model call needed to know that is not
		// enough to answer with.
		return state.Update{
			ValidationResult:   state.Ptr(state.ValidationInsufficient),
			ValidationFeedback: state.Ptr("no findings were returned; broaden the search"),
		}, nil
	}

	verdict, err := a.llm.ValidateFindings(ctx, llm.ValidationRequest{
		Query:           st.OriginalQuery,
		Company:         st.ResearchFindings.Company,
		Overview:        st.ResearchFindings.Overview,
		KeyDevelopments: st.ResearchFindings.KeyDevelopments,
		Confidence:      st.ConfidenceScore,
	})
	if err != nil {
		return state.Update{}, err
	}

	upd := state.Update{}
	if verdict.Sufficient {
		upd.ValidationResult = state.Ptr(state.ValidationSufficient)
	} else {
		upd.ValidationResult = state.Ptr(state.ValidationInsufficient)
		feedback := verdict.Feedback
		if feedback == "" {
			feedback = "findings were judged insufficient; gather more specific detail"
		}
		upd.ValidationFeedback = state.Ptr(feedback)
	}

	a.logger.Info("Findings validated",
		zap.String("thread_id", st.ThreadID),
		zap.String("run_id", st.RunID),
		zap.Bool("sufficient", verdict.Sufficient),
	)
	return upd, nil
}
