package agents

import (
	"context"

	"go.uber.org/zap"

	"github.com/firmlens/orchestrator/internal/constants"
	"github.com/firmlens/orchestrator/internal/metrics"
	"github.com/firmlens/orchestrator/internal/search"
	"github.com/firmlens/orchestrator/internal/state"
)

// ResearchAgent runs one lookup against the search provider. Validation
// feedback from a previous insufficient attempt is carried into the next
// search context so the provider can refine its results.
type ResearchAgent struct {
	provider search.Provider
	logger   *zap.Logger
}

func NewResearchAgent(provider search.Provider, logger *zap.Logger) *ResearchAgent {
	return &ResearchAgent{provider: provider, logger: logger}
}

func (a *ResearchAgent) Name() string { return constants.AgentResearch }

func (a *ResearchAgent) Execute(ctx context.Context, st *state.ConversationState) (state.Update, error) {
	company := st.DetectedCompany
	if company == "" {
		// Clarification budget may be exhausted with the company still
		// unknown; search on the raw query as a best effort.
		company = st.OriginalQuery
	}
	attempt := st.ResearchAttempts + 1

	res, err := a.provider.Search(ctx, company, search.SearchContext{
		OriginalQuery:      st.OriginalQuery,
		ValidationFeedback: st.ValidationFeedback,
		AttemptNumber:      attempt,
		CorrelationID:      st.RunID,
	})
	if err != nil {
		return state.Update{}, err
	}

	metrics.SearchConfidence.Observe(float64(res.Confidence))
	a.logger.Info("Research attempt completed",
		zap.String("thread_id", st.ThreadID),
		zap.String("run_id", st.RunID),
		zap.Int("attempt", attempt),
		zap.Int("confidence", res.Confidence),
		zap.Bool("found", res.Findings != nil),
	)

	upd := state.Update{
		ResearchAttempts: state.Ptr(attempt),
		ConfidenceScore:  state.Ptr(res.Confidence),
	}
	if res.Findings != nil {
		upd.ResearchFindings = res.Findings
	}
	return upd, nil
}
