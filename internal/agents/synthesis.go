package agents

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/firmlens/orchestrator/internal/constants"
	"github.com/firmlens/orchestrator/internal/llm"
	"github.com/firmlens/orchestrator/internal/state"
)

// SynthesisAgent produces the final user-facing summary. It is the normal
// terminal step, reached either through a sufficient validation or through
// forced termination once the research budget is spent.
type SynthesisAgent struct {
	llm    llm.Client
	logger *zap.Logger
}

func NewSynthesisAgent(client llm.Client, logger *zap.Logger) *SynthesisAgent {
	return &SynthesisAgent{llm: client, logger: logger}
}

func (a *SynthesisAgent) Name() string { return constants.AgentSynthesis }

func (a *SynthesisAgent) Execute(ctx context.Context, st *state.ConversationState) (state.Update, error) {
	var summary string
	if st.ResearchFindings == nil {
		// Forced termination with nothing found: answer honestly rather
		// than invent content.
		subject := st.DetectedCompany
		if subject == "" {
			subject = st.OriginalQuery
		}
		summary = fmt.Sprintf("I could not find reliable information about %q. "+
			"You may want to rephrase the question or try again later.", subject)
	} else {
		res, err := a.llm.Synthesize(ctx, llm.SynthesisRequest{
			Query:           st.OriginalQuery,
			Company:         st.ResearchFindings.Company,
			Overview:        st.ResearchFindings.Overview,
			KeyDevelopments: st.ResearchFindings.KeyDevelopments,
			Sources:         st.ResearchFindings.Sources,
		})
		if err != nil {
			return state.Update{}, err
		}
		summary = res.Summary
	}

	a.logger.Info("Summary synthesized",
		zap.String("thread_id", st.ThreadID),
		zap.String("run_id", st.RunID),
		zap.Int("length", len(summary)),
	)
	return state.Update{
		FinalSummary: state.Ptr(summary),
		Messages: []state.Message{{
			Role:      "assistant",
			Content:   summary,
			Timestamp: time.Now().UTC(),
		}},
	}, nil
}
