package agents

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/firmlens/orchestrator/internal/constants"
	"github.com/firmlens/orchestrator/internal/llm"
	"github.com/firmlens/orchestrator/internal/state"
)

// ClarityAgent judges whether the current query identifies a researchable
// company, extracting the company name when it does and posing a
// clarification question when it does not.
type ClarityAgent struct {
	llm    llm.Client
	logger *zap.Logger
}

func NewClarityAgent(client llm.Client, logger *zap.Logger) *ClarityAgent {
	return &ClarityAgent{llm: client, logger: logger}
}

func (a *ClarityAgent) Name() string { return constants.AgentClarity }

func (a *ClarityAgent) Execute(ctx context.Context, st *state.ConversationState) (state.Update, error) {
	res, err := a.llm.AssessClarity(ctx, llm.ClarityRequest{
		Query:               st.OriginalQuery,
		DetectedCompany:     st.DetectedCompany,
		ConversationSummary: st.ConversationSummary,
	})
	if err != nil {
		return state.Update{}, err
	}

	upd := state.Update{}
	switch res.Status {
	case "clear":
		upd.ClarityStatus = state.Ptr(state.ClarityClear)
		// Question is consumed; clear it so a later suspend can't replay it.
		upd.ClarificationQuestion = state.Ptr("")
	default:
		upd.ClarityStatus = state.Ptr(state.ClarityNeedsClarification)
		question := res.Question
		if question == "" {
			question = "Which company would you like to know about?"
		}
		upd.ClarificationQuestion = state.Ptr(question)
		upd.Messages = []state.Message{{
			Role:      "assistant",
			Content:   question,
			Timestamp: time.Now().UTC(),
		}}
	}
	if res.Company != "" {
		upd.DetectedCompany = state.Ptr(res.Company)
	}

	a.logger.Info("Clarity assessed",
		zap.String("thread_id", st.ThreadID),
		zap.String("run_id", st.RunID),
		zap.String("status", string(*upd.ClarityStatus)),
		zap.String("company", res.Company),
	)
	return upd, nil
}
