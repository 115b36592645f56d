package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/firmlens/orchestrator/internal/state"
)

func TestErrorRecoveryCoversEveryFailedAgent(t *testing.T) {
	agent := NewErrorRecoveryAgent(zap.NewNop())

	for _, failed := range []string{
		"clarity", "research", "validator", "synthesis", "interrupt", "not-a-real-agent", "",
	} {
		t.Run("failed="+failed, func(t *testing.T) {
			st := state.New("t-1")
			st.ErrorContext = &state.ErrorContext{
				FailedAgent: failed,
				Message:     "boom",
			}

			upd, err := agent.Execute(context.Background(), st)
			require.NoError(t, err)
			require.NotNil(t, upd.FinalSummary)
			assert.NotEmpty(t, *upd.FinalSummary)
			assert.True(t, upd.ClearError)
			require.Len(t, upd.Messages, 1)
			assert.Equal(t, "assistant", upd.Messages[0].Role)

			st.Apply(upd)
			assert.Nil(t, st.ErrorContext)
		})
	}
}

func TestErrorRecoveryWithoutErrorContext(t *testing.T) {
	agent := NewErrorRecoveryAgent(zap.NewNop())
	st := state.New("t-1")

	upd, err := agent.Execute(context.Background(), st)
	require.NoError(t, err)
	require.NotNil(t, upd.FinalSummary)
	assert.NotEmpty(t, *upd.FinalSummary)
}

func TestErrorRecoveryRendersPartialFindings(t *testing.T) {
	agent := NewErrorRecoveryAgent(zap.NewNop())

	st := state.New("t-1")
	st.ResearchFindings = &state.ResearchFindings{
		Company:         "Acme",
		Overview:        "Acme builds anvils.",
		KeyDevelopments: []string{"Expanded into rocket skates"},
	}

	// Validator-stage failure: the findings never passed validation, so
	// only the overview is shown.
	st.ErrorContext = &state.ErrorContext{FailedAgent: "validator", Message: "boom"}
	upd, err := agent.Execute(context.Background(), st)
	require.NoError(t, err)
	assert.Contains(t, *upd.FinalSummary, "Acme builds anvils.")
	assert.NotContains(t, *upd.FinalSummary, "rocket skates")

	// Synthesis-stage failure: validated data, developments included.
	st.ErrorContext = &state.ErrorContext{FailedAgent: "synthesis", Message: "boom"}
	upd, err = agent.Execute(context.Background(), st)
	require.NoError(t, err)
	assert.Contains(t, *upd.FinalSummary, "rocket skates")
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(NewErrorRecoveryAgent(zap.NewNop()))

	a, err := r.Get("error_recovery")
	require.NoError(t, err)
	assert.Equal(t, "error_recovery", a.Name())

	_, err = r.Get("clarity")
	assert.Error(t, err)
}
