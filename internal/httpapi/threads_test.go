package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/firmlens/orchestrator/internal/agents"
	"github.com/firmlens/orchestrator/internal/checkpoint"
	"github.com/firmlens/orchestrator/internal/engine"
	"github.com/firmlens/orchestrator/internal/llm"
	"github.com/firmlens/orchestrator/internal/search"
	"github.com/firmlens/orchestrator/internal/state"
	"github.com/firmlens/orchestrator/internal/streaming"
)

// stubLLM treats queries containing "unclear" as ambiguous, everything
// else as a clear question about Acme.
type stubLLM struct{}

func (stubLLM) AssessClarity(_ context.Context, req llm.ClarityRequest) (*llm.ClarityResult, error) {
	if strings.Contains(req.Query, "unclear") {
		return &llm.ClarityResult{Status: "needs_clarification", Question: "Which company?"}, nil
	}
	return &llm.ClarityResult{Status: "clear", Company: "Acme"}, nil
}

func (stubLLM) ValidateFindings(_ context.Context, _ llm.ValidationRequest) (*llm.ValidationVerdict, error) {
	return &llm.ValidationVerdict{Sufficient: true}, nil
}

func (stubLLM) Synthesize(_ context.Context, req llm.SynthesisRequest) (*llm.SynthesisResult, error) {
	return &llm.SynthesisResult{Summary: req.Company + " summary."}, nil
}

type stubSearch struct{}

func (stubSearch) Search(_ context.Context, company string, _ search.SearchContext) (*search.Result, error) {
	return &search.Result{
		Findings:   &state.ResearchFindings{Company: company, Overview: company + " overview."},
		Confidence: 8,
		Source:     "stub",
	}, nil
}

func (stubSearch) IsAvailable(_ context.Context) bool { return true }

func newTestServer(t *testing.T) (*httptest.Server, checkpoint.Store) {
	t.Helper()
	logger := zap.NewNop()
	store := checkpoint.NewMemoryStore()
	registry := agents.NewRegistry(
		agents.NewClarityAgent(stubLLM{}, logger),
		agents.NewResearchAgent(stubSearch{}, logger),
		agents.NewValidatorAgent(stubLLM{}, logger),
		agents.NewSynthesisAgent(stubLLM{}, logger),
		agents.NewErrorRecoveryAgent(logger),
	)
	eng := engine.New(registry, store, engine.DefaultConfig(), logger,
		engine.WithEvents(streaming.NewManager(64)))

	mux := http.NewServeMux()
	NewThreadHandler(eng, store, logger).RegisterRoutes(mux)
	NewStreamingHandler(streaming.NewManager(64), logger).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestQueryEndpointCompletesRun(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/threads/t-1/query", `{"query":"Tell me about Acme"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out engine.Outcome
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.False(t, out.Awaiting)
	require.NotNil(t, out.Result)
	assert.Equal(t, "Acme summary.", out.Result.FinalSummary)
	assert.Equal(t, "synthesis", out.Result.CurrentAgent)
}

func TestQueryEndpointRejectsEmptyBody(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/threads/t-1/query", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestResumeFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/threads/t-2/query", `{"query":"something unclear"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out engine.Outcome
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Awaiting)
	assert.Equal(t, "Which company?", out.Question)

	resp = postJSON(t, srv.URL+"/threads/t-2/resume", `{"answer":"Acme"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Result)
	assert.Equal(t, "synthesis", out.Result.CurrentAgent)
}

func TestResumeErrorsMapToStatusCodes(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/threads/never-seen/resume", `{"answer":"Acme"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// A completed thread is not resumable.
	resp = postJSON(t, srv.URL+"/threads/t-3/query", `{"query":"Tell me about Acme"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = postJSON(t, srv.URL+"/threads/t-3/resume", `{"answer":"more"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetThreadState(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/threads/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	postJSON(t, srv.URL+"/threads/t-4/query", `{"query":"Tell me about Acme"}`)

	resp, err = http.Get(srv.URL + "/threads/t-4")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st state.ConversationState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "t-4", st.ThreadID)
	assert.Equal(t, "Acme", st.DetectedCompany)
	assert.Equal(t, state.PhaseCompleted, st.Phase)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSSERequiresThreadID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/stream/sse")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
