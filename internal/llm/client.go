// Package llm is the HTTP client for the language-model sidecar service.
// The orchestrator never talks to a model provider directly; content
// generation is delegated to the service and interpreted here.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/firmlens/orchestrator/internal/tracing"
)

// ServiceError is a structured failure from the LLM service.
type ServiceError struct {
	Source    string
	Status    int
	Retryable bool
	Err       error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// IsRetryable reports whether the caller may retry the request later.
func (e *ServiceError) IsRetryable() bool { return e.Retryable }

// Client is the capability the agents depend on. Tests substitute a stub.
type Client interface {
	AssessClarity(ctx context.Context, req ClarityRequest) (*ClarityResult, error)
	ValidateFindings(ctx context.Context, req ValidationRequest) (*ValidationVerdict, error)
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)
}

// ClarityRequest carries everything the clarity prompt needs.
type ClarityRequest struct {
	Query               string `json:"query"`
	DetectedCompany     string `json:"detected_company,omitempty"`
	ConversationSummary string `json:"conversation_summary,omitempty"`
}

// ClarityResult is the service's judgment of the query.
type ClarityResult struct {
	Status   string `json:"status"` // "clear" or "needs_clarification"
	Company  string `json:"company,omitempty"`
	Question string `json:"question,omitempty"`
}

type ValidationRequest struct {
	Query           string   `json:"query"`
	Company         string   `json:"company"`
	Overview        string   `json:"overview"`
	KeyDevelopments []string `json:"key_developments,omitempty"`
	Confidence      int      `json:"confidence"`
}

type ValidationVerdict struct {
	Sufficient bool   `json:"sufficient"`
	Feedback   string `json:"feedback,omitempty"`
}

type SynthesisRequest struct {
	Query           string   `json:"query"`
	Company         string   `json:"company"`
	Overview        string   `json:"overview"`
	KeyDevelopments []string `json:"key_developments,omitempty"`
	Sources         []string `json:"sources,omitempty"`
}

type SynthesisResult struct {
	Summary string `json:"summary"`
}

// HTTPClient talks to the LLM service over JSON/HTTP.
type HTTPClient struct {
	base   string
	client *http.Client
	logger *zap.Logger
}

// NewHTTPClient creates a client for the given base URL.
func NewHTTPClient(base string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		base:   base,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (c *HTTPClient) AssessClarity(ctx context.Context, req ClarityRequest) (*ClarityResult, error) {
	var out ClarityResult
	if err := c.post(ctx, "/agent/clarity", req, &out); err != nil {
		return nil, err
	}
	if out.Status == "" {
		return nil, &ServiceError{Source: "llm", Retryable: false, Err: errors.New("clarity response missing status")}
	}
	return &out, nil
}

func (c *HTTPClient) ValidateFindings(ctx context.Context, req ValidationRequest) (*ValidationVerdict, error) {
	var out ValidationVerdict
	if err := c.post(ctx, "/agent/validate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	var out SynthesisResult
	if err := c.post(ctx, "/agent/synthesize", req, &out); err != nil {
		return nil, err
	}
	if out.Summary == "" {
		return nil, &ServiceError{Source: "llm", Retryable: false, Err: errors.New("synthesis response missing summary")}
	}
	return &out, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return &ServiceError{Source: "llm", Err: fmt.Errorf("marshal request: %w", err)}
	}

	url := c.base + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &ServiceError{Source: "llm", Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		// Network errors and timeouts are worth a later retry.
		return &ServiceError{Source: "llm", Retryable: true, Err: fmt.Errorf("call %s: %w", path, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ServiceError{
			Source:    "llm",
			Status:    resp.StatusCode,
			Retryable: resp.StatusCode >= 500,
			Err:       fmt.Errorf("%s returned status %d", path, resp.StatusCode),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ServiceError{Source: "llm", Err: fmt.Errorf("decode %s response: %w", path, err)}
	}
	return nil
}
