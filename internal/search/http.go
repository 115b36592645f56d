package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/firmlens/orchestrator/internal/tracing"
)

// HTTPProvider calls the search service over JSON/HTTP. Outbound calls
// are rate limited so a retry loop cannot hammer the backend.
type HTTPProvider struct {
	base    string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// Options tunes the HTTP provider.
type Options struct {
	Timeout time.Duration
	// RequestsPerSecond caps outbound search calls; zero disables limiting.
	RequestsPerSecond float64
	Burst             int
}

// NewHTTPProvider creates a provider for the given base URL.
func NewHTTPProvider(base string, opts Options, logger *zap.Logger) *HTTPProvider {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return &HTTPProvider{
		base:    base,
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: limiter,
		logger:  logger,
	}
}

type searchRequest struct {
	Company string        `json:"company"`
	Context SearchContext `json:"context"`
}

func (p *HTTPProvider) Search(ctx context.Context, company string, sc SearchContext) (*Result, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, &ProviderError{Source: "search", Retryable: true, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	body, err := json.Marshal(searchRequest{Company: company, Context: sc})
	if err != nil {
		return nil, &ProviderError{Source: "search", Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Source: "search", Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Source: "search", Retryable: true, Err: fmt.Errorf("call search service: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProviderError{
			Source:    "search",
			Retryable: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
			Err:       fmt.Errorf("search service returned status %d", resp.StatusCode),
		}
	}

	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &ProviderError{Source: "search", Err: fmt.Errorf("decode search response: %w", err)}
	}
	if out.Confidence < 0 || out.Confidence > 10 {
		return nil, &ProviderError{Source: "search", Err: fmt.Errorf("confidence %d out of range", out.Confidence)}
	}

	p.logger.Debug("Search completed",
		zap.String("company", company),
		zap.Int("attempt", sc.AttemptNumber),
		zap.Int("confidence", out.Confidence),
		zap.Bool("found", out.Findings != nil),
	)
	return &out, nil
}

// IsAvailable probes the service health endpoint.
func (p *HTTPProvider) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
