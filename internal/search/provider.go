// Package search is the data-source collaborator: it looks up company
// information through an external search service. Confidence 0 with nil
// findings means "nothing found", which is a valid outcome, not an error.
package search

import (
	"context"
	"fmt"

	"github.com/firmlens/orchestrator/internal/state"
)

// SearchContext carries the query context for one research attempt.
type SearchContext struct {
	OriginalQuery      string `json:"original_query"`
	ValidationFeedback string `json:"validation_feedback,omitempty"`
	AttemptNumber      int    `json:"attempt_number"`
	CorrelationID      string `json:"correlation_id,omitempty"`
}

// Result is the provider's answer for one lookup.
type Result struct {
	Findings   *state.ResearchFindings `json:"findings,omitempty"`
	Confidence int                     `json:"confidence"` // 0-10
	Source     string                  `json:"source"`
}

// Provider is the capability the research agent depends on.
type Provider interface {
	Search(ctx context.Context, company string, sc SearchContext) (*Result, error)
	IsAvailable(ctx context.Context) bool
}

// ProviderError is a structured failure from the search backend.
type ProviderError struct {
	Source    string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether the failure is transient.
func (e *ProviderError) IsRetryable() bool { return e.Retryable }
