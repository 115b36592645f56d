package constants

// Agent names used for routing decisions and observability.
// Using constants eliminates magic strings and ensures consistency.
const (
	AgentClarity       = "clarity"
	AgentInterrupt     = "interrupt"
	AgentResearch      = "research"
	AgentValidator     = "validator"
	AgentSynthesis     = "synthesis"
	AgentErrorRecovery = "error_recovery"
)

// Routing thresholds. This is the single authoritative source for these
// values; configuration may override them at engine construction but
// defaults are defined nowhere else.
const (
	// ConfidenceThreshold is the minimum research confidence (0-10) that
	// skips validation and routes straight to synthesis.
	ConfidenceThreshold = 6

	// MaxResearchAttempts bounds the research/validation feedback loop.
	MaxResearchAttempts = 3

	// MaxClarificationAttempts bounds how many times a run may suspend
	// to ask the user for clarification.
	MaxClarificationAttempts = 2

	// MaxTransitions is a hard ceiling on step executions per query.
	// The forced-termination routing rules guarantee termination well
	// below this; the ceiling exists so a routing bug can never spin.
	MaxTransitions = 24
)
