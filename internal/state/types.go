package state

import (
	"time"
)

// ClarityStatus reflects whether the current query is answerable as asked.
type ClarityStatus string

const (
	ClarityPending            ClarityStatus = "pending"
	ClarityClear              ClarityStatus = "clear"
	ClarityNeedsClarification ClarityStatus = "needs_clarification"
)

// ValidationResult is the validator's verdict on research findings.
type ValidationResult string

const (
	ValidationPending      ValidationResult = "pending"
	ValidationSufficient   ValidationResult = "sufficient"
	ValidationInsufficient ValidationResult = "insufficient"
)

// RunPhase tracks the lifecycle of the current run on a thread.
// A suspended run holds no execution resources; it is data at rest.
type RunPhase string

const (
	PhaseRunning   RunPhase = "running"
	PhaseSuspended RunPhase = "suspended"
	PhaseResumed   RunPhase = "resumed"
	PhaseCompleted RunPhase = "completed"
)

// Message is one entry in the conversation transcript.
type Message struct {
	Role      string    `json:"role"` // "user", "assistant", "system"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ResearchFindings is the structured result bundle from the research step.
type ResearchFindings struct {
	Company         string   `json:"company"`
	Overview        string   `json:"overview"`
	KeyDevelopments []string `json:"key_developments,omitempty"`
	Sources         []string `json:"sources,omitempty"`
}

// ErrorContext captures a failed step so the router can divert the run to
// error recovery instead of crashing it. It is set only transiently and is
// cleared by the error recovery agent.
type ErrorContext struct {
	FailedAgent string `json:"failed_agent"`
	Message     string `json:"message"`
	Retryable   bool   `json:"retryable"`
}

// ConversationState is the persisted record for one conversation thread.
// It is checkpointed after every step; a resumed run continues from the
// last checkpoint.
type ConversationState struct {
	ThreadID string   `json:"thread_id"`
	RunID    string   `json:"run_id"` // correlation id, regenerated per top-level query
	Phase    RunPhase `json:"phase"`

	Messages            []Message `json:"messages"`
	ConversationSummary string    `json:"conversation_summary,omitempty"` // written only by an external summarizer

	OriginalQuery         string        `json:"original_query"`
	ClarityStatus         ClarityStatus `json:"clarity_status"`
	ClarificationAttempts int           `json:"clarification_attempts"`
	ClarificationQuestion string        `json:"clarification_question,omitempty"`

	// DetectedCompany persists across top-level queries on the same
	// thread so follow-up questions keep their subject.
	DetectedCompany string `json:"detected_company,omitempty"`

	ResearchFindings   *ResearchFindings `json:"research_findings,omitempty"`
	ConfidenceScore    int               `json:"confidence_score"` // 0-10, meaningful only when findings are present
	ResearchAttempts   int               `json:"research_attempts"`
	ValidationResult   ValidationResult  `json:"validation_result"`
	ValidationFeedback string            `json:"validation_feedback,omitempty"`

	FinalSummary string        `json:"final_summary,omitempty"`
	CurrentAgent string        `json:"current_agent,omitempty"`
	ErrorContext *ErrorContext `json:"error_context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates the state for a fresh conversation thread.
func New(threadID string) *ConversationState {
	now := time.Now().UTC()
	return &ConversationState{
		ThreadID:         threadID,
		Phase:            PhaseRunning,
		Messages:         []Message{},
		ClarityStatus:    ClarityPending,
		ValidationResult: ValidationPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// ResetForQuery prepares the thread for a new top-level query. Per-query
// fields reset to their defaults; message history, the conversation
// summary and the detected company are preserved.
func (s *ConversationState) ResetForQuery(query, runID string) {
	s.RunID = runID
	s.Phase = PhaseRunning
	s.OriginalQuery = query
	s.ClarityStatus = ClarityPending
	s.ClarificationAttempts = 0
	s.ClarificationQuestion = ""
	s.ResearchFindings = nil
	s.ConfidenceScore = 0
	s.ResearchAttempts = 0
	s.ValidationResult = ValidationPending
	s.ValidationFeedback = ""
	s.FinalSummary = ""
	s.CurrentAgent = ""
	s.ErrorContext = nil
	s.UpdatedAt = time.Now().UTC()
}

// Terminal reports whether the run produced its final answer.
func (s *ConversationState) Terminal() bool {
	return s.FinalSummary != ""
}
