package state

import "time"

// Update is a partial state emitted by a single step. A step sets only the
// fields it changed; nil means "keep the current value". Messages are
// append-only and concatenate rather than replace.
type Update struct {
	Messages []Message

	OriginalQuery         *string
	ConversationSummary   *string
	ClarityStatus         *ClarityStatus
	ClarificationAttempts *int
	ClarificationQuestion *string
	DetectedCompany       *string
	ResearchFindings      *ResearchFindings
	ConfidenceScore       *int
	ResearchAttempts      *int
	ValidationResult      *ValidationResult
	ValidationFeedback    *string
	FinalSummary          *string

	ErrorContext *ErrorContext
	// ClearError drops the error context once recovery has consumed it.
	// A nil ErrorContext alone means "unchanged", so clearing is explicit.
	ClearError bool
}

// Empty reports whether applying the update would change nothing.
func (u Update) Empty() bool {
	return len(u.Messages) == 0 &&
		u.OriginalQuery == nil &&
		u.ConversationSummary == nil &&
		u.ClarityStatus == nil &&
		u.ClarificationAttempts == nil &&
		u.ClarificationQuestion == nil &&
		u.DetectedCompany == nil &&
		u.ResearchFindings == nil &&
		u.ConfidenceScore == nil &&
		u.ResearchAttempts == nil &&
		u.ValidationResult == nil &&
		u.ValidationFeedback == nil &&
		u.FinalSummary == nil &&
		u.ErrorContext == nil &&
		!u.ClearError
}

// Apply merges a partial update into the state. Last write wins per field;
// messages append in order and are never reordered or deduplicated.
func (s *ConversationState) Apply(u Update) {
	if u.Empty() {
		return
	}
	if len(u.Messages) > 0 {
		s.Messages = append(s.Messages, u.Messages...)
	}
	if u.OriginalQuery != nil {
		s.OriginalQuery = *u.OriginalQuery
	}
	if u.ConversationSummary != nil {
		s.ConversationSummary = *u.ConversationSummary
	}
	if u.ClarityStatus != nil {
		s.ClarityStatus = *u.ClarityStatus
	}
	if u.ClarificationAttempts != nil {
		s.ClarificationAttempts = *u.ClarificationAttempts
	}
	if u.ClarificationQuestion != nil {
		s.ClarificationQuestion = *u.ClarificationQuestion
	}
	if u.DetectedCompany != nil {
		s.DetectedCompany = *u.DetectedCompany
	}
	if u.ResearchFindings != nil {
		s.ResearchFindings = u.ResearchFindings
	}
	if u.ConfidenceScore != nil {
		s.ConfidenceScore = *u.ConfidenceScore
	}
	if u.ResearchAttempts != nil {
		s.ResearchAttempts = *u.ResearchAttempts
	}
	if u.ValidationResult != nil {
		s.ValidationResult = *u.ValidationResult
	}
	if u.ValidationFeedback != nil {
		s.ValidationFeedback = *u.ValidationFeedback
	}
	if u.FinalSummary != nil {
		s.FinalSummary = *u.FinalSummary
	}
	if u.ErrorContext != nil {
		s.ErrorContext = u.ErrorContext
	} else if u.ClearError {
		s.ErrorContext = nil
	}
	s.UpdatedAt = time.Now().UTC()
}

// Ptr returns a pointer to v, for building partial updates inline.
func Ptr[T any](v T) *T { return &v }
