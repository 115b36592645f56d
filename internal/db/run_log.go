package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Transition is one routing decision made during a run.
type Transition struct {
	ID                    uuid.UUID `db:"id"`
	ThreadID              string    `db:"thread_id"`
	RunID                 string    `db:"run_id"`
	Agent                 string    `db:"agent"`
	Decision              string    `db:"decision"`
	ClarificationAttempts int       `db:"clarification_attempts"`
	ResearchAttempts      int       `db:"research_attempts"`
	Confidence            int       `db:"confidence"`
	CreatedAt             time.Time `db:"created_at"`
}

// RunRecord is the terminal outcome of one top-level query.
type RunRecord struct {
	ID              uuid.UUID `db:"id"`
	ThreadID        string    `db:"thread_id"`
	RunID           string    `db:"run_id"`
	Query           string    `db:"query"`
	DetectedCompany string    `db:"detected_company"`
	TerminalAgent   string    `db:"terminal_agent"`
	FinalSummary    string    `db:"final_summary"`
	CreatedAt       time.Time `db:"created_at"`
}

const insertTransitionSQL = `
        INSERT INTO run_transitions (
            id, thread_id, run_id, agent, decision,
            clarification_attempts, research_attempts, confidence, created_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

const insertRunRecordSQL = `
        INSERT INTO run_results (
            id, thread_id, run_id, query, detected_company,
            terminal_agent, final_summary, created_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

// SaveTransition inserts a run_transitions row synchronously.
func (c *Client) SaveTransition(ctx context.Context, tr *Transition) error {
	if tr == nil {
		return nil
	}
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = time.Now().UTC()
	}
	_, err := c.db.ExecContext(ctx, insertTransitionSQL,
		tr.ID, tr.ThreadID, tr.RunID, tr.Agent, tr.Decision,
		tr.ClarificationAttempts, tr.ResearchAttempts, tr.Confidence, tr.CreatedAt)
	return err
}

// EnqueueTransition records a transition asynchronously.
func (c *Client) EnqueueTransition(tr *Transition) {
	cp := *tr
	c.enqueue(func(ctx context.Context) error {
		return c.SaveTransition(ctx, &cp)
	})
}

// SaveRunRecord inserts a run_results row synchronously.
func (c *Client) SaveRunRecord(ctx context.Context, rr *RunRecord) error {
	if rr == nil {
		return nil
	}
	if rr.ID == uuid.Nil {
		rr.ID = uuid.New()
	}
	if rr.CreatedAt.IsZero() {
		rr.CreatedAt = time.Now().UTC()
	}
	_, err := c.db.ExecContext(ctx, insertRunRecordSQL,
		rr.ID, rr.ThreadID, rr.RunID, rr.Query, rr.DetectedCompany,
		rr.TerminalAgent, rr.FinalSummary, rr.CreatedAt)
	return err
}

// EnqueueRunRecord records a terminal outcome asynchronously.
func (c *Client) EnqueueRunRecord(rr *RunRecord) {
	cp := *rr
	c.enqueue(func(ctx context.Context) error {
		return c.SaveRunRecord(ctx, &cp)
	})
}
