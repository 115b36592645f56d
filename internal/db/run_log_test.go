package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	client := NewClientFromDB(sqlx.NewDb(mockDB, "sqlmock"), zap.NewNop())
	t.Cleanup(func() { _ = client.Close() })
	return client, mock
}

func TestSaveTransitionFillsDefaults(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectExec("INSERT INTO run_transitions").
		WillReturnResult(sqlmock.NewResult(1, 1))

	tr := &Transition{
		ThreadID:         "t-1",
		RunID:            "run-1",
		Agent:            "research",
		Decision:         "validator",
		ResearchAttempts: 1,
		Confidence:       4,
	}
	require.NoError(t, client.SaveTransition(context.Background(), tr))

	assert.NotZero(t, tr.ID, "id assigned on insert")
	assert.False(t, tr.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunRecord(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectExec("INSERT INTO run_results").
		WithArgs(sqlmock.AnyArg(), "t-1", "run-1", "Tell me about Tesla", "Tesla",
			"synthesis", "Tesla is an EV maker.", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rr := &RunRecord{
		ThreadID:        "t-1",
		RunID:           "run-1",
		Query:           "Tell me about Tesla",
		DetectedCompany: "Tesla",
		TerminalAgent:   "synthesis",
		FinalSummary:    "Tesla is an EV maker.",
	}
	require.NoError(t, client.SaveRunRecord(context.Background(), rr))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueTransitionWritesAsynchronously(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectExec("INSERT INTO run_transitions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectClose()

	client.EnqueueTransition(&Transition{ThreadID: "t-1", RunID: "run-1", Agent: "clarity", Decision: "research"})

	// The worker drains the queue on Close.
	require.NoError(t, client.Close())

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if mock.ExpectationsWereMet() == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}
