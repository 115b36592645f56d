// Package httpapi exposes the orchestrator over HTTP: thread operations,
// state inspection, and event streaming via SSE and WebSocket.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/firmlens/orchestrator/internal/checkpoint"
	"github.com/firmlens/orchestrator/internal/engine"
)

// ThreadHandler serves the thread lifecycle endpoints.
type ThreadHandler struct {
	engine *engine.Engine
	store  checkpoint.Store
	logger *zap.Logger
}

func NewThreadHandler(eng *engine.Engine, store checkpoint.Store, logger *zap.Logger) *ThreadHandler {
	return &ThreadHandler{engine: eng, store: store, logger: logger}
}

// RegisterRoutes registers thread routes on the provided mux.
func (h *ThreadHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /threads/{id}/query", h.handleQuery)
	mux.HandleFunc("POST /threads/{id}/resume", h.handleResume)
	mux.HandleFunc("GET /threads/{id}", h.handleGet)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

type queryRequest struct {
	Query string `json:"query"`
}

// handleQuery starts a new top-level query on the thread.
// POST /threads/{id}/query {"query": "..."}
func (h *ThreadHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	out, err := h.engine.Start(r.Context(), threadID, req.Query)
	if err != nil {
		h.logger.Error("Query failed",
			zap.String("thread_id", threadID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type resumeRequest struct {
	Answer string `json:"answer"`
}

// handleResume supplies the clarification answer to a suspended thread.
// POST /threads/{id}/resume {"answer": "..."}
func (h *ThreadHandler) handleResume(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")

	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Answer == "" {
		writeError(w, http.StatusBadRequest, "answer is required")
		return
	}

	out, err := h.engine.Resume(r.Context(), threadID, req.Answer)
	switch {
	case errors.Is(err, engine.ErrUnknownThread):
		writeError(w, http.StatusNotFound, "unknown thread")
		return
	case errors.Is(err, engine.ErrNotSuspended):
		writeError(w, http.StatusConflict, "thread is not awaiting input")
		return
	case err != nil:
		h.logger.Error("Resume failed",
			zap.String("thread_id", threadID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "resume failed")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGet returns the thread's checkpointed state.
// GET /threads/{id}
func (h *ThreadHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")

	st, err := h.store.Load(r.Context(), threadID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown thread")
		return
	}
	if err != nil {
		h.logger.Error("State load failed",
			zap.String("thread_id", threadID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "state load failed")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *ThreadHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
