package server

import (
	"net/http"

	"github.com/ashita-ai/xiaoban/internal/model"
)

func (h *Handlers) requireEngine(w http.ResponseWriter, r *http.Request) bool {
	if h.engine == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "proactive engine is disabled")
		return false
	}
	return true
}

// HandleProactiveFire handles POST /v1/proactive/fire. It runs one
// evaluation pass immediately; a fired message is pushed but not queued.
func (h *Handlers) HandleProactiveFire(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w, r) {
		return
	}
	f, ok := h.engine.FireNow(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusOK, model.FireResponse{Fired: false})
		return
	}
	writeJSON(w, r, http.StatusOK, model.FireResponse{Fired: true, RuleID: f.RuleID, Message: f.Message})
}

// HandleProactivePending handles GET /v1/proactive/pending. Each queued
// message is returned exactly once.
func (h *Handlers) HandleProactivePending(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w, r) {
		return
	}
	msg, ok := h.engine.TakePending()
	writeJSON(w, r, http.StatusOK, model.PendingResponse{Pending: ok, Message: msg})
}

// HandleProactiveRules handles GET /v1/proactive/rules.
func (h *Handlers) HandleProactiveRules(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w, r) {
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"rules": h.engine.Rules()})
}

// HandleProactiveStats handles GET /v1/proactive/stats.
func (h *Handlers) HandleProactiveStats(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w, r) {
		return
	}
	writeJSON(w, r, http.StatusOK, h.engine.Stats())
}
