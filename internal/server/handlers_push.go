package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/ashita-ai/xiaoban/internal/model"
	"github.com/ashita-ai/xiaoban/internal/storage"
)

// Test notification text, matching what the settings page shows.
const (
	pushTestTitle = "测试"
	pushTestBody  = "这是一条测试推送"
)

// HandlePushSubscribe handles POST /v1/push/subscribe. Re-subscribing an
// endpoint replaces its keys.
func (h *Handlers) HandlePushSubscribe(w http.ResponseWriter, r *http.Request) {
	var req model.SubscribeRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(true); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if err := h.store.AddSubscription(r.Context(), req.Subscription(time.Now().UTC())); err != nil {
		h.logger.Error("add push subscription failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to save subscription")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "subscribed"})
}

// HandlePushUnsubscribe handles POST /v1/push/unsubscribe. Unknown endpoints
// are not an error: the browser may unsubscribe twice.
func (h *Handlers) HandlePushUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req model.SubscribeRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(false); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	err := h.store.RemoveSubscription(r.Context(), req.Endpoint)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		h.logger.Error("remove push subscription failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to remove subscription")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

// HandleVAPIDKey handles GET /v1/push/vapid-key.
func (h *Handlers) HandleVAPIDKey(w http.ResponseWriter, r *http.Request) {
	if h.vapidPublicKey == "" {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "web push is not configured")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"public_key": h.vapidPublicKey})
}

// HandlePushTest handles POST /v1/push/test.
func (h *Handlers) HandlePushTest(w http.ResponseWriter, r *http.Request) {
	if h.pusher == nil || !h.pusher.Enabled() {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "web push is not configured")
		return
	}
	sent := h.pusher.Broadcast(r.Context(), pushTestTitle, pushTestBody)
	writeJSON(w, r, http.StatusOK, model.PushTestResponse{Sent: sent})
}
