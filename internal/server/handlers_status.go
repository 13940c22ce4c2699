package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ashita-ai/xiaoban/internal/model"
)

// StatusCommandRequest is the request body for POST /v1/status/command.
type StatusCommandRequest struct {
	Command string `json:"command"`
}

// TouchActivityRequest is the optional request body for POST /v1/activity.
type TouchActivityRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// TouchActivityResponse is the response body for POST /v1/activity.
type TouchActivityResponse struct {
	UserID     string    `json:"user_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// HandleRecordStatus handles POST /v1/status.
func (h *Handlers) HandleRecordStatus(w http.ResponseWriter, r *http.Request) {
	var req model.RecordStatusRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	h.recordStatus(w, r, req)
}

// HandleStatusCommand handles POST /v1/status/command, accepting the quick
// command form such as "/study start" or "/mood 有点累".
func (h *Handlers) HandleStatusCommand(w http.ResponseWriter, r *http.Request) {
	var req StatusCommandRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	typ, detail, err := model.ParseStatusCommand(strings.Fields(req.Command))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	h.recordStatus(w, r, model.RecordStatusRequest{
		StatusType: typ,
		Detail:     detail,
		Source:     model.SourceCommand,
	})
}

func (h *Handlers) recordStatus(w http.ResponseWriter, r *http.Request, req model.RecordStatusRequest) {
	ev, err := h.statusSvc.Record(r.Context(), req)
	if err != nil {
		h.logger.Error("record status failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to record status")
		return
	}
	writeJSON(w, r, http.StatusCreated, ev)
}

// HandleStatusToday handles GET /v1/status/today.
func (h *Handlers) HandleStatusToday(w http.ResponseWriter, r *http.Request) {
	events, err := h.statusSvc.Today(r.Context())
	if err != nil {
		h.logger.Error("read today's statuses failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to read statuses")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"statuses": nonNil(events),
		"total":    len(events),
	})
}

// HandleStatusRecent handles GET /v1/status/recent?limit=&type=.
func (h *Handlers) HandleStatusRecent(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 10)

	var (
		events []model.StatusEvent
		err    error
	)
	if typ := r.URL.Query().Get("type"); typ != "" {
		if !model.StatusType(typ).Valid() {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unknown status type "+typ)
			return
		}
		events, err = h.statusSvc.ByType(r.Context(), model.StatusType(typ), limit)
	} else {
		events, err = h.statusSvc.Recent(r.Context(), limit)
	}
	if err != nil {
		h.logger.Error("read recent statuses failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to read statuses")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"statuses": nonNil(events),
		"total":    len(events),
	})
}

// HandleTouchActivity handles POST /v1/activity. The chat front end calls
// it on every user message so idle rules measure real silence. The body is
// optional.
func (h *Handlers) HandleTouchActivity(w http.ResponseWriter, r *http.Request) {
	var req TouchActivityRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil && !errors.Is(err, errEmptyBody) {
			handleDecodeError(w, r, err)
			return
		}
	}
	userID := req.UserID
	if userID == "" {
		userID = model.DefaultUserID
	}
	at, err := h.statusSvc.Touch(r.Context(), userID)
	if err != nil {
		h.logger.Error("touch activity failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to record activity")
		return
	}
	writeJSON(w, r, http.StatusOK, TouchActivityResponse{UserID: userID, LastSeenAt: at})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
