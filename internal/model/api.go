package model

import "time"

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeUnavailable   = "UNAVAILABLE"
)

// FireResponse is the response body for POST /v1/proactive/fire. Message is
// empty when nothing fired.
type FireResponse struct {
	Fired   bool   `json:"fired"`
	RuleID  string `json:"rule_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// PendingResponse is the response body for GET /v1/proactive/pending.
// Pending is false when the queue was empty.
type PendingResponse struct {
	Pending bool   `json:"pending"`
	Message string `json:"message,omitempty"`
}

// PushTestResponse is the response body for POST /v1/push/test.
type PushTestResponse struct {
	Sent int `json:"sent"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Store     string `json:"store"`
	Scheduler string `json:"scheduler"`
	Uptime    int64  `json:"uptime_seconds"`
}
