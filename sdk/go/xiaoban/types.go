package xiaoban

import (
	"time"

	"github.com/google/uuid"
)

// Status types accepted by RecordStatus.
const (
	StatusWake          = "wake"
	StatusSleep         = "sleep"
	StatusShower        = "shower"
	StatusMealBreakfast = "meal_breakfast"
	StatusMealLunch     = "meal_lunch"
	StatusMealDinner    = "meal_dinner"
	StatusDrink         = "drink"
	StatusStudyStart    = "study_start"
	StatusStudyEnd      = "study_end"
	StatusOut           = "out"
	StatusBack          = "back"
	StatusMood          = "mood"
	StatusNote          = "note"
)

// Sources of a status event. Only "command" counts as user activity.
const (
	SourceCommand = "command"
	SourceAI      = "ai"
)

// StatusEvent is one recorded status.
type StatusEvent struct {
	ID         uuid.UUID `json:"id"`
	StatusType string    `json:"status_type"`
	Detail     string    `json:"detail,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
	Source     string    `json:"source"`
}

// RecordStatusRequest is the input to RecordStatus. Source defaults to
// "command" on the server; RecordedAt defaults to the server's clock.
type RecordStatusRequest struct {
	StatusType string     `json:"status_type"`
	Detail     string     `json:"detail,omitempty"`
	Source     string     `json:"source,omitempty"`
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
}

// StatusList is returned by Today and Recent.
type StatusList struct {
	Statuses []StatusEvent `json:"statuses"`
	Total    int           `json:"total"`
}

// Activity is returned by TouchActivity.
type Activity struct {
	UserID     string    `json:"user_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Subscription is a browser PushSubscription as produced by
// PushManager.subscribe().toJSON().
type Subscription struct {
	Endpoint string           `json:"endpoint"`
	Keys     SubscriptionKeys `json:"keys"`
}

// SubscriptionKeys holds the client's ECDH public key and auth secret.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// FireResult is returned by Fire. Fired is false when no rule produced a
// message.
type FireResult struct {
	Fired   bool   `json:"fired"`
	RuleID  string `json:"rule_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// PendingResult is returned by TakePending. Pending is false when the queue
// was empty.
type PendingResult struct {
	Pending bool   `json:"pending"`
	Message string `json:"message,omitempty"`
}

// Rule describes one proactive rule and its cooldown.
type Rule struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Kind            string         `json:"kind"`
	Enabled         bool           `json:"enabled"`
	Probability     float64        `json:"probability"`
	CooldownMinutes int            `json:"cooldown_minutes"`
	Params          map[string]any `json:"params,omitempty"`
	PromptHint      string         `json:"prompt_hint"`
	LastFiredAt     *time.Time     `json:"last_fired_at,omitempty"`
	CoolingUntil    *time.Time     `json:"cooling_until,omitempty"`
}

// EngineStats are the proactive engine counters.
type EngineStats struct {
	Running           bool  `json:"running"`
	Ticks             int64 `json:"ticks"`
	SkippedTicks      int64 `json:"skipped_ticks"`
	Fired             int64 `json:"fired"`
	SynthesisFailures int64 `json:"synthesis_failures"`
	Pending           int   `json:"pending"`
	Dropped           int64 `json:"dropped"`
}

// Health is returned by Health.
type Health struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Store     string `json:"store"`
	Scheduler string `json:"scheduler"`
	Uptime    int64  `json:"uptime_seconds"`
}
