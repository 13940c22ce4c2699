package model

import (
	"fmt"
	"net/url"
	"time"
)

// DefaultUserID is the owner assigned to subscriptions that don't name one.
const DefaultUserID = "default"

// SubscriptionKeys are the browser-generated keys from PushSubscription.toJSON().
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushSubscription is a registered Web Push endpoint.
type PushSubscription struct {
	Endpoint  string           `json:"endpoint"`
	Keys      SubscriptionKeys `json:"keys"`
	UserID    string           `json:"user_id"`
	CreatedAt time.Time        `json:"created_at"`
}

// SubscribeRequest is the request body for POST /v1/push/subscribe and /unsubscribe.
type SubscribeRequest struct {
	Endpoint string           `json:"endpoint"`
	Keys     SubscriptionKeys `json:"keys"`
	UserID   string           `json:"user_id,omitempty"`
}

// Validate checks that the endpoint is an https URL and, when requireKeys is
// set, that both client keys are present.
func (r *SubscribeRequest) Validate(requireKeys bool) error {
	u, err := url.Parse(r.Endpoint)
	if err != nil || u.Host == "" {
		return fmt.Errorf("endpoint must be an absolute URL")
	}
	if u.Scheme != "https" {
		return fmt.Errorf("endpoint must use https")
	}
	if requireKeys && (r.Keys.P256dh == "" || r.Keys.Auth == "") {
		return fmt.Errorf("keys.p256dh and keys.auth are required")
	}
	if r.UserID == "" {
		r.UserID = DefaultUserID
	}
	return nil
}

// Subscription converts the request into a PushSubscription.
func (r SubscribeRequest) Subscription(now time.Time) PushSubscription {
	return PushSubscription{
		Endpoint:  r.Endpoint,
		Keys:      r.Keys,
		UserID:    r.UserID,
		CreatedAt: now,
	}
}
