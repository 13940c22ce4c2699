package push

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/ashita-ai/xiaoban/internal/model"
)

var (
	// ErrNotConfigured means VAPID keys are missing, so nothing can be sent.
	ErrNotConfigured = errors.New("push: VAPID keys not configured")
	// ErrSubscriptionGone means the push service reported the endpoint as
	// expired or unknown (404/410); the subscription should be removed.
	ErrSubscriptionGone = errors.New("push: subscription gone")
)

// DefaultTTL is how long the push service should hold an undelivered message.
const DefaultTTL = 24 * time.Hour

// Sender delivers one encrypted message to one subscription.
type Sender struct {
	vapid      *VAPID
	httpClient *http.Client
	ttl        time.Duration
}

// NewSender creates a sender signing with vapid.
func NewSender(vapid *VAPID) *Sender {
	return &Sender{
		vapid:      vapid,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		ttl:        DefaultTTL,
	}
}

// Send encrypts payload for sub (RFC 8291 aes128gcm) and posts it to the
// subscription endpoint with a VAPID authorization header.
func (s *Sender) Send(ctx context.Context, sub model.PushSubscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
	}, &webpush.Options{
		HTTPClient:      s.httpClient,
		Subscriber:      s.vapid.subscriber(),
		TTL:             int(s.ttl / time.Second),
		Urgency:         webpush.UrgencyNormal,
		VAPIDPublicKey:  s.vapid.publicKey,
		VAPIDPrivateKey: s.vapid.privateKey,
	})
	if err != nil {
		return fmt.Errorf("push: send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: status %d", ErrSubscriptionGone, resp.StatusCode)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
}
