// Package push delivers Web Push notifications (RFC 8030) to browsers that
// subscribed through the PWA. Encryption and VAPID signing come from
// webpush-go; this package owns subscription pruning and fan-out.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/xiaoban/internal/model"
	"github.com/ashita-ai/xiaoban/internal/storage"
)

// DefaultIcon is the PWA icon shown with notifications.
const DefaultIcon = "/icon-192.png"

// maxConcurrentSends bounds parallel deliveries during a broadcast.
const maxConcurrentSends = 8

// SubscriptionStore is the storage surface the broadcaster needs.
type SubscriptionStore interface {
	ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error)
	RemoveSubscription(ctx context.Context, endpoint string) error
}

// Deliverer sends one payload to one subscription. *Sender implements it.
type Deliverer interface {
	Send(ctx context.Context, sub model.PushSubscription, payload []byte) error
}

// Notification is the JSON payload the service worker renders.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
	Badge string `json:"badge,omitempty"`
}

// Broadcaster fans a notification out to every stored subscription.
type Broadcaster struct {
	store  SubscriptionStore
	sender Deliverer // nil when VAPID is not configured
	icon   string
	logger *slog.Logger
}

// NewBroadcaster creates a broadcaster. A nil sender makes every broadcast
// a logged no-op returning 0.
func NewBroadcaster(store SubscriptionStore, sender Deliverer, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{store: store, sender: sender, icon: DefaultIcon, logger: logger}
}

// Enabled reports whether pushes can actually be sent.
func (b *Broadcaster) Enabled() bool { return b.sender != nil }

// Broadcast sends title/body to all subscriptions and returns the number of
// successful deliveries. Individual failures are logged; endpoints the push
// service reports as gone are removed.
func (b *Broadcaster) Broadcast(ctx context.Context, title, body string) int {
	if b.sender == nil {
		b.logger.Debug("push: broadcast skipped, VAPID not configured")
		return 0
	}

	subs, err := b.store.ListSubscriptions(ctx)
	if err != nil {
		b.logger.Error("push: list subscriptions", "error", err)
		return 0
	}
	if len(subs) == 0 {
		return 0
	}

	payload, err := json.Marshal(Notification{Title: title, Body: body, Icon: b.icon, Badge: b.icon})
	if err != nil {
		b.logger.Error("push: encode notification", "error", err)
		return 0
	}

	var sent atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSends)
	for _, sub := range subs {
		g.Go(func() error {
			// Per-subscription failures never cancel the group.
			err := b.sender.Send(gctx, sub, payload)
			switch {
			case err == nil:
				sent.Add(1)
			case errors.Is(err, ErrSubscriptionGone):
				b.prune(ctx, sub.Endpoint)
			default:
				b.logger.Warn("push: delivery failed", "endpoint", redactEndpoint(sub.Endpoint), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	n := int(sent.Load())
	b.logger.Info("push: broadcast complete", "sent", n, "subscriptions", len(subs))
	return n
}

func (b *Broadcaster) prune(ctx context.Context, endpoint string) {
	err := b.store.RemoveSubscription(ctx, endpoint)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		b.logger.Warn("push: remove stale subscription", "endpoint", redactEndpoint(endpoint), "error", err)
		return
	}
	b.logger.Info("push: removed stale subscription", "endpoint", redactEndpoint(endpoint))
}

// redactEndpoint truncates an endpoint so its capability token is not logged.
func redactEndpoint(endpoint string) string {
	const keep = 40
	if len(endpoint) <= keep {
		return endpoint
	}
	return endpoint[:keep] + "..."
}
