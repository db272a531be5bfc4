package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	pushdomain "mailping-backend/internal/push/domain"
	"mailping-backend/internal/push/repository"
	"mailping-backend/pkg/webpush"
)

// PushSender delivers one encrypted payload to one endpoint.
type PushSender interface {
	Send(ctx context.Context, sub webpush.Subscription, payload []byte) (webpush.Result, error)
}

// Dispatcher fans notification payloads out to every device a user has
// registered, pruning endpoints the push service reports as gone.
type Dispatcher struct {
	subscriptions repository.SubscriptionRepository
	sender        PushSender
	logger        *slog.Logger
}

func NewDispatcher(subscriptions repository.SubscriptionRepository, sender PushSender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		subscriptions: subscriptions,
		sender:        sender,
		logger:        logger,
	}
}

// SendToUser delivers the payload to all of the user's device subscriptions
// concurrently and returns the number of successful deliveries. Per-device
// failures are independent: one dead endpoint never blocks the rest. A user
// with no subscriptions yields 0 with no error.
func (d *Dispatcher) SendToUser(ctx context.Context, userID string, payload *pushdomain.NotificationPayload) (int, error) {
	subs, err := d.subscriptions.FindByUserID(userID)
	if err != nil {
		return 0, fmt.Errorf("unable to load device subscriptions: %v", err)
	}
	if len(subs) == 0 {
		d.logger.Debug("no device subscriptions for user", "user_id", userID)
		return 0, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("unable to encode notification payload: %v", err)
	}

	var delivered atomic.Int64
	var wg sync.WaitGroup

	for _, sub := range subs {
		wg.Add(1)
		go func(sub pushdomain.DeviceSubscription) {
			defer wg.Done()
			if d.sendToSubscription(ctx, sub, body) {
				delivered.Add(1)
			}
		}(sub)
	}
	wg.Wait()

	d.logger.Info("push notifications sent to user",
		"user_id", userID,
		"total", len(subs),
		"delivered", delivered.Load(),
	)
	return int(delivered.Load()), nil
}

// sendToSubscription attempts one delivery. A gone endpoint is pruned from
// the store and counted as a failure; transient failures leave the
// subscription intact.
func (d *Dispatcher) sendToSubscription(ctx context.Context, sub pushdomain.DeviceSubscription, body []byte) bool {
	result, err := d.sender.Send(ctx, webpush.Subscription{
		Endpoint: sub.Endpoint,
		P256dh:   sub.P256dh,
		Auth:     sub.Auth,
	}, body)

	switch result {
	case webpush.Delivered:
		return true
	case webpush.Gone:
		d.logger.Info("subscription no longer valid, removing", "endpoint", truncateEndpoint(sub.Endpoint))
		if err := d.subscriptions.DeleteByEndpoint(sub.Endpoint); err != nil {
			d.logger.Error("failed to prune dead subscription", "endpoint", truncateEndpoint(sub.Endpoint), "error", err)
		}
		return false
	default:
		d.logger.Error("push delivery failed", "endpoint", truncateEndpoint(sub.Endpoint), "error", err)
		return false
	}
}

// truncateEndpoint keeps endpoint URLs out of logs past the origin; the
// path segment is effectively a capability token.
func truncateEndpoint(endpoint string) string {
	if len(endpoint) <= 50 {
		return endpoint
	}
	return endpoint[:50] + "..."
}
