package webpush

import (
	"context"
	"fmt"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// notificationTTL bounds how long the push service may queue a delivery
// for an offline device, in seconds.
const notificationTTL = 86400

// Subscription identifies one device endpoint and its encryption material.
type Subscription struct {
	Endpoint string
	P256dh   string
	Auth     string
}

// Result classifies a delivery attempt for one subscription.
type Result int

const (
	// Delivered means the push service accepted the notification.
	Delivered Result = iota
	// Gone means the endpoint is permanently invalid (HTTP 404/410) and
	// the subscription should be pruned.
	Gone
	// Failed means a transient or unknown failure; the subscription is
	// left intact.
	Failed
)

// Client sends Web Push notifications signed with the application's VAPID
// key pair.
type Client struct {
	publicKey  string
	privateKey string
	subscriber string
}

func NewClient(publicKey, privateKey, subscriber string) *Client {
	return &Client{
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
	}
}

// Send delivers one encrypted payload to one subscription endpoint.
func (c *Client) Send(ctx context.Context, sub Subscription, payload []byte) (Result, error) {
	target := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, target, &webpush.Options{
		Subscriber:      c.subscriber,
		VAPIDPublicKey:  c.publicKey,
		VAPIDPrivateKey: c.privateKey,
		TTL:             notificationTTL,
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		return Failed, fmt.Errorf("unable to send push notification: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Delivered, nil
	case resp.StatusCode == 404 || resp.StatusCode == 410:
		return Gone, nil
	default:
		return Failed, fmt.Errorf("push service returned status %d", resp.StatusCode)
	}
}
