package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	pushdomain "mailping-backend/internal/push/domain"
	"mailping-backend/pkg/webpush"
)

type mockSubscriptionRepo struct {
	mu      sync.Mutex
	subs    map[string][]pushdomain.DeviceSubscription // keyed by user ID
	deleted []string
}

func (m *mockSubscriptionRepo) Upsert(sub *pushdomain.DeviceSubscription) error { return nil }

func (m *mockSubscriptionRepo) FindByUserID(userID string) ([]pushdomain.DeviceSubscription, error) {
	return m.subs[userID], nil
}

func (m *mockSubscriptionRepo) DeleteByEndpoint(endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, endpoint)
	return nil
}

func (m *mockSubscriptionRepo) DeleteByEndpointAndUser(endpoint, userID string) error { return nil }

type mockSender struct {
	mu       sync.Mutex
	results  map[string]webpush.Result // keyed by endpoint
	payloads [][]byte
}

func (m *mockSender) Send(ctx context.Context, sub webpush.Subscription, payload []byte) (webpush.Result, error) {
	m.mu.Lock()
	m.payloads = append(m.payloads, payload)
	m.mu.Unlock()

	result, ok := m.results[sub.Endpoint]
	if !ok {
		return webpush.Delivered, nil
	}
	if result == webpush.Failed {
		return webpush.Failed, errors.New("push service unavailable")
	}
	return result, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sub(endpoint string) pushdomain.DeviceSubscription {
	return pushdomain.DeviceSubscription{
		ID:       "sub-" + endpoint,
		UserID:   "user-1",
		Endpoint: endpoint,
		P256dh:   "p256dh-key",
		Auth:     "auth-secret",
	}
}

func testPayload() *pushdomain.NotificationPayload {
	return &pushdomain.NotificationPayload{
		Title: "New email from Alice",
		Body:  "Lunch?",
		Tag:   "m1",
	}
}

func TestSendToUserNoSubscriptions(t *testing.T) {
	repo := &mockSubscriptionRepo{subs: map[string][]pushdomain.DeviceSubscription{}}
	d := NewDispatcher(repo, &mockSender{}, testLogger())

	sent, err := d.SendToUser(context.Background(), "user-1", testPayload())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 0 {
		t.Errorf("sent = %d, want 0", sent)
	}
}

func TestSendToUserAllDelivered(t *testing.T) {
	repo := &mockSubscriptionRepo{subs: map[string][]pushdomain.DeviceSubscription{
		"user-1": {sub("https://push.example/a"), sub("https://push.example/b")},
	}}
	sender := &mockSender{}
	d := NewDispatcher(repo, sender, testLogger())

	sent, err := d.SendToUser(context.Background(), "user-1", testPayload())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 2 {
		t.Errorf("sent = %d, want 2", sent)
	}

	var decoded pushdomain.NotificationPayload
	if err := json.Unmarshal(sender.payloads[0], &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if decoded.Title != "New email from Alice" {
		t.Errorf("payload title = %q", decoded.Title)
	}
}

func TestSendToUserPrunesGoneEndpoints(t *testing.T) {
	repo := &mockSubscriptionRepo{subs: map[string][]pushdomain.DeviceSubscription{
		"user-1": {sub("https://push.example/live"), sub("https://push.example/dead")},
	}}
	sender := &mockSender{results: map[string]webpush.Result{
		"https://push.example/dead": webpush.Gone,
	}}
	d := NewDispatcher(repo, sender, testLogger())

	sent, err := d.SendToUser(context.Background(), "user-1", testPayload())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 1 {
		t.Errorf("sent = %d, want 1", sent)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != "https://push.example/dead" {
		t.Errorf("deleted = %v, want the dead endpoint only", repo.deleted)
	}
}

func TestSendToUserTransientFailureKeepsSubscription(t *testing.T) {
	repo := &mockSubscriptionRepo{subs: map[string][]pushdomain.DeviceSubscription{
		"user-1": {sub("https://push.example/flaky"), sub("https://push.example/ok")},
	}}
	sender := &mockSender{results: map[string]webpush.Result{
		"https://push.example/flaky": webpush.Failed,
	}}
	d := NewDispatcher(repo, sender, testLogger())

	sent, err := d.SendToUser(context.Background(), "user-1", testPayload())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 1 {
		t.Errorf("sent = %d, want 1", sent)
	}
	if len(repo.deleted) != 0 {
		t.Errorf("deleted = %v, transient failures must not prune", repo.deleted)
	}
}

func TestTruncateEndpoint(t *testing.T) {
	short := "https://push.example/x"
	if got := truncateEndpoint(short); got != short {
		t.Errorf("short endpoint altered: %q", got)
	}

	long := "https://push.example/" + string(make([]byte, 100))
	got := truncateEndpoint(long)
	if len(got) != 53 {
		t.Errorf("truncated length = %d, want 53", len(got))
	}
}
