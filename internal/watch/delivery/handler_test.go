package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"mailping-backend/internal/watch/usecase"

	"github.com/gin-gonic/gin"
)

type mockVerifier struct {
	err error
}

func (m *mockVerifier) Verify(ctx context.Context, token string) error {
	return m.err
}

type mockUsecase struct {
	notifications []*usecase.Notification
}

func (m *mockUsecase) ProcessNotification(ctx context.Context, n *usecase.Notification) *usecase.Result {
	m.notifications = append(m.notifications, n)
	return &usecase.Result{}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupRouter(verifier TokenVerifier, uc usecase.WebhookUsecase) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewWebhookHandler(verifier, uc, testLogger())
	r.POST("/api/webhook/gmail", handler.HandleGmailNotification)
	return r
}

func envelope(t *testing.T, emailAddress string, historyID any) []byte {
	t.Helper()
	inner, err := json.Marshal(map[string]any{
		"emailAddress": emailAddress,
		"historyId":    historyID,
	})
	if err != nil {
		t.Fatal(err)
	}
	body, err := json.Marshal(map[string]any{
		"message": map[string]any{
			"data":      base64.StdEncoding.EncodeToString(inner),
			"messageId": "pubsub-1",
		},
		"subscription": "projects/p/subscriptions/s",
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func post(r *gin.Engine, body []byte, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/gmail", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookMissingToken(t *testing.T) {
	uc := &mockUsecase{}
	r := setupRouter(&mockVerifier{}, uc)

	w := post(r, envelope(t, "user@example.com", 150), "")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if len(uc.notifications) != 0 {
		t.Error("usecase reached despite missing token")
	}
}

func TestWebhookInvalidToken(t *testing.T) {
	uc := &mockUsecase{}
	r := setupRouter(&mockVerifier{err: errors.New("bad signature")}, uc)

	w := post(r, envelope(t, "user@example.com", 150), "forged")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if len(uc.notifications) != 0 {
		t.Error("usecase reached despite invalid token")
	}
}

func TestWebhookMalformedEnvelope(t *testing.T) {
	uc := &mockUsecase{}
	r := setupRouter(&mockVerifier{}, uc)

	w := post(r, []byte("{not json"), "valid")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestWebhookDataNotBase64(t *testing.T) {
	uc := &mockUsecase{}
	r := setupRouter(&mockVerifier{}, uc)

	body, _ := json.Marshal(map[string]any{
		"message": map[string]any{"data": "%%%not-base64%%%"},
	})
	w := post(r, body, "valid")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if len(uc.notifications) != 0 {
		t.Error("usecase reached despite undecodable data")
	}
}

func TestWebhookMissingFields(t *testing.T) {
	uc := &mockUsecase{}
	r := setupRouter(&mockVerifier{}, uc)

	w := post(r, envelope(t, "", 150), "valid")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestWebhookHappyPath(t *testing.T) {
	uc := &mockUsecase{}
	r := setupRouter(&mockVerifier{}, uc)

	// historyId arrives as a JSON number from the relay.
	w := post(r, envelope(t, "user@example.com", 123456), "valid")

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if len(uc.notifications) != 1 {
		t.Fatalf("usecase calls = %d, want 1", len(uc.notifications))
	}
	n := uc.notifications[0]
	if n.EmailAddress != "user@example.com" {
		t.Errorf("email = %q", n.EmailAddress)
	}
	if n.HistoryID != "123456" {
		t.Errorf("historyID = %q, want the number preserved as a string", n.HistoryID)
	}
}

func TestWebhookAcksUnknownMailbox(t *testing.T) {
	// Processing outcomes never surface as HTTP errors; the relay would
	// retry a permanent condition forever.
	uc := &mockUsecase{}
	r := setupRouter(&mockVerifier{}, uc)

	w := post(r, envelope(t, "untracked@example.com", 99), "valid")

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var resp map[string]bool
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || !resp["ok"] {
		t.Errorf("body = %s", w.Body.String())
	}
}
