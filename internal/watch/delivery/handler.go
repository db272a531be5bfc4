package delivery

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"mailping-backend/internal/watch/dto"
	"mailping-backend/internal/watch/usecase"

	"github.com/gin-gonic/gin"
)

// WebhookHandler terminates the push relay's HTTP contract. Only the two
// validation steps here may produce a non-200 response: a bad token is 401
// and a malformed envelope is 400. Everything downstream is absorbed by the
// usecase and acknowledged with 200 to keep the relay from retrying
// permanent errors forever.
type WebhookHandler struct {
	verifier TokenVerifier
	usecase  usecase.WebhookUsecase
	logger   *slog.Logger
}

func NewWebhookHandler(verifier TokenVerifier, uc usecase.WebhookUsecase, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier: verifier,
		usecase:  uc,
		logger:   logger,
	}
}

func (h *WebhookHandler) HandleGmailNotification(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")
	if err := h.verifier.Verify(c.Request.Context(), token); err != nil {
		h.logger.Warn("rejected webhook request", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	var envelope dto.PubSubEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed envelope"})
		return
	}

	decoded, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message data is not valid base64"})
		return
	}

	var notification dto.GmailNotification
	if err := json.Unmarshal(decoded, &notification); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message data is not valid JSON"})
		return
	}
	if notification.EmailAddress == "" || notification.HistoryID.String() == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "notification missing emailAddress or historyId"})
		return
	}

	// From here on every outcome acknowledges, including "mailbox not
	// tracked" and absorbed processing errors.
	h.usecase.ProcessNotification(c.Request.Context(), &usecase.Notification{
		EmailAddress: notification.EmailAddress,
		HistoryID:    notification.HistoryID.String(),
	})

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
