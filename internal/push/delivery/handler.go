package delivery

import (
	"net/http"

	pushdomain "mailping-backend/internal/push/domain"
	"mailping-backend/internal/push/repository"

	"github.com/gin-gonic/gin"
)

type PushHandler struct {
	subscriptions  repository.SubscriptionRepository
	vapidPublicKey string
}

func NewPushHandler(subscriptions repository.SubscriptionRepository, vapidPublicKey string) *PushHandler {
	return &PushHandler{
		subscriptions:  subscriptions,
		vapidPublicKey: vapidPublicKey,
	}
}

type subscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	P256dh   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

// Subscribe registers (or refreshes) a device push subscription. Idempotent:
// the endpoint is the key, so re-subscribing updates in place.
func (h *PushHandler) Subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint, p256dh and auth are required"})
		return
	}

	sub := &pushdomain.DeviceSubscription{
		UserID:    c.GetString("userID"),
		Endpoint:  req.Endpoint,
		P256dh:    req.P256dh,
		Auth:      req.Auth,
		UserAgent: c.GetHeader("User-Agent"),
	}
	if err := h.subscriptions.Upsert(sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
}

// Unsubscribe removes a device subscription, but only if the endpoint
// belongs to the calling user.
func (h *PushHandler) Unsubscribe(c *gin.Context) {
	var req unsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint is required"})
		return
	}

	if err := h.subscriptions.DeleteByEndpointAndUser(req.Endpoint, c.GetString("userID")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// PublicKey exposes the VAPID public key the device layer needs for
// PushManager.subscribe.
func (h *PushHandler) PublicKey(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"key": h.vapidPublicKey})
}
