package api

import (
	"net/http"

	accountDelivery "mailping-backend/internal/account/delivery"
	authDelivery "mailping-backend/internal/auth/delivery"
	authUsecase "mailping-backend/internal/auth/usecase"
	pushDelivery "mailping-backend/internal/push/delivery"
	watchDelivery "mailping-backend/internal/watch/delivery"

	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	AuthUsecase    authUsecase.AuthUsecase
	AuthHandler    *authDelivery.AuthHandler
	AccountHandler *accountDelivery.AccountHandler
	PushHandler    *pushDelivery.PushHandler
	WebhookHandler *watchDelivery.WebhookHandler
}

func SetupRoutes(r *gin.Engine, deps RouterDeps) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Inbound webhook from the push relay. No app auth; the handler
		// verifies the relay's signed token itself.
		api.POST("/webhook/gmail", deps.WebhookHandler.HandleGmailNotification)

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/register", deps.AuthHandler.Register)
			auth.POST("/login", deps.AuthHandler.Login)
			auth.POST("/google", deps.AuthHandler.GoogleSignIn)
			auth.POST("/refresh", deps.AuthHandler.RefreshToken)
			auth.POST("/logout", deps.AuthHandler.Logout)
			auth.GET("/me", authDelivery.AuthMiddleware(deps.AuthUsecase), deps.AuthHandler.Me)
		}

		// Linked mailbox accounts (protected)
		accounts := api.Group("/accounts")
		accounts.Use(authDelivery.AuthMiddleware(deps.AuthUsecase))
		{
			accounts.GET("", deps.AccountHandler.List)
			accounts.POST("", deps.AccountHandler.Link)
			accounts.DELETE("/:id", deps.AccountHandler.Unlink)
		}

		// Device push subscriptions (protected except the public key)
		push := api.Group("/push")
		{
			push.GET("/key", deps.PushHandler.PublicKey)
			push.POST("/subscribe", authDelivery.AuthMiddleware(deps.AuthUsecase), deps.PushHandler.Subscribe)
			push.POST("/unsubscribe", authDelivery.AuthMiddleware(deps.AuthUsecase), deps.PushHandler.Unsubscribe)
		}
	}
}
