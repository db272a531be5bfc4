package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	api "mailping-backend/cmd/api"
	accountDelivery "mailping-backend/internal/account/delivery"
	accountdomain "mailping-backend/internal/account/domain"
	accountRepo "mailping-backend/internal/account/repository"
	accountUsecase "mailping-backend/internal/account/usecase"
	authDelivery "mailping-backend/internal/auth/delivery"
	authdomain "mailping-backend/internal/auth/domain"
	authRepo "mailping-backend/internal/auth/repository"
	authUsecase "mailping-backend/internal/auth/usecase"
	pushDelivery "mailping-backend/internal/push/delivery"
	pushdomain "mailping-backend/internal/push/domain"
	pushRepo "mailping-backend/internal/push/repository"
	pushUsecase "mailping-backend/internal/push/usecase"
	watchDelivery "mailping-backend/internal/watch/delivery"
	watchdomain "mailping-backend/internal/watch/domain"
	watchRepo "mailping-backend/internal/watch/repository"
	watchUsecase "mailping-backend/internal/watch/usecase"
	"mailping-backend/pkg/config"
	"mailping-backend/pkg/database"
	"mailping-backend/pkg/gmail"
	"mailping-backend/pkg/webpush"
)

func main() {
	// Load configuration
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&authdomain.User{},
		&authdomain.RefreshToken{},
		&accountdomain.GoogleAccount{},
		&watchdomain.WatchRegistration{},
		&pushdomain.DeviceSubscription{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	userRepository := authRepo.NewUserRepository(db)
	accountRepository := accountRepo.NewAccountRepository(db)
	registrationRepository := watchRepo.NewRegistrationRepository(db)
	subscriptionRepository := pushRepo.NewSubscriptionRepository(db)

	// Gmail adapter and Web Push client
	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret)
	pushClient := webpush.NewClient(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)

	// Initialize use cases (dependency injection)
	dispatcher := pushUsecase.NewDispatcher(subscriptionRepository, pushClient, logger)
	authUsecaseInstance := authUsecase.NewAuthUsecase(userRepository, cfg)
	linkUsecaseInstance := accountUsecase.NewLinkUsecase(accountRepository, registrationRepository, gmailService, cfg.PubSubTopic, cfg.GoogleRedirectURI, logger)
	webhookUsecaseInstance := watchUsecase.NewWebhookUsecase(registrationRepository, accountRepository, gmailService, dispatcher, cfg.PubSubTopic, logger)

	// Optional pull-mode ingestion for deployments without a public endpoint
	if cfg.PubSubPullSub != "" {
		listener, err := watchDelivery.NewPullListener(context.Background(), cfg.GoogleProjectID, cfg.PubSubPullSub, cfg.GoogleCredentials, webhookUsecaseInstance, logger)
		if err != nil {
			logger.Error("failed to initialize pubsub pull listener", "error", err)
		} else {
			go listener.Start(context.Background())
		}
	}

	verifier := watchDelivery.NewIDTokenVerifier(cfg.WebhookAudience, cfg.PubSubServiceAccount)

	// Initialize HTTP handler
	handler := api.NewHandler(api.RouterDeps{
		AuthUsecase:    authUsecaseInstance,
		AuthHandler:    authDelivery.NewAuthHandler(authUsecaseInstance),
		AccountHandler: accountDelivery.NewAccountHandler(linkUsecaseInstance),
		PushHandler:    pushDelivery.NewPushHandler(subscriptionRepository, cfg.VAPIDPublicKey),
		WebhookHandler: watchDelivery.NewWebhookHandler(verifier, webhookUsecaseInstance, logger),
	})

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
