package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"mailping-backend/internal/watch/dto"
	"mailping-backend/internal/watch/usecase"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// PullListener is the alternative ingestion path for deployments without a
// public HTTPS endpoint: it pulls the same notifications from a Pub/Sub
// subscription and feeds them to the same controller. Pulled messages skip
// the webhook's token verification — the subscription itself is the trust
// boundary — but get the same envelope validation.
type PullListener struct {
	client  *pubsub.Client
	subName string
	usecase usecase.WebhookUsecase
	logger  *slog.Logger
}

func NewPullListener(ctx context.Context, projectID, subName, credentialsFile string, uc usecase.WebhookUsecase, logger *slog.Logger) (*PullListener, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %v", err)
	}

	return &PullListener{
		client:  client,
		subName: subName,
		usecase: uc,
		logger:  logger,
	}, nil
}

// Start blocks receiving messages until ctx is cancelled. Malformed
// messages are acked and dropped — redelivery cannot fix them.
func (l *PullListener) Start(ctx context.Context) {
	sub := l.client.Subscription(l.subName)

	exists, err := sub.Exists(ctx)
	if err != nil {
		l.logger.Error("failed to check pubsub subscription", "subscription", l.subName, "error", err)
		return
	}
	if !exists {
		l.logger.Error("pubsub subscription does not exist", "subscription", l.subName)
		return
	}

	l.logger.Info("listening for mailbox notifications", "subscription", l.subName)

	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		defer msg.Ack()

		var notification dto.GmailNotification
		if err := json.Unmarshal(msg.Data, &notification); err != nil {
			l.logger.Warn("dropping malformed pubsub message", "message_id", msg.ID, "error", err)
			return
		}
		if notification.EmailAddress == "" || notification.HistoryID.String() == "" {
			l.logger.Warn("dropping incomplete pubsub message", "message_id", msg.ID)
			return
		}

		l.usecase.ProcessNotification(ctx, &usecase.Notification{
			EmailAddress: notification.EmailAddress,
			HistoryID:    notification.HistoryID.String(),
		})
	})
	if err != nil {
		l.logger.Error("pubsub receive stopped", "subscription", l.subName, "error", err)
	}
}
