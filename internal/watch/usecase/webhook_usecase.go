package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	accountrepo "mailping-backend/internal/account/repository"
	pushdomain "mailping-backend/internal/push/domain"
	watchrepo "mailping-backend/internal/watch/repository"
	"mailping-backend/pkg/gmail"

	gmailapi "google.golang.org/api/gmail/v1"
)

// renewalWindow is the look-ahead horizon: a watch whose expiration falls at
// or inside it gets renewed while processing the current notification.
const renewalWindow = 3 * 24 * time.Hour

// fetchConcurrency bounds parallel message fetches within one batch.
const fetchConcurrency = 10

// Notification is the decoded inner document of a webhook envelope. Its
// HistoryID is the cursor *after* the triggering event; the registration
// holds the cursor as of the last processed notification, and the delta
// between the two is exactly the unprocessed window.
type Notification struct {
	EmailAddress string
	HistoryID    string
}

// MailboxService is the slice of the Gmail adapter the controller uses.
type MailboxService interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (*gmail.Token, error)
	RegisterWatch(ctx context.Context, creds gmail.Credentials, topic string) (*gmail.WatchResult, error)
	ListNewMessageIDs(ctx context.Context, creds gmail.Credentials, sinceHistoryID string) ([]string, error)
	FetchMessage(ctx context.Context, creds gmail.Credentials, id string) (*gmailapi.Message, error)
}

// Dispatcher fans one payload out to all of a user's devices and reports how
// many deliveries succeeded.
type Dispatcher interface {
	SendToUser(ctx context.Context, userID string, payload *pushdomain.NotificationPayload) (int, error)
}

// Result summarizes one processed notification for observability. Absorbed
// failures show up here and in the log, never as an error to the webhook
// boundary.
type Result struct {
	RegistrationFound bool
	Renewed           bool
	NewMessages       int
	Dispatched        int
}

// WebhookUsecase processes verified, decoded mailbox notifications. One
// invocation per notification; all state lives in the stores.
type WebhookUsecase interface {
	ProcessNotification(ctx context.Context, n *Notification) *Result
}

type webhookUsecase struct {
	registrations watchrepo.RegistrationRepository
	accounts      accountrepo.AccountRepository
	mailbox       MailboxService
	dispatcher    Dispatcher
	topic         string
	logger        *slog.Logger
	now           func() time.Time
}

func NewWebhookUsecase(
	registrations watchrepo.RegistrationRepository,
	accounts accountrepo.AccountRepository,
	mailbox MailboxService,
	dispatcher Dispatcher,
	topic string,
	logger *slog.Logger,
) WebhookUsecase {
	return &webhookUsecase{
		registrations: registrations,
		accounts:      accounts,
		mailbox:       mailbox,
		dispatcher:    dispatcher,
		topic:         topic,
		logger:        logger,
		now:           time.Now,
	}
}

// ProcessNotification runs the per-notification state machine: resolve the
// registration and its credential, renew the watch if it expires soon, list
// and fetch the unprocessed messages, dispatch each to the user's devices,
// then advance the cursor. Every failure past this point is absorbed and
// logged; the caller acknowledges the relay regardless, because its retry
// policy cannot distinguish permanent errors from transient ones.
func (u *webhookUsecase) ProcessNotification(ctx context.Context, n *Notification) *Result {
	result := &Result{}

	reg, err := u.registrations.FindByEmailAddress(n.EmailAddress)
	if err != nil {
		u.logger.Error("failed to look up watch registration", "email", n.EmailAddress, "error", err)
		return result
	}
	if reg == nil {
		// The relay cannot un-register itself; this mailbox is simply no
		// longer tracked, so drop the notification.
		u.logger.Warn("no watch registration for mailbox", "email", n.EmailAddress)
		return result
	}
	result.RegistrationFound = true

	account, err := u.accounts.FindByID(reg.AccountID)
	if err != nil {
		u.logger.Error("failed to load account for registration", "registration_id", reg.ID, "error", err)
		return result
	}
	if account == nil || account.RefreshToken == "" {
		// A registration without a usable credential is an inconsistency an
		// operator must fix; it must not crash the handler or cause retries.
		u.logger.Error("watch registration has no usable credential",
			"registration_id", reg.ID,
			"account_id", reg.AccountID,
			"email", n.EmailAddress,
		)
		return result
	}

	if !reg.Expiration.After(u.now().Add(renewalWindow)) {
		result.Renewed = u.renewWatch(ctx, reg.ID, account.ID, account.RefreshToken)
	}

	// Re-read tokens only if renewal refreshed them; the in-memory account
	// still carries valid (possibly soon-to-expire) credentials otherwise.
	if result.Renewed {
		if refreshed, err := u.accounts.FindByID(account.ID); err == nil && refreshed != nil {
			account = refreshed
		}
	}
	creds := gmail.Credentials{AccessToken: account.AccessToken, RefreshToken: account.RefreshToken}

	// Delta from the *stored* cursor, not the notification's. Replaying a
	// notification after the cursor has advanced yields an empty delta.
	ids, err := u.mailbox.ListNewMessageIDs(ctx, creds, reg.HistoryID)
	if err != nil {
		// Leave the cursor untouched so the next notification re-covers
		// this range; duplicates are tolerable, gaps are not.
		u.logger.Error("failed to list new messages", "email", n.EmailAddress, "since", reg.HistoryID, "error", err)
		return result
	}
	result.NewMessages = len(ids)

	for _, msg := range u.fetchMessages(ctx, creds, ids) {
		payload := buildPayload(msg)
		sent, err := u.dispatcher.SendToUser(ctx, reg.UserID, payload)
		if err != nil {
			u.logger.Error("failed to dispatch notification", "user_id", reg.UserID, "message_id", msg.ID, "error", err)
			continue
		}
		result.Dispatched += sent
	}

	// Durable checkpoint: advance to the notification's cursor only after
	// dispatch attempts for the whole batch.
	if err := u.registrations.UpdateHistoryID(reg.ID, n.HistoryID); err != nil {
		u.logger.Error("failed to advance history cursor", "registration_id", reg.ID, "history_id", n.HistoryID, "error", err)
		return result
	}

	u.logger.Info("processed mailbox notification",
		"email", n.EmailAddress,
		"history_id", n.HistoryID,
		"new_messages", result.NewMessages,
		"dispatched", result.Dispatched,
		"renewed", result.Renewed,
	)
	return result
}

// renewWatch refreshes the access token, persists it, re-registers the watch
// and persists the new cursor and expiration. Any failure is logged and
// reported as not-renewed; the current batch still goes out on the old
// watch, which may be briefly active.
func (u *webhookUsecase) renewWatch(ctx context.Context, registrationID, accountID, refreshToken string) bool {
	token, err := u.mailbox.RefreshAccessToken(ctx, refreshToken)
	if err != nil {
		u.logger.Error("failed to refresh access token for renewal", "account_id", accountID, "error", err)
		return false
	}

	if err := u.accounts.UpdateTokens(accountID, token.AccessToken, token.ExpiresAt); err != nil {
		u.logger.Error("failed to persist refreshed token", "account_id", accountID, "error", err)
		return false
	}

	creds := gmail.Credentials{AccessToken: token.AccessToken, RefreshToken: refreshToken}
	watch, err := u.mailbox.RegisterWatch(ctx, creds, u.topic)
	if err != nil {
		u.logger.Error("failed to re-register watch", "account_id", accountID, "error", err)
		return false
	}

	if err := u.registrations.UpdateWatch(registrationID, watch.HistoryID, watch.Expiration); err != nil {
		u.logger.Error("failed to persist renewed watch", "registration_id", registrationID, "error", err)
		return false
	}

	return true
}

// fetchMessages fetches and parses a batch of messages with bounded
// concurrency, preserving input order. A message the provider cannot locate
// (or any other per-message failure) is skipped and logged, never fatal to
// the batch.
func (u *webhookUsecase) fetchMessages(ctx context.Context, creds gmail.Credentials, ids []string) []*gmail.ParsedMessage {
	if len(ids) == 0 {
		return nil
	}

	fetched := make([]*gmail.ParsedMessage, len(ids))
	semaphore := make(chan struct{}, fetchConcurrency)
	done := make(chan int, len(ids))

	for i, id := range ids {
		go func(i int, id string) {
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			raw, err := u.mailbox.FetchMessage(ctx, creds, id)
			if err != nil {
				if errors.Is(err, gmail.ErrMessageNotFound) {
					u.logger.Warn("message vanished before fetch, skipping", "message_id", id)
				} else {
					u.logger.Error("failed to fetch message, skipping", "message_id", id, "error", err)
				}
				done <- i
				return
			}

			fetched[i] = gmail.ParseMessage(raw)
			done <- i
		}(i, id)
	}

	for range ids {
		<-done
	}

	messages := make([]*gmail.ParsedMessage, 0, len(ids))
	for _, msg := range fetched {
		if msg != nil {
			messages = append(messages, msg)
		}
	}
	return messages
}

// buildPayload turns one parsed message into the push payload the device
// layer renders.
func buildPayload(msg *gmail.ParsedMessage) *pushdomain.NotificationPayload {
	sender := msg.FromUser
	if sender == "" {
		sender = msg.FromEmail
	}
	if sender == "" {
		sender = msg.From
	}
	if sender == "" {
		sender = "Unknown sender"
	}

	body := msg.Subject
	if body == "" {
		body = "(no subject)"
	}

	deepLink := ""
	if msg.RFC822MessageID != "" {
		deepLink = "/message/" + url.PathEscape(msg.RFC822MessageID)
	}

	return &pushdomain.NotificationPayload{
		Title: fmt.Sprintf("New email from %s", sender),
		Body:  body,
		URL:   deepLink,
		Tag:   msg.ID,
		Email: pushdomain.EmailData{
			MessageID:  msg.ID,
			From:       msg.From,
			FromUser:   msg.FromUser,
			FromEmail:  msg.FromEmail,
			Subject:    msg.Subject,
			ReceivedAt: msg.Date,
		},
	}
}
