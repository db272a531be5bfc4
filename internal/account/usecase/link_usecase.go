package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	accountdomain "mailping-backend/internal/account/domain"
	accountrepo "mailping-backend/internal/account/repository"
	watchdomain "mailping-backend/internal/watch/domain"
	watchrepo "mailping-backend/internal/watch/repository"
	"mailping-backend/pkg/gmail"

	"golang.org/x/oauth2"
)

// ErrAlreadyWatched means the mailbox already has an active watch
// registration, possibly owned by another user.
var ErrAlreadyWatched = errors.New("mailbox is already linked")

// ErrNoRefreshToken means the OAuth consent did not grant offline access;
// the user has to re-consent.
var ErrNoRefreshToken = errors.New("no refresh token granted, re-consent required")

// LinkedAccount is the caller-facing view of one linked mailbox.
type LinkedAccount struct {
	ID           string    `json:"id"`
	EmailAddress string    `json:"email_address"`
	CreatedAt    time.Time `json:"created_at"`
}

// GmailService is the slice of the Gmail adapter used for linking.
type GmailService interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (*oauth2.Token, error)
	GetProfile(ctx context.Context, creds gmail.Credentials) (string, error)
	RegisterWatch(ctx context.Context, creds gmail.Credentials, topic string) (*gmail.WatchResult, error)
	StopWatch(ctx context.Context, creds gmail.Credentials) error
}

// LinkUsecase manages the lifecycle of linked Google accounts and their
// watch registrations.
type LinkUsecase interface {
	LinkGoogleAccount(ctx context.Context, userID, code string) (*LinkedAccount, error)
	ListLinkedAccounts(userID string) ([]LinkedAccount, error)
	UnlinkAccount(ctx context.Context, userID, accountID string) error
}

type linkUsecase struct {
	accounts      accountrepo.AccountRepository
	registrations watchrepo.RegistrationRepository
	gmailService  GmailService
	topic         string
	redirectURI   string
	logger        *slog.Logger
}

func NewLinkUsecase(
	accounts accountrepo.AccountRepository,
	registrations watchrepo.RegistrationRepository,
	gmailService GmailService,
	topic, redirectURI string,
	logger *slog.Logger,
) LinkUsecase {
	return &linkUsecase{
		accounts:      accounts,
		registrations: registrations,
		gmailService:  gmailService,
		topic:         topic,
		redirectURI:   redirectURI,
		logger:        logger,
	}
}

// LinkGoogleAccount exchanges the OAuth code, stores the credential and
// registers the mailbox watch. Account and registration are created as one
// unit from the caller's perspective: if watch registration fails, the
// just-created account is rolled back.
func (u *linkUsecase) LinkGoogleAccount(ctx context.Context, userID, code string) (*LinkedAccount, error) {
	token, err := u.gmailService.ExchangeCode(ctx, code, u.redirectURI)
	if err != nil {
		return nil, err
	}
	if token.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	creds := gmail.Credentials{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken}

	emailAddress, err := u.gmailService.GetProfile(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve mailbox address: %v", err)
	}

	existing, err := u.registrations.FindByEmailAddress(emailAddress)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyWatched
	}

	account := &accountdomain.GoogleAccount{
		UserID:               userID,
		EmailAddress:         emailAddress,
		AccessToken:          token.AccessToken,
		RefreshToken:         token.RefreshToken,
		AccessTokenExpiresAt: token.Expiry,
	}
	if err := u.accounts.Create(account); err != nil {
		return nil, err
	}

	watch, err := u.gmailService.RegisterWatch(ctx, creds, u.topic)
	if err != nil {
		// Roll back the credential so a retry starts clean.
		if delErr := u.accounts.Delete(account.ID); delErr != nil {
			u.logger.Error("failed to roll back account after watch failure", "account_id", account.ID, "error", delErr)
		}
		return nil, fmt.Errorf("unable to register mailbox watch: %v", err)
	}

	registration := &watchdomain.WatchRegistration{
		AccountID:    account.ID,
		UserID:       userID,
		EmailAddress: emailAddress,
		HistoryID:    watch.HistoryID,
		Expiration:   watch.Expiration,
	}
	if err := u.registrations.Create(registration); err != nil {
		if delErr := u.accounts.Delete(account.ID); delErr != nil {
			u.logger.Error("failed to roll back account after registration failure", "account_id", account.ID, "error", delErr)
		}
		return nil, err
	}

	u.logger.Info("linked mailbox", "user_id", userID, "email", emailAddress, "expiration", watch.Expiration)

	return &LinkedAccount{
		ID:           account.ID,
		EmailAddress: emailAddress,
		CreatedAt:    account.CreatedAt,
	}, nil
}

func (u *linkUsecase) ListLinkedAccounts(userID string) ([]LinkedAccount, error) {
	accounts, err := u.accounts.FindByUserID(userID)
	if err != nil {
		return nil, err
	}

	linked := make([]LinkedAccount, 0, len(accounts))
	for _, account := range accounts {
		linked = append(linked, LinkedAccount{
			ID:           account.ID,
			EmailAddress: account.EmailAddress,
			CreatedAt:    account.CreatedAt,
		})
	}
	return linked, nil
}

// UnlinkAccount removes the account and its watch registration. Stopping
// the provider-side watch is best-effort: removal proceeds even when the
// stop call fails.
func (u *linkUsecase) UnlinkAccount(ctx context.Context, userID, accountID string) error {
	account, err := u.accounts.FindByID(accountID)
	if err != nil {
		return err
	}
	if account == nil || account.UserID != userID {
		return errors.New("account not found")
	}

	creds := gmail.Credentials{AccessToken: account.AccessToken, RefreshToken: account.RefreshToken}
	if err := u.gmailService.StopWatch(ctx, creds); err != nil {
		u.logger.Warn("failed to stop provider watch during unlink", "account_id", accountID, "error", err)
	}

	if err := u.registrations.DeleteByAccountID(accountID); err != nil {
		return err
	}
	if err := u.accounts.Delete(accountID); err != nil {
		return err
	}

	u.logger.Info("unlinked mailbox", "user_id", userID, "email", account.EmailAddress)
	return nil
}
