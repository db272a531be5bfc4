package gmail

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Credentials carries the OAuth tokens for a single call. The Service keeps
// no per-account state; every method takes explicit credentials so that
// concurrent requests for different mailboxes cannot share session state.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// WatchResult is the provider's answer to a watch registration.
type WatchResult struct {
	HistoryID  string
	Expiration time.Time
}

// Token is the result of a refresh-token exchange.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

type Service struct {
	clientID     string
	clientSecret string
}

func NewService(clientID, clientSecret string) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

func (s *Service) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}
}

// client builds a Gmail service that uses the given credentials as-is,
// without triggering a refresh round-trip.
func (s *Service) client(ctx context.Context, creds Credentials) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
	}

	httpClient := oauth2.NewClient(ctx, s.oauthConfig().TokenSource(ctx, token))

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %v", err)
	}
	return srv, nil
}

// ExchangeCode trades an OAuth authorization code for tokens during account
// linking.
func (s *Service) ExchangeCode(ctx context.Context, code, redirectURI string) (*oauth2.Token, error) {
	cfg := s.oauthConfig()
	cfg.RedirectURL = redirectURI

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: code exchange failed: %v", ErrAuth, err)
	}
	return token, nil
}

// RefreshAccessToken exchanges a refresh token for a fresh access token.
// A rejection by the provider is reported as ErrAuth; the caller must treat
// that as terminal for the account.
func (s *Service) RefreshAccessToken(ctx context.Context, refreshToken string) (*Token, error) {
	src := s.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	token, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: refresh returned no access token", ErrAuth)
	}

	expiresAt := token.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(time.Hour)
	}

	return &Token{AccessToken: token.AccessToken, ExpiresAt: expiresAt}, nil
}

// RegisterWatch registers (or re-registers) a watch on the mailbox's INBOX
// against the given Pub/Sub topic. A response missing the cursor or the
// expiration is a hard ErrProvider, never defaulted.
func (s *Service) RegisterWatch(ctx context.Context, creds Credentials, topic string) (*WatchResult, error) {
	srv, err := s.client(ctx, creds)
	if err != nil {
		return nil, err
	}

	// Gmail allows only one push client per user; clear any stale watch first.
	_ = srv.Users.Stop("me").Context(ctx).Do()

	req := &gmail.WatchRequest{
		TopicName:           topic,
		LabelIds:            []string{"INBOX"},
		LabelFilterBehavior: "INCLUDE",
	}

	resp, err := srv.Users.Watch("me", req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: watch call failed: %v", ErrProvider, err)
	}
	if resp.HistoryId == 0 {
		return nil, fmt.Errorf("%w: watch returned no historyId", ErrProvider)
	}
	if resp.Expiration == 0 {
		return nil, fmt.Errorf("%w: watch returned no expiration", ErrProvider)
	}

	return &WatchResult{
		HistoryID:  strconv.FormatUint(resp.HistoryId, 10),
		Expiration: time.UnixMilli(resp.Expiration),
	}, nil
}

// StopWatch tears down the mailbox watch. Best-effort: callers must not
// treat a failure here as fatal.
func (s *Service) StopWatch(ctx context.Context, creds Credentials) error {
	srv, err := s.client(ctx, creds)
	if err != nil {
		return err
	}

	if err := srv.Users.Stop("me").Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to stop mailbox watch: %v", err)
	}
	return nil
}

// GetProfile returns the email address of the mailbox the credentials
// belong to.
func (s *Service) GetProfile(ctx context.Context, creds Credentials) (string, error) {
	srv, err := s.client(ctx, creds)
	if err != nil {
		return "", err
	}

	profile, err := srv.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("%w: get profile: %v", ErrProvider, err)
	}
	return profile.EmailAddress, nil
}

// ListNewMessageIDs pages through the history feed starting after
// sinceHistoryID and returns the IDs of messages added to the INBOX, in
// first-seen order and deduplicated (a message can appear in several
// history pages).
func (s *Service) ListNewMessageIDs(ctx context.Context, creds Credentials, sinceHistoryID string) ([]string, error) {
	start, err := strconv.ParseUint(sinceHistoryID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid history cursor %q: %v", ErrProvider, sinceHistoryID, err)
	}

	srv, err := s.client(ctx, creds)
	if err != nil {
		return nil, err
	}

	var ids []string
	seen := make(map[string]struct{})
	pageToken := ""

	for {
		call := srv.Users.History.List("me").
			StartHistoryId(start).
			HistoryTypes("messageAdded").
			LabelId("INBOX").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("%w: history list failed: %v", ErrProvider, err)
		}

		for _, record := range resp.History {
			for _, added := range record.MessagesAdded {
				if added.Message == nil || added.Message.Id == "" {
					continue
				}
				if _, ok := seen[added.Message.Id]; ok {
					continue
				}
				seen[added.Message.Id] = struct{}{}
				ids = append(ids, added.Message.Id)
			}
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return ids, nil
}

// FetchMessage retrieves one message with full payload. A provider 404 is
// reported as ErrMessageNotFound so the caller can skip it without failing
// the whole batch.
func (s *Service) FetchMessage(ctx context.Context, creds Credentials, id string) (*gmail.Message, error) {
	srv, err := s.client(ctx, creds)
	if err != nil {
		return nil, err
	}

	msg, err := srv.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == 404 {
			return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
		}
		return nil, fmt.Errorf("%w: get message %s: %v", ErrProvider, id, err)
	}
	return msg, nil
}
