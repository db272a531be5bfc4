package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	accountdomain "mailping-backend/internal/account/domain"
	watchdomain "mailping-backend/internal/watch/domain"
	"mailping-backend/pkg/gmail"

	"golang.org/x/oauth2"
)

type mockAccountRepo struct {
	accounts map[string]*accountdomain.GoogleAccount
	nextID   int
	created  []string
	deleted  []string
}

func newMockAccountRepo() *mockAccountRepo {
	return &mockAccountRepo{accounts: map[string]*accountdomain.GoogleAccount{}}
}

func (m *mockAccountRepo) Create(account *accountdomain.GoogleAccount) error {
	m.nextID++
	account.ID = "acc-" + strconv.Itoa(m.nextID)
	account.CreatedAt = time.Now()
	m.accounts[account.ID] = account
	m.created = append(m.created, account.ID)
	return nil
}

func (m *mockAccountRepo) FindByID(id string) (*accountdomain.GoogleAccount, error) {
	return m.accounts[id], nil
}

func (m *mockAccountRepo) FindByUserID(userID string) ([]accountdomain.GoogleAccount, error) {
	var out []accountdomain.GoogleAccount
	for _, acc := range m.accounts {
		if acc.UserID == userID {
			out = append(out, *acc)
		}
	}
	return out, nil
}

func (m *mockAccountRepo) UpdateTokens(id, accessToken string, expiresAt time.Time) error {
	return nil
}

func (m *mockAccountRepo) Delete(id string) error {
	delete(m.accounts, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockRegistrationRepo struct {
	byEmail map[string]*watchdomain.WatchRegistration
	created []*watchdomain.WatchRegistration
}

func newMockRegistrationRepo() *mockRegistrationRepo {
	return &mockRegistrationRepo{byEmail: map[string]*watchdomain.WatchRegistration{}}
}

func (m *mockRegistrationRepo) Create(reg *watchdomain.WatchRegistration) error {
	m.byEmail[reg.EmailAddress] = reg
	m.created = append(m.created, reg)
	return nil
}

func (m *mockRegistrationRepo) FindByEmailAddress(email string) (*watchdomain.WatchRegistration, error) {
	return m.byEmail[email], nil
}

func (m *mockRegistrationRepo) FindByAccountID(accountID string) (*watchdomain.WatchRegistration, error) {
	return nil, nil
}

func (m *mockRegistrationRepo) FindByUserID(userID string) ([]watchdomain.WatchRegistration, error) {
	return nil, nil
}

func (m *mockRegistrationRepo) UpdateWatch(id, historyID string, expiration time.Time) error {
	return nil
}

func (m *mockRegistrationRepo) UpdateHistoryID(id, historyID string) error { return nil }

func (m *mockRegistrationRepo) DeleteByAccountID(accountID string) error {
	for email, reg := range m.byEmail {
		if reg.AccountID == accountID {
			delete(m.byEmail, email)
		}
	}
	return nil
}

type mockGmailService struct {
	token       *oauth2.Token
	exchangeErr error
	profile     string
	registerErr error
	stopErr     error
	stopped     int
}

func (m *mockGmailService) ExchangeCode(ctx context.Context, code, redirectURI string) (*oauth2.Token, error) {
	if m.exchangeErr != nil {
		return nil, m.exchangeErr
	}
	return m.token, nil
}

func (m *mockGmailService) GetProfile(ctx context.Context, creds gmail.Credentials) (string, error) {
	return m.profile, nil
}

func (m *mockGmailService) RegisterWatch(ctx context.Context, creds gmail.Credentials, topic string) (*gmail.WatchResult, error) {
	if m.registerErr != nil {
		return nil, m.registerErr
	}
	return &gmail.WatchResult{HistoryID: "42", Expiration: time.Now().Add(7 * 24 * time.Hour)}, nil
}

func (m *mockGmailService) StopWatch(ctx context.Context, creds gmail.Credentials) error {
	m.stopped++
	return m.stopErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func goodToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	}
}

func TestLinkGoogleAccount(t *testing.T) {
	accounts := newMockAccountRepo()
	registrations := newMockRegistrationRepo()
	svc := &mockGmailService{token: goodToken(), profile: "user@example.com"}
	u := NewLinkUsecase(accounts, registrations, svc, "projects/p/topics/t", "http://localhost/cb", testLogger())

	linked, err := u.LinkGoogleAccount(context.Background(), "user-1", "auth-code")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if linked.EmailAddress != "user@example.com" {
		t.Errorf("email = %q", linked.EmailAddress)
	}
	if len(registrations.created) != 1 {
		t.Fatalf("registrations created = %d, want 1", len(registrations.created))
	}
	reg := registrations.created[0]
	if reg.HistoryID != "42" {
		t.Errorf("initial cursor = %q, want the watch baseline", reg.HistoryID)
	}
	if reg.AccountID != linked.ID || reg.UserID != "user-1" {
		t.Errorf("registration ownership = %q/%q", reg.AccountID, reg.UserID)
	}
}

func TestLinkGoogleAccountNoRefreshToken(t *testing.T) {
	accounts := newMockAccountRepo()
	registrations := newMockRegistrationRepo()
	svc := &mockGmailService{token: &oauth2.Token{AccessToken: "access"}, profile: "user@example.com"}
	u := NewLinkUsecase(accounts, registrations, svc, "topic", "cb", testLogger())

	_, err := u.LinkGoogleAccount(context.Background(), "user-1", "auth-code")
	if !errors.Is(err, ErrNoRefreshToken) {
		t.Errorf("err = %v, want ErrNoRefreshToken", err)
	}
	if len(accounts.created) != 0 {
		t.Error("account stored without a refresh token")
	}
}

func TestLinkGoogleAccountAlreadyWatched(t *testing.T) {
	accounts := newMockAccountRepo()
	registrations := newMockRegistrationRepo()
	registrations.byEmail["user@example.com"] = &watchdomain.WatchRegistration{
		ID:           "reg-1",
		EmailAddress: "user@example.com",
	}
	svc := &mockGmailService{token: goodToken(), profile: "user@example.com"}
	u := NewLinkUsecase(accounts, registrations, svc, "topic", "cb", testLogger())

	_, err := u.LinkGoogleAccount(context.Background(), "user-2", "auth-code")
	if !errors.Is(err, ErrAlreadyWatched) {
		t.Errorf("err = %v, want ErrAlreadyWatched", err)
	}
}

func TestLinkGoogleAccountWatchFailureRollsBack(t *testing.T) {
	accounts := newMockAccountRepo()
	registrations := newMockRegistrationRepo()
	svc := &mockGmailService{
		token:       goodToken(),
		profile:     "user@example.com",
		registerErr: errors.New("topic permission denied"),
	}
	u := NewLinkUsecase(accounts, registrations, svc, "topic", "cb", testLogger())

	_, err := u.LinkGoogleAccount(context.Background(), "user-1", "auth-code")
	if err == nil {
		t.Fatal("expected error")
	}
	if len(accounts.deleted) != 1 {
		t.Errorf("account rollbacks = %d, want 1", len(accounts.deleted))
	}
	if len(accounts.accounts) != 0 {
		t.Error("orphaned credential left behind")
	}
	if len(registrations.created) != 0 {
		t.Error("registration created despite watch failure")
	}
}

func TestUnlinkAccount(t *testing.T) {
	accounts := newMockAccountRepo()
	registrations := newMockRegistrationRepo()
	svc := &mockGmailService{token: goodToken(), profile: "user@example.com"}
	u := NewLinkUsecase(accounts, registrations, svc, "topic", "cb", testLogger())

	linked, err := u.LinkGoogleAccount(context.Background(), "user-1", "auth-code")
	if err != nil {
		t.Fatal(err)
	}

	if err := u.UnlinkAccount(context.Background(), "user-1", linked.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.stopped != 1 {
		t.Errorf("StopWatch calls = %d, want 1", svc.stopped)
	}
	if len(accounts.accounts) != 0 {
		t.Error("account not removed")
	}
	if len(registrations.byEmail) != 0 {
		t.Error("registration not removed")
	}
}

func TestUnlinkAccountWrongOwner(t *testing.T) {
	accounts := newMockAccountRepo()
	registrations := newMockRegistrationRepo()
	svc := &mockGmailService{token: goodToken(), profile: "user@example.com"}
	u := NewLinkUsecase(accounts, registrations, svc, "topic", "cb", testLogger())

	linked, err := u.LinkGoogleAccount(context.Background(), "user-1", "auth-code")
	if err != nil {
		t.Fatal(err)
	}

	if err := u.UnlinkAccount(context.Background(), "someone-else", linked.ID); err == nil {
		t.Fatal("expected ownership error")
	}
	if len(accounts.accounts) != 1 {
		t.Error("account removed by non-owner")
	}
}

func TestUnlinkAccountStopWatchBestEffort(t *testing.T) {
	accounts := newMockAccountRepo()
	registrations := newMockRegistrationRepo()
	svc := &mockGmailService{token: goodToken(), profile: "user@example.com", stopErr: errors.New("401")}
	u := NewLinkUsecase(accounts, registrations, svc, "topic", "cb", testLogger())

	linked, err := u.LinkGoogleAccount(context.Background(), "user-1", "auth-code")
	if err != nil {
		t.Fatal(err)
	}

	if err := u.UnlinkAccount(context.Background(), "user-1", linked.ID); err != nil {
		t.Fatalf("unlink must succeed when the provider stop fails: %v", err)
	}
	if len(accounts.accounts) != 0 {
		t.Error("account not removed")
	}
}
