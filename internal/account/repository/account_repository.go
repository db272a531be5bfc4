package repository

import (
	"errors"
	"time"

	accountdomain "mailping-backend/internal/account/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccountRepository defines the store for linked Google account credentials.
type AccountRepository interface {
	Create(account *accountdomain.GoogleAccount) error
	FindByID(id string) (*accountdomain.GoogleAccount, error)
	FindByUserID(userID string) ([]accountdomain.GoogleAccount, error)
	// UpdateTokens persists a refreshed access token. Single-row update so
	// concurrent renewals for the same account are last-write-wins.
	UpdateTokens(id, accessToken string, expiresAt time.Time) error
	Delete(id string) error
}

type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{
		db: db,
	}
}

func (r *accountRepository) Create(account *accountdomain.GoogleAccount) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	account.CreatedAt = time.Now()
	account.UpdatedAt = time.Now()
	return r.db.Create(account).Error
}

func (r *accountRepository) FindByID(id string) (*accountdomain.GoogleAccount, error) {
	var account accountdomain.GoogleAccount
	err := r.db.Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) FindByUserID(userID string) ([]accountdomain.GoogleAccount, error) {
	var accounts []accountdomain.GoogleAccount
	if err := r.db.Where("user_id = ?", userID).Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *accountRepository) UpdateTokens(id, accessToken string, expiresAt time.Time) error {
	return r.db.Model(&accountdomain.GoogleAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"access_token":            accessToken,
			"access_token_expires_at": expiresAt,
			"updated_at":              time.Now(),
		}).Error
}

func (r *accountRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&accountdomain.GoogleAccount{}).Error
}
