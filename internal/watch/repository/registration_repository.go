package repository

import (
	"errors"
	"time"

	watchdomain "mailping-backend/internal/watch/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RegistrationRepository defines the durable store for watch registrations.
// All mutations are single-row updates keyed by a unique column; no
// operation spans more than one registration.
type RegistrationRepository interface {
	Create(reg *watchdomain.WatchRegistration) error
	FindByEmailAddress(emailAddress string) (*watchdomain.WatchRegistration, error)
	FindByAccountID(accountID string) (*watchdomain.WatchRegistration, error)
	FindByUserID(userID string) ([]watchdomain.WatchRegistration, error)
	// UpdateWatch records a renewal: new cursor and new expiration.
	UpdateWatch(id, historyID string, expiration time.Time) error
	// UpdateHistoryID advances the cursor only. This is the durable
	// checkpoint written after a notification's batch has been dispatched.
	UpdateHistoryID(id, historyID string) error
	DeleteByAccountID(accountID string) error
}

type registrationRepository struct {
	db *gorm.DB
}

func NewRegistrationRepository(db *gorm.DB) RegistrationRepository {
	return &registrationRepository{
		db: db,
	}
}

func (r *registrationRepository) Create(reg *watchdomain.WatchRegistration) error {
	if reg.ID == "" {
		reg.ID = uuid.New().String()
	}
	reg.CreatedAt = time.Now()
	reg.UpdatedAt = time.Now()
	return r.db.Create(reg).Error
}

func (r *registrationRepository) FindByEmailAddress(emailAddress string) (*watchdomain.WatchRegistration, error) {
	var reg watchdomain.WatchRegistration
	err := r.db.Where("email_address = ?", emailAddress).First(&reg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reg, nil
}

func (r *registrationRepository) FindByAccountID(accountID string) (*watchdomain.WatchRegistration, error) {
	var reg watchdomain.WatchRegistration
	err := r.db.Where("account_id = ?", accountID).First(&reg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reg, nil
}

func (r *registrationRepository) FindByUserID(userID string) ([]watchdomain.WatchRegistration, error) {
	var regs []watchdomain.WatchRegistration
	if err := r.db.Where("user_id = ?", userID).Find(&regs).Error; err != nil {
		return nil, err
	}
	return regs, nil
}

func (r *registrationRepository) UpdateWatch(id, historyID string, expiration time.Time) error {
	return r.db.Model(&watchdomain.WatchRegistration{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"history_id": historyID,
			"expiration": expiration,
			"updated_at": time.Now(),
		}).Error
}

func (r *registrationRepository) UpdateHistoryID(id, historyID string) error {
	return r.db.Model(&watchdomain.WatchRegistration{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"history_id": historyID,
			"updated_at": time.Now(),
		}).Error
}

func (r *registrationRepository) DeleteByAccountID(accountID string) error {
	return r.db.Where("account_id = ?", accountID).Delete(&watchdomain.WatchRegistration{}).Error
}
