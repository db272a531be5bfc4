package repository

import (
	"time"

	pushdomain "mailping-backend/internal/push/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubscriptionRepository defines the store for device push subscriptions.
type SubscriptionRepository interface {
	Upsert(sub *pushdomain.DeviceSubscription) error
	FindByUserID(userID string) ([]pushdomain.DeviceSubscription, error)
	// DeleteByEndpoint removes a subscription regardless of owner. Used by
	// the dispatcher when the push service reports the endpoint gone.
	DeleteByEndpoint(endpoint string) error
	// DeleteByEndpointAndUser removes a subscription only if it belongs to
	// the given user. Used by the device-facing unsubscribe operation.
	DeleteByEndpointAndUser(endpoint, userID string) error
}

type subscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{
		db: db,
	}
}

// Upsert saves a device subscription, updating in place when the endpoint is
// already registered (atomic INSERT ... ON CONFLICT (endpoint) DO UPDATE).
func (r *subscriptionRepository) Upsert(sub *pushdomain.DeviceSubscription) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	sub.CreatedAt = time.Now()

	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth", "user_agent"}),
	}).Create(sub).Error
}

func (r *subscriptionRepository) FindByUserID(userID string) ([]pushdomain.DeviceSubscription, error) {
	var subs []pushdomain.DeviceSubscription
	if err := r.db.Where("user_id = ?", userID).Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *subscriptionRepository) DeleteByEndpoint(endpoint string) error {
	return r.db.Where("endpoint = ?", endpoint).Delete(&pushdomain.DeviceSubscription{}).Error
}

func (r *subscriptionRepository) DeleteByEndpointAndUser(endpoint, userID string) error {
	return r.db.Where("endpoint = ? AND user_id = ?", endpoint, userID).Delete(&pushdomain.DeviceSubscription{}).Error
}
