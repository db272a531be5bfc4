package domain

import "time"

// DeviceSubscription is one browser/device Web Push endpoint. The endpoint
// URL is the transport's idempotency key; registering the same endpoint
// again updates the row in place.
type DeviceSubscription struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"index;not null"`
	Endpoint  string    `json:"endpoint" gorm:"uniqueIndex;not null"`
	P256dh    string    `json:"-" gorm:"column:p256dh;not null"`
	Auth      string    `json:"-" gorm:"not null"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
