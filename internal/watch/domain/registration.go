package domain

import "time"

// WatchRegistration records one active Gmail watch subscription.
//
// HistoryID is the provider-assigned cursor as of the last successfully
// processed notification. It is opaque: it only ever moves forward in
// provider order and is never interpreted numerically by this system.
// EmailAddress is unique — at most one active watch per mailbox.
type WatchRegistration struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	AccountID    string    `json:"account_id" gorm:"uniqueIndex;not null"`
	UserID       string    `json:"user_id" gorm:"index;not null"`
	EmailAddress string    `json:"email_address" gorm:"uniqueIndex;not null"`
	HistoryID    string    `json:"history_id" gorm:"not null"`
	Expiration   time.Time `json:"expiration" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
