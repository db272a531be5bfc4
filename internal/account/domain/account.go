package domain

import "time"

// GoogleAccount is the credential record for one linked Gmail mailbox.
// The refresh token is the durable credential; the access token is a cache
// that expires and is replaced on renewal. A record without a refresh token
// cannot be renewed and is an inconsistent state the watch pipeline surfaces
// as an operational error.
type GoogleAccount struct {
	ID                   string    `json:"id" gorm:"primaryKey"`
	UserID               string    `json:"user_id" gorm:"index;not null"`
	EmailAddress         string    `json:"email_address" gorm:"not null"`
	AccessToken          string    `json:"-"`
	RefreshToken         string    `json:"-"`
	AccessTokenExpiresAt time.Time `json:"access_token_expires_at"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}
