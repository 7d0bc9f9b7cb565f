package models

import (
	"time"

	"github.com/gofrs/uuid"
)

// PushSubscription is an authenticated User subscription to web push notifications.
// Data holds the encrypted webpush subscription JSON (endpoint + keys); Hash is
// the SHA-256 of the raw subscription body so re-registrations from the same
// worker upsert instead of duplicating.
type PushSubscription struct {
	UserID     uuid.UUID `gorm:"type:uuid"`
	Hash       string    `gorm:"primaryKey"`
	Data       string
	UserAgent  string
	CreatedAt  time.Time
	LastUsedAt time.Time
	User       User `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}
