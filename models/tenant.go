package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// Tenant is an organization using the CRM. Users and their push subscriptions
// always belong to exactly one tenant.
type Tenant struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"unique"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BeforeCreate ensures the model has an ID before saving it
func (tenant *Tenant) BeforeCreate(scope *gorm.DB) error {
	uuid, err := uuid.NewV4()
	if err != nil {
		return err
	}
	tenant.ID = uuid
	return nil
}
