package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// User is a CRM seller account able to receive inbox notifications
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID `gorm:"type:uuid;index"`
	Email     string    `gorm:"unique"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Tenant    Tenant `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// BeforeCreate ensures the model has an ID before saving it
func (user *User) BeforeCreate(scope *gorm.DB) error {
	uuid, err := uuid.NewV4()
	if err != nil {
		return err
	}
	user.ID = uuid
	return nil
}
