package services

import (
	"errors"
	"log"
	"time"

	"github.com/gofrs/uuid"
	"github.com/leadinbox/inbox-push/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserManager struct {
	db     *gorm.DB
	config *models.Config
}

// NewUserManager creates an instance of UserManager and sets its DB handle
func NewUserManager(db *gorm.DB, config *models.Config) *UserManager {
	return &UserManager{db: db, config: config}
}

func (m *UserManager) Get(email string) (*models.User, error) {
	var user models.User

	result := m.db.Where("email = ?", email).First(&user)
	if result.Error != nil {
		return nil, result.Error
	}
	return &user, nil
}

// CheckOrCreate fetches the user, creating it under the given tenant on first
// sight.
func (m *UserManager) CheckOrCreate(email string, tenantID uuid.UUID) (*models.User, error) {
	var user models.User

	result := m.db.Where("email = ?", email).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			user = models.User{Email: email, TenantID: tenantID}
			result := m.db.Create(&user)
			if result.Error != nil {
				return nil, result.Error
			}
			log.Printf("UserManager: Created new user %s", user.Email)
		} else {
			return nil, result.Error
		}
	}

	return &user, nil
}

// AddPushSubscription stores a subscription for the user, encrypting its payload.
func (m *UserManager) AddPushSubscription(user *models.User, subscription *models.PushSubscription) (*models.PushSubscription, error) {
	subscription.LastUsedAt = time.Now()
	if subscription.Data != "" {
		dp := NewDataProtector(m.config)
		encryptedData, err := dp.Encrypt(subscription.Data)
		if err != nil {
			return nil, err
		}
		subscription.Data = encryptedData
	}

	// Every time a Service worker is activated, the client tries to register
	// its subscription again, so duplicates are expected. Refresh the
	// last_used_at field instead, so stale subscriptions stay detectable.
	result := m.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "hash"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_used_at"}),
	}).Create(&subscription)
	if result.Error != nil {
		return nil, result.Error
	}
	log.Printf("UserManager: Created Web push subscription for %s", user.Email)

	return subscription, nil
}

func (m *UserManager) DeletePushSubscription(subscription *models.PushSubscription) error {
	result := m.db.Delete(&models.PushSubscription{}, "hash = ?", subscription.Hash)
	return result.Error
}

// CleanupSubscriptions deletes subscriptions unused past the configured retention
func (m *UserManager) CleanupSubscriptions() error {
	expireDate := time.Now().AddDate(0, 0, -m.config.SubscriptionRetention)
	result := m.db.Delete(&models.PushSubscription{}, "last_used_at < ?", expireDate)
	if result.RowsAffected > 0 {
		log.Printf("UserManager: Deleted %d push subscriptions unused since %s", result.RowsAffected, expireDate.Format("2006-01-02"))
	}
	return result.Error
}
