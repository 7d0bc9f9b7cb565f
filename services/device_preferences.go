package services

import (
	"errors"

	"github.com/leadinbox/inbox-push/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DevicePreferences is the typed view over per-device UI flags, deliberately
// not an ambient key-value bag. Injected into controllers so tests can
// substitute an in-memory implementation.
type DevicePreferences interface {
	InstallPromptDismissed(deviceID string) (bool, error)
	SetInstallPromptDismissed(deviceID string, dismissed bool) error
	NotificationsPromptDismissed(deviceID string) (bool, error)
	SetNotificationsPromptDismissed(deviceID string, dismissed bool) error
}

type preferencesStore struct {
	db *gorm.DB
}

// NewDevicePreferences returns the DB-backed preferences store.
func NewDevicePreferences(db *gorm.DB) DevicePreferences {
	return &preferencesStore{db: db}
}

func (s *preferencesStore) get(deviceID string, key string) (bool, error) {
	var pref models.DevicePreference
	// Struct conditions so gorm quotes `key`, a reserved word in MySQL
	result := s.db.Where(&models.DevicePreference{DeviceID: deviceID, Key: key}).First(&pref)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			// An absent flag reads as false, matching a never-dismissed prompt
			return false, nil
		}
		return false, result.Error
	}
	return pref.Value, nil
}

func (s *preferencesStore) set(deviceID string, key string, value bool) error {
	pref := models.DevicePreference{DeviceID: deviceID, Key: key, Value: value}
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&pref)
	return result.Error
}

func (s *preferencesStore) InstallPromptDismissed(deviceID string) (bool, error) {
	return s.get(deviceID, models.PrefInstallPromptDismissed)
}

func (s *preferencesStore) SetInstallPromptDismissed(deviceID string, dismissed bool) error {
	return s.set(deviceID, models.PrefInstallPromptDismissed, dismissed)
}

func (s *preferencesStore) NotificationsPromptDismissed(deviceID string) (bool, error) {
	return s.get(deviceID, models.PrefNotificationsPromptDismissed)
}

func (s *preferencesStore) SetNotificationsPromptDismissed(deviceID string, dismissed bool) error {
	return s.set(deviceID, models.PrefNotificationsPromptDismissed, dismissed)
}
