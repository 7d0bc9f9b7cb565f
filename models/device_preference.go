package models

import (
	"time"
)

// Preference keys understood by the clients. Kept as an explicit list so the
// preferences service can reject unknown flags instead of acting as an
// ambient key-value store.
const (
	PrefInstallPromptDismissed       = "ios-install-prompt-dismissed"
	PrefNotificationsPromptDismissed = "notifications-prompt-dismissed"
)

// DevicePreference is a per-device UI flag (e.g. "the user dismissed the iOS
// install prompt"). One row per (device, key). Flags are tied to the device,
// not the user: install prompts show up before anyone is signed in.
type DevicePreference struct {
	DeviceID  string `gorm:"primaryKey"`
	Key       string `gorm:"primaryKey"`
	Value     bool
	UpdatedAt time.Time
}
