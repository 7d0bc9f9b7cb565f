package services

import (
	"encoding/json"
	"log"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/asaskevich/EventBus"
	"github.com/gofrs/uuid"
	"github.com/leadinbox/inbox-push/controllers/sse"
	"github.com/leadinbox/inbox-push/models"

	"gorm.io/gorm"
)

// Inbox events delivered over web push.
const (
	EventLeadAssigned        = "lead_assigned"
	EventAppointmentReminder = "appointment_reminder"
	EventInboxMessage        = "inbox_message"
)

type NotificationsManager struct {
	db     *gorm.DB
	config *models.Config
	bus    EventBus.Bus
}

// Notification is the payload sent to a user's devices.
type Notification struct {
	Event   string
	Title   string
	Body    string
	Nonce   uuid.UUID
	Issuer  string
	IconURL string
}

// NewNotificationsManager creates an instance of the manager and sets its DB handle
func NewNotificationsManager(db *gorm.DB, config *models.Config, bus EventBus.Bus) *NotificationsManager {
	return &NotificationsManager{db: db, config: config, bus: bus}
}

// NotifyUser sends the event to every live subscription of the user, and to
// their connected SSE fallback clients. Subscriptions the push provider
// reports as gone are deleted on the way. Returns whether at least one push
// message was handed to the provider, and the nonce identifying this
// notification.
func (n *NotificationsManager) NotifyUser(user *models.User, event string, title string, body string) (bool, *uuid.UUID, error) {
	var subscriptions []models.PushSubscription
	minUsedAt := time.Now().AddDate(0, 0, -n.config.SubscriptionRetention)
	if result := n.db.Where("user_id = ? AND last_used_at > ?", user.ID.String(), minUsedAt).Find(&subscriptions); result.Error != nil {
		return false, nil, result.Error
	}

	// Nonce ensuring that delivery receipts received from browsers match a
	// notification that actually originated from this app.
	notifId, _ := uuid.NewV4()

	notification := Notification{
		Event:  event,
		Title:  title,
		Body:   body,
		Nonce:  notifId,
		Issuer: n.config.OrgName,
	}
	if n.config.LogoURL != nil {
		notification.IconURL = n.config.LogoURL.String()
	}
	payload, err := json.Marshal(notification)
	if err != nil {
		return false, &notifId, err
	}

	dp := NewDataProtector(n.config)
	userManager := NewUserManager(n.db, n.config)
	deletedCount := 0
	notified := false
	for i, subscription := range subscriptions {
		pushSubscriptionRaw, err := dp.Decrypt(subscription.Data)
		if err != nil {
			return notified, &notifId, err
		}
		pushSubscription := &webpush.Subscription{}
		if err := json.Unmarshal([]byte(pushSubscriptionRaw), &pushSubscription); err != nil {
			return notified, &notifId, err
		}

		resp, err := webpush.SendNotification(payload, pushSubscription, &webpush.Options{
			Subscriber:      n.config.AdminEmail,
			VAPIDPublicKey:  n.config.VapidPublicKey,
			VAPIDPrivateKey: n.config.VapidPrivateKey,
			TTL:             n.config.NotificationTTL,
		})
		if err != nil {
			return notified, &notifId, err
		}
		resp.Body.Close()

		// The push provider signals that the subscription is no longer active, so delete it.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			if err := userManager.DeletePushSubscription(&subscriptions[i]); err != nil {
				return notified, &notifId, err
			}
			deletedCount++
			continue
		}
		notified = true
	}
	if deletedCount > 0 {
		log.Printf("NotificationsManager: Deleted %d inactive push subscriptions for %s", deletedCount, user.Email)
	}

	// Also send to clients using the SSE fallback
	if n.config.EnableSSEFallback && n.bus != nil {
		msg := sse.SSEUserMessage{
			UserID: user.ID,
			Message: sse.SSEMessage{
				Event:  event,
				Title:  title,
				Body:   body,
				Nonce:  notifId.String(),
				Issuer: n.config.OrgName,
			},
		}
		n.bus.Publish(sse.TopicSSE, msg)
	}

	return notified, &notifId, nil
}
