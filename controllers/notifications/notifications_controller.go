package notifications

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/asaskevich/EventBus"
	"github.com/gorilla/mux"
	"github.com/leadinbox/inbox-push/models"
	"github.com/leadinbox/inbox-push/services"
	"github.com/leadinbox/inbox-push/utils"
	"gorm.io/gorm"
)

type NotificationsController struct {
	db          *gorm.DB
	config      *models.Config
	bus         EventBus.Bus
	preferences services.DevicePreferences
}

// vapidKeyInfo is the body served to subscribing clients. Only ever carries
// the public half.
type vapidKeyInfo struct {
	PublicKey string `json:"public_key"`
}

// New creates an instance of the controller and sets its DB handle
func New(db *gorm.DB, config *models.Config, bus EventBus.Bus, preferences services.DevicePreferences) *NotificationsController {
	return &NotificationsController{db: db, config: config, bus: bus, preferences: preferences}
}

// GetVapidPublicKey serves the application server key clients subscribe with.
// The key is public by definition, so no session is required: clients fetch
// it before any sign-in when no build-time key was configured.
func (n *NotificationsController) GetVapidPublicKey(w http.ResponseWriter, r *http.Request) {
	if !n.config.EnableNotifications {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	utils.JSONResponse(w, vapidKeyInfo{PublicKey: n.config.VapidPublicKey}, http.StatusOK)
}

// RegisterSubscription stores the caller's web push subscription.
func (n *NotificationsController) RegisterSubscription(w http.ResponseWriter, r *http.Request) {
	var email = r.Context().Value("identity").(string)

	r.Body = http.MaxBytesReader(w, r.Body, n.config.MaxBodySize) // Refuse request with big body

	userManager := services.NewUserManager(n.db, n.config)
	user, err := userManager.Get(email)
	if err != nil {
		log.Printf("NotificationsController: Error fetching user %s: %s", email, err.Error())
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	// read raw body for hashing the subscription
	var bodyBytes []byte
	if r.Body != nil {
		bodyBytes, _ = ioutil.ReadAll(r.Body)
	}
	// Restore the io.ReadCloser to its original state
	r.Body = ioutil.NopCloser(bytes.NewBuffer(bodyBytes))

	// Validate that what we receive is a valid web push subscription
	subscription := &webpush.Subscription{}
	if err := json.NewDecoder(r.Body).Decode(&subscription); err != nil || subscription.Endpoint == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	hash := sha256.Sum256(bodyBytes)
	pushSubscription := models.PushSubscription{
		UserID:    user.ID,
		Hash:      fmt.Sprintf("%x", hash),
		Data:      string(bodyBytes),
		UserAgent: r.UserAgent(),
	}
	if _, err := userManager.AddPushSubscription(user, &pushSubscription); err != nil {
		log.Printf("NotificationsController: Error saving subscription for %s: %s", email, err.Error())
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	log.Printf("NotificationsController: User %s subscribed to push notifications", user.Email)
	w.WriteHeader(http.StatusCreated)
}

// UnregisterSubscription deletes the subscription matching the posted body.
// An unknown subscription is "nothing to do", not an error.
func (n *NotificationsController) UnregisterSubscription(w http.ResponseWriter, r *http.Request) {
	var email = r.Context().Value("identity").(string)

	r.Body = http.MaxBytesReader(w, r.Body, n.config.MaxBodySize)
	bodyBytes, _ := ioutil.ReadAll(r.Body)
	hash := sha256.Sum256(bodyBytes)

	result := n.db.Delete(&models.PushSubscription{}, "hash = ?", fmt.Sprintf("%x", hash))
	if result.Error != nil {
		log.Printf("NotificationsController: Error deleting subscription for %s: %s", email, result.Error.Error())
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if result.RowsAffected > 0 {
		log.Printf("NotificationsController: User %s unsubscribed from push notifications", email)
	}
	utils.JSONResponse(w, map[string]bool{"deleted": result.RowsAffected > 0}, http.StatusOK)
}

// SendTestNotification pushes an inbox_message event to the caller's own
// devices so users can verify their setup.
func (n *NotificationsController) SendTestNotification(w http.ResponseWriter, r *http.Request) {
	var email = r.Context().Value("identity").(string)

	userManager := services.NewUserManager(n.db, n.config)
	user, err := userManager.Get(email)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	notifier := services.NewNotificationsManager(n.db, n.config, n.bus)
	notified, _, err := notifier.NotifyUser(user, services.EventInboxMessage, "Test notification", "Push notifications are working.")
	if err != nil {
		log.Printf("NotificationsController: Error notifying %s: %s", email, err.Error())
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	utils.JSONResponse(w, map[string]bool{"notified": notified}, http.StatusOK)
}

// preferenceAccessors maps the URL flag name to its typed store operations.
func (n *NotificationsController) preferenceAccessors(key string) (func(string) (bool, error), func(string, bool) error) {
	switch key {
	case models.PrefInstallPromptDismissed:
		return n.preferences.InstallPromptDismissed, n.preferences.SetInstallPromptDismissed
	case models.PrefNotificationsPromptDismissed:
		return n.preferences.NotificationsPromptDismissed, n.preferences.SetNotificationsPromptDismissed
	}
	return nil, nil
}

// GetPreference reads a device dismissal flag. An absent flag reads as false.
func (n *NotificationsController) GetPreference(w http.ResponseWriter, r *http.Request) {
	deviceID := r.Header.Get("X-Device-ID")
	if deviceID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	key := mux.Vars(r)["key"]
	get, _ := n.preferenceAccessors(key)
	if get == nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	value, err := get(deviceID)
	if err != nil {
		log.Printf("NotificationsController: Error reading preference %s: %s", key, err.Error())
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	utils.JSONResponse(w, map[string]bool{"value": value}, http.StatusOK)
}

// SetPreference writes a device dismissal flag.
func (n *NotificationsController) SetPreference(w http.ResponseWriter, r *http.Request) {
	deviceID := r.Header.Get("X-Device-ID")
	if deviceID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	key := mux.Vars(r)["key"]
	_, set := n.preferenceAccessors(key)
	if set == nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, n.config.MaxBodySize)
	var body struct {
		Value bool `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := set(deviceID, body.Value); err != nil {
		log.Printf("NotificationsController: Error saving preference %s: %s", key, err.Error())
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
