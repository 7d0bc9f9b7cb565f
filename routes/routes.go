package routes

import (
	"net/http"
	"os"

	"github.com/asaskevich/EventBus"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	notificationsController "github.com/leadinbox/inbox-push/controllers/notifications"
	sseController "github.com/leadinbox/inbox-push/controllers/sse"
	"github.com/leadinbox/inbox-push/models"
	"github.com/leadinbox/inbox-push/services"
	"gorm.io/gorm"
)

func New(config *models.Config, db *gorm.DB) http.Handler {
	tokenSigningKey := []byte(config.SigningKey)
	bus := EventBus.New()

	router := mux.NewRouter()
	session := NewSessionHandler(config)
	preferences := services.NewDevicePreferences(db)

	logged := func(h http.HandlerFunc) http.Handler {
		return handlers.LoggingHandler(os.Stdout, http.HandlerFunc(h))
	}
	authenticated := func(h http.HandlerFunc) http.Handler {
		return logged(session.SessionMiddleware(tokenSigningKey, h))
	}

	notificationsC := notificationsController.New(db, config, bus, preferences)
	// The public key and the device dismissal flags are served without a
	// session: clients need both before anyone signs in.
	router.Handle("/notifications/vapid-public-key",
		logged(notificationsC.GetVapidPublicKey),
	).Methods(http.MethodGet)
	router.Handle("/notifications/preferences/{key}",
		logged(notificationsC.GetPreference),
	).Methods(http.MethodGet)
	router.Handle("/notifications/preferences/{key}",
		logged(notificationsC.SetPreference),
	).Methods(http.MethodPut)

	router.Handle("/notifications/subscriptions",
		authenticated(notificationsC.RegisterSubscription),
	).Methods(http.MethodPost)
	router.Handle("/notifications/subscriptions",
		authenticated(notificationsC.UnregisterSubscription),
	).Methods(http.MethodDelete)
	router.Handle("/notifications/test",
		authenticated(notificationsC.SendTestNotification),
	).Methods(http.MethodPost)

	if config.EnableSSEFallback {
		sseC := sseController.New(db, config, bus)
		sseC.Start()
		router.Handle("/events",
			authenticated(sseC.HandleEvents),
		).Methods(http.MethodGet)
	}

	return router
}
