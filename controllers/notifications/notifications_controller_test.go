package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/asaskevich/EventBus"
	"github.com/gorilla/mux"
	"github.com/leadinbox/inbox-push/models"
	"github.com/leadinbox/inbox-push/services"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testController(t *testing.T) (*NotificationsController, *gorm.DB, *models.User) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	for _, model := range []interface{}{&models.Tenant{}, &models.User{}, &models.PushSubscription{}, &models.DevicePreference{}} {
		if err := db.AutoMigrate(model); err != nil {
			t.Fatal(err)
		}
	}

	config := &models.Config{}
	*config = config.New()
	config.EncryptionKey = "0123456789abcdef0123456789abcdef"
	config.VapidPublicKey = "test-public-key"

	tenant := models.Tenant{Name: "acme-" + t.Name()}
	if result := db.Create(&tenant); result.Error != nil {
		t.Fatal(result.Error)
	}
	user, err := services.NewUserManager(db, config).CheckOrCreate("seller@example.com", tenant.ID)
	if err != nil {
		t.Fatal(err)
	}

	controller := New(db, config, EventBus.New(), services.NewDevicePreferences(db))
	return controller, db, user
}

func asUser(r *http.Request, user *models.User) *http.Request {
	ctx := context.WithValue(r.Context(), "identity", user.Email)
	return r.WithContext(ctx)
}

func TestGetVapidPublicKey(t *testing.T) {
	controller, _, _ := testController(t)

	r := httptest.NewRequest(http.MethodGet, "/notifications/vapid-public-key", nil)
	w := httptest.NewRecorder()
	controller.GetVapidPublicKey(w, r)

	if have, want := w.Code, http.StatusOK; have != want {
		t.Fatalf("status: have %d, want %d", have, want)
	}
	var body struct {
		PublicKey string `json:"public_key"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if have, want := body.PublicKey, "test-public-key"; have != want {
		t.Errorf("public_key: have %q, want %q", have, want)
	}
}

func TestRegisterSubscriptionUpserts(t *testing.T) {
	controller, db, user := testController(t)

	payload := `{"endpoint":"https://push.example.com/sub/1","keys":{"auth":"YXV0aA","p256dh":"cDI1NmRo"}}`
	for i := 0; i < 2; i++ {
		r := asUser(httptest.NewRequest(http.MethodPost, "/notifications/subscriptions", strings.NewReader(payload)), user)
		w := httptest.NewRecorder()
		controller.RegisterSubscription(w, r)
		if have, want := w.Code, http.StatusCreated; have != want {
			t.Fatalf("status: have %d, want %d", have, want)
		}
	}

	// Re-registering the same worker subscription refreshes, not duplicates
	var count int64
	db.Model(&models.PushSubscription{}).Where("user_id = ?", user.ID.String()).Count(&count)
	if have, want := count, int64(1); have != want {
		t.Errorf("subscriptions: have %d, want %d", have, want)
	}

	// Stored payloads are encrypted
	var stored models.PushSubscription
	if result := db.First(&stored); result.Error != nil {
		t.Fatal(result.Error)
	}
	if strings.Contains(stored.Data, "push.example.com") {
		t.Errorf("subscription stored in clear text")
	}
}

func TestRegisterSubscriptionRejectsGarbage(t *testing.T) {
	controller, _, user := testController(t)

	for _, payload := range []string{"", "not json", `{"keys":{"auth":"x"}}`} {
		r := asUser(httptest.NewRequest(http.MethodPost, "/notifications/subscriptions", strings.NewReader(payload)), user)
		w := httptest.NewRecorder()
		controller.RegisterSubscription(w, r)
		if have, want := w.Code, http.StatusBadRequest; have != want {
			t.Errorf("payload %q: status have %d, want %d", payload, have, want)
		}
	}
}

func TestUnregisterSubscription(t *testing.T) {
	controller, db, user := testController(t)

	payload := `{"endpoint":"https://push.example.com/sub/2","keys":{"auth":"YXV0aA","p256dh":"cDI1NmRo"}}`
	r := asUser(httptest.NewRequest(http.MethodPost, "/notifications/subscriptions", strings.NewReader(payload)), user)
	controller.RegisterSubscription(httptest.NewRecorder(), r)

	r = asUser(httptest.NewRequest(http.MethodDelete, "/notifications/subscriptions", strings.NewReader(payload)), user)
	w := httptest.NewRecorder()
	controller.UnregisterSubscription(w, r)

	var body struct {
		Deleted bool `json:"deleted"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.Deleted {
		t.Errorf("have deleted=false, want deletion")
	}
	var count int64
	db.Model(&models.PushSubscription{}).Count(&count)
	if count != 0 {
		t.Errorf("subscriptions left: have %d, want 0", count)
	}
}

func TestUnregisterUnknownSubscriptionIsNoop(t *testing.T) {
	controller, _, user := testController(t)

	payload := `{"endpoint":"https://push.example.com/sub/3","keys":{"auth":"YXV0aA","p256dh":"cDI1NmRo"}}`
	r := asUser(httptest.NewRequest(http.MethodDelete, "/notifications/subscriptions", strings.NewReader(payload)), user)
	w := httptest.NewRecorder()
	controller.UnregisterSubscription(w, r)

	if have, want := w.Code, http.StatusOK; have != want {
		t.Fatalf("status: have %d, want %d", have, want)
	}
	var body struct {
		Deleted bool `json:"deleted"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Deleted {
		t.Errorf("have deleted=true, want no-op")
	}
}

func preferencesRouter(controller *NotificationsController) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/notifications/preferences/{key}", controller.GetPreference).Methods(http.MethodGet)
	router.HandleFunc("/notifications/preferences/{key}", controller.SetPreference).Methods(http.MethodPut)
	return router
}

func TestPreferenceLifecycle(t *testing.T) {
	controller, _, _ := testController(t)
	router := preferencesRouter(controller)
	path := "/notifications/preferences/" + models.PrefInstallPromptDismissed

	// Never-set flag reads as false
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.Header.Set("X-Device-ID", "device-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	var body struct {
		Value bool `json:"value"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Value {
		t.Errorf("unset flag: have true, want false")
	}

	r = httptest.NewRequest(http.MethodPut, path, strings.NewReader(`{"value":true}`))
	r.Header.Set("X-Device-ID", "device-1")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if have, want := w.Code, http.StatusNoContent; have != want {
		t.Fatalf("status: have %d, want %d", have, want)
	}

	r = httptest.NewRequest(http.MethodGet, path, nil)
	r.Header.Set("X-Device-ID", "device-1")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.Value {
		t.Errorf("dismissed flag: have false, want true")
	}

	// Another device is unaffected
	r = httptest.NewRequest(http.MethodGet, path, nil)
	r.Header.Set("X-Device-ID", "device-2")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Value {
		t.Errorf("flags leaked across devices")
	}
}

func TestPreferenceUnknownFlag(t *testing.T) {
	controller, _, _ := testController(t)
	router := preferencesRouter(controller)

	r := httptest.NewRequest(http.MethodGet, "/notifications/preferences/some-random-flag", nil)
	r.Header.Set("X-Device-ID", "device-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if have, want := w.Code, http.StatusNotFound; have != want {
		t.Errorf("status: have %d, want %d", have, want)
	}
}

func TestPreferenceRequiresDeviceID(t *testing.T) {
	controller, _, _ := testController(t)
	router := preferencesRouter(controller)

	r := httptest.NewRequest(http.MethodGet, "/notifications/preferences/"+models.PrefInstallPromptDismissed, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if have, want := w.Code, http.StatusBadRequest; have != want {
		t.Errorf("status: have %d, want %d", have, want)
	}
}
