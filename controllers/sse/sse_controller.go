package sse

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/gofrs/uuid"
	"github.com/leadinbox/inbox-push/models"
	"github.com/leadinbox/inbox-push/utils"
	"gorm.io/gorm"
)

// This creates a permanent connection between the authenticated client browsers and the app.
// They would reconnect automatically if they get disconnected, change network or IP.
// This is intended to be a fallback mode when browser push notifications are not
// available (hello Safari). In that case the user has to keep a tab opened.

// TopicSSE is the event bus topic carrying fallback messages for connected clients.
const TopicSSE = "sse"

// SSEMessage is the payload pushed to clients over the event stream.
type SSEMessage struct {
	Event  string
	Title  string
	Body   string
	Nonce  string
	Issuer string
}

// SSEUserMessage targets the connected clients of a single user.
type SSEUserMessage struct {
	UserID  uuid.UUID
	Message SSEMessage
}

type clientStatus struct {
	userID   string
	sourceIP string
}

type SSEBroker struct {
	clientsChannels map[chan []byte]clientStatus
	clientsMutex    *sync.Mutex
}

func (b *SSEBroker) subscribe(status clientStatus) chan []byte {
	b.clientsMutex.Lock()
	defer b.clientsMutex.Unlock()

	// Buffered so a client briefly between reads does not drop messages.
	channel := make(chan []byte, 4)
	b.clientsChannels[channel] = status

	return channel
}

// unsubscribe removes a client from the broker pool
func (b *SSEBroker) unsubscribe(channel chan []byte) {
	b.clientsMutex.Lock()
	defer b.clientsMutex.Unlock()

	close(channel)
	delete(b.clientsChannels, channel)
}

func (b *SSEBroker) publish(clientID string, message SSEMessage) bool {
	b.clientsMutex.Lock()
	defer b.clientsMutex.Unlock()

	found := false
	data, _ := json.Marshal(&message)
	for s, status := range b.clientsChannels {
		// Empty clientID pushes to every client, otherwise only to the
		// channels of the targeted user.
		if clientID != "" && status.userID != clientID {
			continue
		}
		// Never block on a client that stopped reading: its handler may have
		// returned already, and the bus delivers to publish synchronously.
		select {
		case s <- data:
			found = true
		default:
		}
	}
	return found
}

type SSEController struct {
	db     *gorm.DB
	config *models.Config
	broker *SSEBroker
}

// New creates an instance of the controller and sets its DB handle
func New(db *gorm.DB, config *models.Config, bus EventBus.Bus) *SSEController {
	controller := &SSEController{
		db:     db,
		config: config,
		broker: &SSEBroker{
			clientsChannels: make(map[chan []byte]clientStatus),
			clientsMutex:    new(sync.Mutex),
		},
	}
	if err := bus.Subscribe(TopicSSE, controller.handleBusMessage); err != nil {
		log.Printf("SSEController: Could not subscribe to %s bus topic: %s", TopicSSE, err.Error())
	}
	return controller
}

func (s *SSEController) handleBusMessage(msg SSEUserMessage) {
	s.broker.publish(msg.UserID.String(), msg.Message)
}

// Start ensures each client receives a periodic ping to maintain the connection.
// Also aims at signalling potential corporate proxies that they should not close the connection.
func (s *SSEController) Start() {
	go func() {
		for {
			pingMsg := SSEMessage{Event: "ping", Body: fmt.Sprintf("%v", time.Now())}
			s.broker.publish("", pingMsg)
			time.Sleep(28e9) // 28s
		}
	}()
}

func (s *SSEController) HandleEvents(w http.ResponseWriter, r *http.Request) {
	var identity = r.Context().Value("identity").(string)

	// Make sure that the writer supports flushing.
	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Println("SSEController: HTTP streaming unsupported")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	// Fallback messages are addressed by user ID, not email
	var user models.User
	if result := s.db.Where("email = ?", identity).First(&user); result.Error != nil {
		log.Printf("SSEController: Unknown user %s: %s", identity, result.Error.Error())
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	sourceIP := utils.New(s.config).GetClientIP(r)
	channel := s.broker.subscribe(clientStatus{userID: user.ID.String(), sourceIP: sourceIP})
	defer s.broker.unsubscribe(channel)
	log.Printf("SSEController: Added new client %s connecting from %s", identity, sourceIP)

	// Set the headers related to event streaming.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for {
		select {
		case msg := <-channel:
			_, _ = fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		case <-r.Context().Done():
			log.Printf("SSEController: Removed client %s connecting from %s", identity, sourceIP)
			return
		}
	}
}
