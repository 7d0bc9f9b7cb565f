package subscriber

import (
	"context"
	"log"
	"sync"

	"github.com/asaskevich/EventBus"
)

// TopicWorkerUpdated is published on the event bus when a new worker version
// has finished installing while another version still controls the pages.
const TopicWorkerUpdated = "worker:updated"

// UpdateListener applies pending worker updates, gated on user confirmation.
// The transition is one-shot: code is never swapped twice under the same
// session, and a declined prompt is not repeated.
type UpdateListener struct {
	bus       EventBus.Bus
	registrar Registrar
	prompter  Prompter
	reloader  Reloader
	once      sync.Once
}

// NewUpdateListener creates the listener; call Start to begin receiving
// update events.
func NewUpdateListener(bus EventBus.Bus, registrar Registrar, prompter Prompter, reloader Reloader) *UpdateListener {
	return &UpdateListener{
		bus:       bus,
		registrar: registrar,
		prompter:  prompter,
		reloader:  reloader,
	}
}

func (l *UpdateListener) Start() error {
	return l.bus.Subscribe(TopicWorkerUpdated, l.handleUpdate)
}

func (l *UpdateListener) Stop() error {
	return l.bus.Unsubscribe(TopicWorkerUpdated, l.handleUpdate)
}

func (l *UpdateListener) handleUpdate() {
	l.once.Do(func() {
		ctx := context.Background()
		if !l.prompter.ConfirmUpdate(ctx) {
			log.Printf("UpdateListener: worker update available but the user declined the reload")
			return
		}
		if err := l.registrar.Activate(ctx); err != nil {
			log.Printf("UpdateListener: could not activate the waiting worker: %s", err.Error())
			return
		}
		log.Printf("UpdateListener: waiting worker activated, reloading")
		l.reloader.Reload()
	})
}
