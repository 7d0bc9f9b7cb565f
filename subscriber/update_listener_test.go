package subscriber

import (
	"context"
	"testing"

	"github.com/asaskevich/EventBus"
)

type fakePrompter struct {
	accept bool
	calls  int
}

func (p *fakePrompter) ConfirmUpdate(ctx context.Context) bool {
	p.calls++
	return p.accept
}

type fakeReloader struct {
	reloads int
}

func (r *fakeReloader) Reload() { r.reloads++ }

func TestUpdateListenerAcceptedUpdate(t *testing.T) {
	bus := EventBus.New()
	registrar := &fakeRegistrar{}
	prompter := &fakePrompter{accept: true}
	reloader := &fakeReloader{}

	l := NewUpdateListener(bus, registrar, prompter, reloader)
	if err := l.Start(); err != nil {
		t.Fatal(err)
	}
	defer l.Stop()

	bus.Publish(TopicWorkerUpdated)

	if have, want := prompter.calls, 1; have != want {
		t.Errorf("prompts: have %d, want %d", have, want)
	}
	if have, want := registrar.activates, 1; have != want {
		t.Errorf("activations: have %d, want %d", have, want)
	}
	if have, want := reloader.reloads, 1; have != want {
		t.Errorf("reloads: have %d, want %d", have, want)
	}
}

func TestUpdateListenerIsOneShot(t *testing.T) {
	bus := EventBus.New()
	registrar := &fakeRegistrar{}
	prompter := &fakePrompter{accept: true}
	reloader := &fakeReloader{}

	l := NewUpdateListener(bus, registrar, prompter, reloader)
	if err := l.Start(); err != nil {
		t.Fatal(err)
	}
	defer l.Stop()

	bus.Publish(TopicWorkerUpdated)
	bus.Publish(TopicWorkerUpdated)

	if have, want := prompter.calls, 1; have != want {
		t.Errorf("prompts: have %d, want %d", have, want)
	}
	if have, want := reloader.reloads, 1; have != want {
		t.Errorf("reloads: have %d, want %d", have, want)
	}
}

func TestUpdateListenerDeclined(t *testing.T) {
	bus := EventBus.New()
	registrar := &fakeRegistrar{}
	prompter := &fakePrompter{accept: false}
	reloader := &fakeReloader{}

	l := NewUpdateListener(bus, registrar, prompter, reloader)
	if err := l.Start(); err != nil {
		t.Fatal(err)
	}
	defer l.Stop()

	bus.Publish(TopicWorkerUpdated)

	if registrar.activates != 0 {
		t.Errorf("declined update must not activate the waiting worker")
	}
	if reloader.reloads != 0 {
		t.Errorf("declined update must not reload")
	}
}
