package subscriber

import (
	"context"
	"log"

	"github.com/SherClockHolmes/webpush-go"
)

// Manager drives the subscription lifecycle
// Unregistered -> Registered -> Subscribed -> Unsubscribed.
//
// Operations are meant to be invoked serially from a single UI action at a
// time; the platform push manager serializes subscription state per
// registration, so the Manager carries no locking of its own.
type Manager struct {
	platform  Platform
	registrar Registrar
	keys      *KeyResolver
	state     State
}

// NewManager creates a Manager on top of the given platform capabilities.
func NewManager(platform Platform, registrar Registrar, keys *KeyResolver) *Manager {
	return &Manager{
		platform:  platform,
		registrar: registrar,
		keys:      keys,
		state:     StateUnregistered,
	}
}

func (m *Manager) State() State {
	return m.state
}

// Register registers the service worker. Safe to call repeatedly.
func (m *Manager) Register(ctx context.Context) error {
	if err := m.registrar.Register(ctx); err != nil {
		log.Printf("Subscriber: worker registration failed: %s", err.Error())
		return err
	}
	if m.state == StateUnregistered {
		m.state = StateRegistered
	}
	return nil
}

// RequestPermission ensures notification permission is granted.
// Granted returns immediately; denied fails without prompting because the
// platform will not re-prompt; default issues the single user prompt.
func (m *Manager) RequestPermission(ctx context.Context) (bool, error) {
	switch m.platform.Permission() {
	case PermissionGranted:
		return true, nil
	case PermissionDenied:
		return false, ErrPermissionDenied
	}
	perm, err := m.platform.RequestPermission(ctx)
	if err != nil {
		return false, err
	}
	if perm != PermissionGranted {
		return false, ErrPermissionDenied
	}
	return true, nil
}

// Subscribe runs the whole flow: capability check, permission, worker
// registration, key resolution, key decoding, then the platform subscribe
// call with the raw 65 byte key. Any failing step aborts the rest and is
// reported as one of the package errors; nothing panics past this boundary.
func (m *Manager) Subscribe(ctx context.Context) (*webpush.Subscription, error) {
	if !m.platform.PushSupported() {
		return nil, ErrPushUnsupported
	}
	if ok, err := m.RequestPermission(ctx); !ok {
		return nil, err
	}
	if err := m.Register(ctx); err != nil {
		return nil, err
	}
	if err := m.registrar.Ready(ctx); err != nil {
		log.Printf("Subscriber: worker never became ready: %s", err.Error())
		return nil, err
	}

	key, err := m.keys.Resolve(ctx)
	if err != nil {
		log.Printf("Subscriber: no usable application server key: %s", err.Error())
		return nil, err
	}
	raw, err := DecodeKey(key)
	if err != nil {
		log.Printf("Subscriber: refusing to subscribe: %s", err.Error())
		return nil, err
	}

	sub, err := m.platform.Subscribe(ctx, raw)
	if err != nil {
		log.Printf("Subscriber: platform subscribe failed: %s", err.Error())
		return nil, err
	}
	m.state = StateSubscribed
	return sub, nil
}

// Unsubscribe cancels the current subscription if one exists.
// Having none is a no-op success, not an error.
func (m *Manager) Unsubscribe(ctx context.Context) (bool, error) {
	if err := m.registrar.Ready(ctx); err != nil {
		return false, err
	}
	sub, err := m.platform.Subscription(ctx)
	if err != nil {
		return false, err
	}
	if sub == nil {
		return false, nil
	}
	done, err := m.platform.Unsubscribe(ctx)
	if err != nil {
		return false, err
	}
	m.state = StateUnsubscribed
	return done, nil
}
