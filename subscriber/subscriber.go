// Package subscriber implements the client side of the web push flow: worker
// registration, notification permission handling, application server key
// resolution and the subscribe/unsubscribe lifecycle.
//
// The platform pieces (push manager, permission prompt, worker registration,
// page reload) sit behind small interfaces so the whole flow can run against
// fakes in tests and against LocalPlatform in the headless companion agent.
package subscriber

import (
	"context"
	"errors"

	"github.com/SherClockHolmes/webpush-go"
)

// Permission is the platform notification permission, owned by the platform.
// Once denied it cannot be reset from here.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// State tracks where a Manager is in the subscription lifecycle.
type State int

const (
	StateUnregistered State = iota
	StateRegistered
	StateSubscribed
	StateUnsubscribed
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateSubscribed:
		return "subscribed"
	case StateUnsubscribed:
		return "unsubscribed"
	}
	return "unknown"
}

// All failures of the subscription flow map to one of these. Callers are
// expected to degrade to "notifications unavailable", never to crash.
var (
	ErrPermissionDenied = errors.New("notification permission denied")
	ErrPushUnsupported  = errors.New("push is not supported on this platform")
	ErrKeyUnavailable   = errors.New("application server key unavailable")
	ErrKeyInvalidLength = errors.New("invalid application server key length")
	ErrNetworkFailure   = errors.New("network failure fetching application server key")
)

// Platform abstracts the push manager and the notification permission of the
// host platform.
type Platform interface {
	// PushSupported reports whether a push manager exists at all.
	PushSupported() bool
	// Permission returns the current permission without prompting.
	Permission() Permission
	// RequestPermission issues the one-time user prompt and returns the choice.
	RequestPermission(ctx context.Context) (Permission, error)
	// Subscribe requests a push subscription for the given raw application
	// server key (65 bytes, uncompressed P-256 point).
	Subscribe(ctx context.Context, applicationServerKey []byte) (*webpush.Subscription, error)
	// Subscription returns the current subscription, or nil when none exists.
	Subscription(ctx context.Context) (*webpush.Subscription, error)
	// Unsubscribe cancels the current subscription. Reports false when there
	// was nothing to cancel.
	Unsubscribe(ctx context.Context) (bool, error)
}

// Registrar abstracts the service worker registration owning the subscription.
type Registrar interface {
	// Register registers the worker at its fixed scope. Idempotent: the
	// platform treats re-registration with the same script as a no-op.
	Register(ctx context.Context) error
	// Ready blocks until the registration is active.
	Ready(ctx context.Context) error
	// Activate signals a waiting, already installed worker to take over.
	Activate(ctx context.Context) error
}

// Prompter asks the user to confirm applying a pending worker update.
type Prompter interface {
	ConfirmUpdate(ctx context.Context) bool
}

// Reloader reloads the page (or restarts the agent) after a worker update.
type Reloader interface {
	Reload()
}
