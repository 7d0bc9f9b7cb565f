package subscriber

import (
	"context"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gofrs/uuid"
)

// LocalPlatform is a headless Platform for the desktop companion agent,
// standing in for a browser push manager. It mints its own subscription
// keys (P-256 keypair plus 16 byte auth secret) against a push rendezvous
// endpoint instead of asking a browser for them.
//
// There is no user gesture to wait for in a headless agent, so requesting
// permission grants it; operators disable notifications through the agent
// config instead.
type LocalPlatform struct {
	endpoint   string
	permission Permission
	sub        *webpush.Subscription
}

func NewLocalPlatform(endpoint string) *LocalPlatform {
	return &LocalPlatform{endpoint: endpoint, permission: PermissionDefault}
}

func (p *LocalPlatform) PushSupported() bool {
	return p.endpoint != ""
}

func (p *LocalPlatform) Permission() Permission {
	return p.permission
}

func (p *LocalPlatform) RequestPermission(ctx context.Context) (Permission, error) {
	if p.permission == PermissionDefault {
		p.permission = PermissionGranted
	}
	return p.permission, nil
}

func (p *LocalPlatform) Subscribe(ctx context.Context, applicationServerKey []byte) (*webpush.Subscription, error) {
	if !p.PushSupported() {
		return nil, ErrPushUnsupported
	}
	if p.permission != PermissionGranted {
		return nil, ErrPermissionDenied
	}
	if len(applicationServerKey) != KeyLength || applicationServerKey[0] != 0x04 {
		return nil, ErrKeyInvalidLength
	}
	if p.sub != nil {
		return p.sub, nil
	}

	_, x, y, err := elliptic.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	p256dh := elliptic.Marshal(elliptic.P256(), x, y)
	auth := make([]byte, 16)
	if _, err := rand.Read(auth); err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	p.sub = &webpush.Subscription{
		Endpoint: strings.TrimSuffix(p.endpoint, "/") + "/" + id.String(),
		Keys: webpush.Keys{
			P256dh: base64.RawURLEncoding.EncodeToString(p256dh),
			Auth:   base64.RawURLEncoding.EncodeToString(auth),
		},
	}
	return p.sub, nil
}

func (p *LocalPlatform) Subscription(ctx context.Context) (*webpush.Subscription, error) {
	return p.sub, nil
}

func (p *LocalPlatform) Unsubscribe(ctx context.Context) (bool, error) {
	if p.sub == nil {
		return false, nil
	}
	p.sub = nil
	return true, nil
}

// LocalRegistrar satisfies Registrar for the headless agent, which has no
// service worker to register.
type LocalRegistrar struct{}

func (LocalRegistrar) Register(ctx context.Context) error { return nil }
func (LocalRegistrar) Ready(ctx context.Context) error    { return nil }
func (LocalRegistrar) Activate(ctx context.Context) error { return nil }
