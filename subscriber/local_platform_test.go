package subscriber

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestLocalPlatformSubscribe(t *testing.T) {
	ctx := context.Background()
	p := NewLocalPlatform("https://push.example.com/rendezvous")

	if _, err := p.RequestPermission(ctx); err != nil {
		t.Fatal(err)
	}
	sub, err := p.Subscribe(ctx, rawKey(KeyLength, 0x04))
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(sub.Endpoint, "https://push.example.com/rendezvous/") {
		t.Errorf("endpoint %q not under the rendezvous URL", sub.Endpoint)
	}
	p256dh, err := base64.RawURLEncoding.DecodeString(sub.Keys.P256dh)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(p256dh), KeyLength; have != want {
		t.Errorf("p256dh length: have %d, want %d", have, want)
	}
	if p256dh[0] != 0x04 {
		t.Errorf("p256dh is not an uncompressed point")
	}
	auth, err := base64.RawURLEncoding.DecodeString(sub.Keys.Auth)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(auth), 16; have != want {
		t.Errorf("auth secret length: have %d, want %d", have, want)
	}

	// Re-subscribing from the same agent returns the existing subscription.
	again, err := p.Subscribe(ctx, rawKey(KeyLength, 0x04))
	if err != nil {
		t.Fatal(err)
	}
	if again.Endpoint != sub.Endpoint {
		t.Errorf("re-subscribe minted a new subscription")
	}
}

func TestLocalPlatformRejectsBadKey(t *testing.T) {
	ctx := context.Background()
	p := NewLocalPlatform("https://push.example.com/rendezvous")
	if _, err := p.RequestPermission(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := p.Subscribe(ctx, rawKey(KeyLength-1, 0x04)); !errors.Is(err, ErrKeyInvalidLength) {
		t.Errorf("short key: have %v, want ErrKeyInvalidLength", err)
	}
	if _, err := p.Subscribe(ctx, rawKey(KeyLength, 0x05)); !errors.Is(err, ErrKeyInvalidLength) {
		t.Errorf("missing point marker: have %v, want ErrKeyInvalidLength", err)
	}
}

func TestLocalPlatformUnsubscribe(t *testing.T) {
	ctx := context.Background()
	p := NewLocalPlatform("https://push.example.com/rendezvous")
	if _, err := p.RequestPermission(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Subscribe(ctx, rawKey(KeyLength, 0x04)); err != nil {
		t.Fatal(err)
	}

	done, err := p.Unsubscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !done {
		t.Errorf("have done=false, want cancellation")
	}
	done, err = p.Unsubscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if done {
		t.Errorf("second unsubscribe must be a no-op")
	}
}
