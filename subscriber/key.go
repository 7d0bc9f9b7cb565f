package subscriber

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// KeyLength is the size of a raw VAPID application server key: an
// uncompressed P-256 point, leading byte 0x04.
const KeyLength = 65

// KeyPath is the backend path serving the public key when none is configured.
const KeyPath = "/notifications/vapid-public-key"

// DecodeKey decodes a URL-safe base64 VAPID public key into its raw bytes.
// The input is padded to a multiple of 4 with '=' and translated to the
// standard base64 alphabet before decoding.
//
// A decoded length of 66 bytes with a leading 0x04 is truncated to 65: some
// deployment pipelines ship the key with one spurious trailing byte, and this
// tolerates exactly that artifact. It is a documented workaround, not a
// general fix; every other length fails closed with ErrKeyInvalidLength so a
// bad key never reaches the push manager.
func DecodeKey(key string) ([]byte, error) {
	if m := len(key) % 4; m != 0 {
		key += strings.Repeat("=", 4-m)
	}
	key = strings.ReplaceAll(key, "-", "+")
	key = strings.ReplaceAll(key, "_", "/")

	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		// Undecodable keys fail closed the same way as mis-sized ones.
		return nil, ErrKeyInvalidLength
	}
	if len(raw) == KeyLength+1 && raw[0] == 0x04 {
		raw = raw[:KeyLength]
	}
	if len(raw) != KeyLength {
		return nil, ErrKeyInvalidLength
	}
	return raw, nil
}

// KeyResolver returns the VAPID public key to subscribe with: a locally
// configured key wins, otherwise the backend is asked.
type KeyResolver struct {
	configuredKey string
	baseURL       *url.URL
	client        *http.Client
}

// NewKeyResolver creates a resolver preferring configuredKey, falling back to
// fetching from baseURL. Either may be empty/nil; resolution then fails with
// ErrKeyUnavailable, which callers treat as "push unavailable".
func NewKeyResolver(configuredKey string, baseURL *url.URL) *KeyResolver {
	return &KeyResolver{
		configuredKey: configuredKey,
		baseURL:       baseURL,
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *KeyResolver) Resolve(ctx context.Context) (string, error) {
	if r.configuredKey != "" {
		return r.configuredKey, nil
	}
	if r.baseURL == nil {
		return "", ErrKeyUnavailable
	}

	keyURL := *r.baseURL
	keyURL.Path = strings.TrimSuffix(keyURL.Path, "/") + KeyPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, keyURL.String(), nil)
	if err != nil {
		return "", ErrKeyUnavailable
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		log.Printf("KeyResolver: fetching public key from %s failed: %s", keyURL.String(), err.Error())
		return "", ErrNetworkFailure
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("KeyResolver: backend returned status %d for public key", resp.StatusCode)
		return "", ErrKeyUnavailable
	}

	var body struct {
		PublicKey string `json:"public_key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.PublicKey == "" {
		return "", ErrKeyUnavailable
	}
	return body.PublicKey, nil
}
