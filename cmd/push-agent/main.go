// Command push-agent maintains a web push subscription for desktop
// deployments that run without a browser. It runs the same subscription flow
// as the web client, against the headless local platform, then registers the
// resulting subscription with the backend.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/leadinbox/inbox-push/subscriber"
)

// registerRequest builds the backend registration call. The backend expects
// the session cookie under its hardened __Host- name when it serves TLS and
// under the plain name otherwise; the agent sends both so it authenticates
// against either deployment.
func registerRequest(ctx context.Context, base *url.URL, sessionCookie string, body []byte) (*http.Request, error) {
	registerURL := *base
	registerURL.Path = "/notifications/subscriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registerURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for _, name := range []string{"inbox_session", "__Host-inbox_session"} {
		req.AddCookie(&http.Cookie{Name: name, Value: sessionCookie})
	}
	return req, nil
}

type agentConfig struct {
	APIBaseURL     string `envconfig:"APIBASEURL" required:"true"`
	PushEndpoint   string `envconfig:"PUSHENDPOINT" required:"true"`
	VapidPublicKey string `envconfig:"VAPIDPUBLICKEY"`
	SessionCookie  string `envconfig:"SESSIONCOOKIE" required:"true"`
	Unsubscribe    bool   `envconfig:"UNSUBSCRIBE"`
}

func main() {
	var config agentConfig
	if err := envconfig.Process("AGENT", &config); err != nil {
		log.Fatal(err.Error())
	}
	base, err := url.Parse(config.APIBaseURL)
	if err != nil {
		log.Fatalf("AGENT_APIBASEURL is not a valid URL: %s", err.Error())
	}

	platform := subscriber.NewLocalPlatform(config.PushEndpoint)
	manager := subscriber.NewManager(
		platform,
		subscriber.LocalRegistrar{},
		subscriber.NewKeyResolver(config.VapidPublicKey, base),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if config.Unsubscribe {
		done, err := manager.Unsubscribe(ctx)
		if err != nil {
			log.Fatalf("Agent: could not unsubscribe: %s", err.Error())
		}
		if !done {
			log.Printf("Agent: no subscription to cancel")
		}
		return
	}

	sub, err := manager.Subscribe(ctx)
	if err != nil {
		// Not fatal for the host process: notifications are simply unavailable.
		log.Printf("Agent: push unavailable: %s", err.Error())
		return
	}

	body, err := json.Marshal(sub)
	if err != nil {
		log.Fatalf("Agent: could not serialize subscription: %s", err.Error())
	}
	req, err := registerRequest(ctx, base, config.SessionCookie, body)
	if err != nil {
		log.Fatalf("Agent: %s", err.Error())
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Agent: could not register subscription with backend: %s", err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		log.Fatalf("Agent: backend refused the subscription with status %d", resp.StatusCode)
	}
	log.Printf("Agent: subscription registered, endpoint %s", sub.Endpoint)
}
