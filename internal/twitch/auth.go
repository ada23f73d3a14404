package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"streamwatch/pkg/logx"
)

const defaultTokenURL = "https://id.twitch.tv/oauth2/token"

// tokenExpiryMargin is how long before the recorded expiry a token stops being
// usable, so a token can't expire mid-request.
const tokenExpiryMargin = time.Minute

const tokenTimeout = 15 * time.Second

// Broker manages the client-credentials token for all Helix calls.
//
// Access is mutex-serialized: concurrent callers during a refresh observe a
// single refresh attempt, never one per caller. A failed refresh leaves the
// previous credential untouched.
type Broker struct {
	clientID     string
	clientSecret string
	tokenURL     string
	httpc        *http.Client
	log          logx.Logger

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

type BrokerOption func(*Broker)

// WithTokenURL overrides the token endpoint (tests).
func WithTokenURL(u string) BrokerOption {
	return func(b *Broker) { b.tokenURL = u }
}

func WithBrokerHTTPClient(c *http.Client) BrokerOption {
	return func(b *Broker) { b.httpc = c }
}

func NewBroker(clientID, clientSecret string, log logx.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     defaultTokenURL,
		httpc:        http.DefaultClient,
		log:          log,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Token returns a usable access token, refreshing it when the cached one is
// missing or within the expiry margin.
func (b *Broker) Token(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.accessToken != "" && time.Now().Before(b.expiresAt.Add(-tokenExpiryMargin)) {
		return b.accessToken, nil
	}

	return b.refreshLocked(ctx)
}

func (b *Broker) refreshLocked(ctx context.Context) (string, error) {
	b.log.Debug("refreshing twitch access token")

	ctx, cancel := context.WithTimeout(ctx, tokenTimeout)
	defer cancel()

	form := url.Values{
		"client_id":     {b.clientID},
		"client_secret": {b.clientSecret},
		"grant_type":    {"client_credentials"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("twitch auth failed: %d %s", resp.StatusCode, string(body))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	b.accessToken = tok.AccessToken
	b.expiresAt = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)

	b.log.Debug("twitch access token refreshed",
		logx.Time("expires_at", b.expiresAt))
	return b.accessToken, nil
}
