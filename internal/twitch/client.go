package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"streamwatch/pkg/logx"
)

const defaultHelixBaseURL = "https://api.twitch.tv/helix"

// requestTimeout bounds a single Helix call. This is deliberately separate
// from the poll-cycle cadence: one slow call must not eat the whole cycle.
const requestTimeout = 15 * time.Second

// Client is the batched Helix read client.
//
// Every call obtains a token from the Broker, issues one HTTP request with all
// identifiers batched into the query, and fails fast on non-2xx with the
// response body embedded in the error. Empty batches return an empty map
// without a request — Helix rejects empty batch queries.
type Client struct {
	broker   *Broker
	clientID string
	baseURL  string
	httpc    *http.Client
	log      logx.Logger
}

type ClientOption func(*Client)

// WithBaseURL overrides the Helix base URL (tests).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.httpc = h }
}

func NewClient(broker *Broker, clientID string, log logx.Logger, opts ...ClientOption) *Client {
	c := &Client{
		broker:   broker,
		clientID: clientID,
		baseURL:  defaultHelixBaseURL,
		httpc:    http.DefaultClient,
		log:      log,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// request performs one authenticated Helix GET and decodes the data envelope.
func request[T any](ctx context.Context, c *Client, endpoint string, params url.Values) ([]T, error) {
	token, err := c.broker.Token(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	reqURL := c.baseURL + endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Client-Id", c.clientID)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("helix %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("helix %s: read response: %w", endpoint, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("helix %s: %d %s", endpoint, resp.StatusCode, string(body))
	}

	var env apiResponse[T]
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("helix %s: decode response: %w", endpoint, err)
	}

	return env.Data, nil
}

// Users fetches user identities. The result is keyed by lowercased login.
func (c *Client) Users(ctx context.Context, logins []string) (map[string]User, error) {
	if len(logins) == 0 {
		return map[string]User{}, nil
	}

	params := url.Values{}
	for _, login := range logins {
		params.Add("login", login)
	}

	users, err := request[User](ctx, c, "/users", params)
	if err != nil {
		return nil, err
	}

	result := make(map[string]User, len(users))
	for _, u := range users {
		result[strings.ToLower(u.Login)] = u
	}

	c.log.Debug("fetched users", logx.Int("count", len(users)))
	return result, nil
}

// Streams fetches live broadcasts for the given logins. Offline channels are
// simply absent from the result. Keyed by lowercased login.
func (c *Client) Streams(ctx context.Context, logins []string) (map[string]Stream, error) {
	if len(logins) == 0 {
		return map[string]Stream{}, nil
	}

	params := url.Values{}
	for _, login := range logins {
		params.Add("user_login", login)
	}

	streams, err := request[Stream](ctx, c, "/streams", params)
	if err != nil {
		return nil, err
	}

	result := make(map[string]Stream, len(streams))
	for _, s := range streams {
		result[strings.ToLower(s.UserLogin)] = s
	}

	c.log.Debug("fetched streams", logx.Int("live", len(streams)))
	return result, nil
}

// Channels fetches channel metadata (title/category) by broadcaster id.
// Keyed by lowercased login.
func (c *Client) Channels(ctx context.Context, broadcasterIDs []string) (map[string]Channel, error) {
	if len(broadcasterIDs) == 0 {
		return map[string]Channel{}, nil
	}

	params := url.Values{}
	for _, id := range broadcasterIDs {
		params.Add("broadcaster_id", id)
	}

	channels, err := request[Channel](ctx, c, "/channels", params)
	if err != nil {
		return nil, err
	}

	result := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		result[strings.ToLower(ch.BroadcasterLogin)] = ch
	}

	c.log.Debug("fetched channels", logx.Int("count", len(channels)))
	return result, nil
}

// LatestVOD fetches the most recent archive VOD for a user, or nil when the
// user has none.
func (c *Client) LatestVOD(ctx context.Context, userID string) (*Video, error) {
	params := url.Values{
		"user_id": {userID},
		"type":    {"archive"},
		"first":   {"1"},
	}

	videos, err := request[Video](ctx, c, "/videos", params)
	if err != nil {
		return nil, err
	}

	if len(videos) == 0 {
		return nil, nil
	}
	return &videos[0], nil
}
