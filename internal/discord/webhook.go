package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"streamwatch/internal/config"
	"streamwatch/internal/storage"
	"streamwatch/internal/watch"
	"streamwatch/pkg/logx"
)

// webhookTimeout bounds one delivery attempt.
const webhookTimeout = 30 * time.Second

const defaultRatePerSec = 5

// WebhookPayload is the JSON body posted to a Discord webhook.
type WebhookPayload struct {
	Embeds    []Embed `json:"embeds"`
	Username  string  `json:"username,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
}

// Sender delivers change events to webhook sinks.
//
// Deliveries within one Dispatch call run concurrently and are awaited as a
// group; each failure is isolated to its sink. Partial failure is the
// expected steady state under flaky endpoints, not an exceptional one.
type Sender struct {
	httpc   *http.Client
	limiter *rate.Limiter
	builder *MessageBuilder
	history storage.Store
	log     logx.Logger
}

type SenderOption func(*Sender)

func WithSenderHTTPClient(c *http.Client) SenderOption {
	return func(s *Sender) { s.httpc = c }
}

// WithRatePerSec caps outbound webhook posts (token bucket, burst = rate).
func WithRatePerSec(n int) SenderOption {
	return func(s *Sender) {
		if n > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(n), n)
		}
	}
}

// WithHistory records fired events and delivery outcomes to the store.
func WithHistory(st storage.Store) SenderOption {
	return func(s *Sender) { s.history = st }
}

func NewSender(builder *MessageBuilder, log logx.Logger, opts ...SenderOption) *Sender {
	s := &Sender{
		httpc:   http.DefaultClient,
		limiter: rate.NewLimiter(defaultRatePerSec, defaultRatePerSec),
		builder: builder,
		log:     log,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type deliveryTally struct {
	sinks     int
	delivered atomic.Int64
	failed    atomic.Int64
}

// Dispatch builds one payload per change, posts it to every interested sink
// concurrently, and returns once all deliveries have settled.
func (s *Sender) Dispatch(ctx context.Context, changes []watch.Change, sc config.StreamerConfig) {
	tallies := make([]deliveryTally, len(changes))

	var wg sync.WaitGroup
	for ci := range changes {
		change := changes[ci]
		payload := WebhookPayload{
			Embeds:    []Embed{s.builder.Build(change)},
			Username:  change.State.DisplayName,
			AvatarURL: change.State.ProfileImageURL,
		}

		var interested []config.WebhookConfig
		for _, hook := range sc.Webhooks {
			if watch.SinkAccepts(change.Kind, hook.Notifications) {
				interested = append(interested, hook)
			}
		}

		tally := &tallies[ci]
		tally.sinks = len(interested)
		total := len(interested)

		for i, hook := range interested {
			wg.Add(1)
			go func(idx int, hook config.WebhookConfig) {
				defer wg.Done()
				if err := s.send(ctx, hook.URL, payload); err != nil {
					tally.failed.Add(1)
					s.log.Error("webhook delivery failed",
						logx.String("streamer", change.State.DisplayName),
						logx.String("kind", change.Kind.String()),
						logx.String("sink", sinkLabel(hook)),
						logx.Int("index", idx+1),
						logx.Int("total", total),
						logx.Err(err))
					return
				}
				tally.delivered.Add(1)
				s.log.Info("notification delivered",
					logx.String("streamer", change.State.DisplayName),
					logx.String("kind", change.Kind.String()),
					logx.String("sink", sinkLabel(hook)))
			}(i, hook)
		}
	}
	wg.Wait()

	s.record(ctx, changes, tallies)
}

// send posts one payload to one webhook. The shared limiter smooths bursts
// across sinks; each attempt gets its own timeout.
func (s *Sender) send(ctx context.Context, webhookURL string, payload WebhookPayload) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook rejected: %d %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (s *Sender) record(ctx context.Context, changes []watch.Change, tallies []deliveryTally) {
	if s.history == nil {
		return
	}
	for i, change := range changes {
		rec := storage.EventRecord{
			At:        time.Now(),
			Streamer:  change.State.Login,
			Kind:      change.Kind.String(),
			Title:     change.State.Title,
			Category:  change.State.GameName,
			VODURL:    change.VODURL,
			Sinks:     tallies[i].sinks,
			Delivered: int(tallies[i].delivered.Load()),
			Failed:    int(tallies[i].failed.Load()),
		}
		if err := s.history.AppendEvent(ctx, rec); err != nil {
			s.log.Warn("event history append failed", logx.Err(err))
		}
	}
}

func sinkLabel(hook config.WebhookConfig) string {
	if hook.Name != "" {
		return hook.Name
	}
	return "webhook"
}
