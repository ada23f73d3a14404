// Package config loads and validates the streamwatch configuration.
//
// Both JSON and YAML files are accepted; YAML is coerced to JSON so a single
// strict decoder (DisallowUnknownFields) covers both formats. Validation runs
// once at load time — the rest of the process only ever sees validated values.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// WebhookURLPrefix is the required prefix for Discord webhook sink URLs.
const WebhookURLPrefix = "https://discord.com/api/webhooks/"

// Load reads, decodes, and validates the config at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	jb, format, err := coerceToJSONBytes(path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config (%s): %w", format, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the whole config. It is the single gate: components
// downstream assume every field here has already been checked.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Twitch.ClientID) == "" {
		return fmt.Errorf("twitch.client_id is required")
	}
	if strings.TrimSpace(c.Twitch.ClientSecret) == "" {
		return fmt.Errorf("twitch.client_secret is required")
	}

	if _, err := ParseSchedule(c.Polling.Schedule); err != nil {
		return err
	}
	if tz := strings.TrimSpace(c.Polling.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("polling.timezone: unknown zone %q: %w", tz, err)
		}
	}

	if lvl := strings.ToLower(strings.TrimSpace(c.Logging.Level)); lvl != "" {
		switch lvl {
		case "trace", "debug", "info", "warn", "warning", "error":
		default:
			return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
		}
	}

	if c.Guard != nil && c.Guard.Enabled {
		if c.Guard.MemoryLimitMB < 0 {
			return fmt.Errorf("guard.memory_limit_mb must be >= 0")
		}
		if c.Guard.SampleEveryCycles < 0 {
			return fmt.Errorf("guard.sample_every_cycles must be >= 0")
		}
	}

	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}

	if len(c.Streamers) == 0 {
		return fmt.Errorf("streamers: at least one tracked streamer is required")
	}
	seen := make(map[string]struct{}, len(c.Streamers))
	for i, s := range c.Streamers {
		if strings.TrimSpace(s.Username) == "" {
			return fmt.Errorf("streamers[%d].username is required", i)
		}
		key := strings.ToLower(strings.TrimSpace(s.Username))
		if _, dup := seen[key]; dup {
			return fmt.Errorf("streamers[%d]: duplicate username %q", i, s.Username)
		}
		seen[key] = struct{}{}

		if len(s.Webhooks) == 0 {
			return fmt.Errorf("streamers[%d].webhooks: at least one sink is required", i)
		}
		for j, w := range s.Webhooks {
			if !strings.HasPrefix(w.URL, WebhookURLPrefix) {
				return fmt.Errorf("streamers[%d].webhooks[%d].url: not a Discord webhook URL", i, j)
			}
		}
	}

	return nil
}

// Schedule returns the parsed polling schedule. Only valid after Validate().
func (c *Config) Schedule() ParsedSpec {
	spec, _ := ParseSchedule(c.Polling.Schedule)
	return spec
}

// Location returns the configured display/cron timezone (UTC when unset).
// Only valid after Validate().
func (c *Config) Location() *time.Location {
	tz := strings.TrimSpace(c.Polling.Timezone)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
