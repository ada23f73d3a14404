package config

// Size substituted into Twitch thumbnail URL placeholders
// ({width}x{height} for live previews, %{width}x%{height} for VODs).
const (
	ThumbnailWidth  = "440"
	ThumbnailHeight = "248"
)

// Config is the full application configuration.
//
// It is loaded and validated once at startup and treated as immutable by the
// rest of the process. There is no mid-run reload.
type Config struct {
	Twitch  TwitchConfig  `json:"twitch"`
	Polling PollingConfig `json:"polling"`
	Logging LoggingConfig `json:"logging"`

	// Guard enables the optional memory resource guard.
	// If omitted, the guard is disabled.
	Guard *GuardConfig `json:"guard,omitempty"`

	// Storage enables the optional event-history store.
	// If omitted, history is disabled.
	Storage *StorageConfig `json:"storage,omitempty"`

	Streamers []StreamerConfig `json:"streamers"`
}

// TwitchConfig holds the Helix client-credentials pair.
type TwitchConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// PollingConfig controls poll cadence.
//
// Schedule accepts either an interval ("90s", "2m", optionally prefixed
// "interval:") or a cron expression ("*/2 * * * *", "@every 90s", optionally
// prefixed "cron:"). Intervals below 10s are rejected at load time.
type PollingConfig struct {
	Schedule string `json:"schedule"`

	// Timezone is the IANA zone used for cron evaluation and embed
	// timestamps (e.g. "Asia/Tokyo"). Empty means UTC.
	Timezone string `json:"timezone,omitempty"`
}

// GuardConfig controls the memory resource guard.
//
// When runtime memory exceeds MemoryLimitMB, the process requests a restart;
// the poller honors it only once every tracked streamer is offline, so a live
// notification sequence is never cut short.
type GuardConfig struct {
	Enabled bool `json:"enabled"`

	MemoryLimitMB int `json:"memory_limit_mb,omitempty"` // default 512

	// SampleEveryCycles is how many poll cycles pass between samples.
	SampleEveryCycles int `json:"sample_every_cycles,omitempty"` // default 10
}

// StorageConfig controls the optional event-history layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./streamwatch_history" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// NotificationSettings are the per-sink interest flags.
type NotificationSettings struct {
	Online         bool `json:"online"`
	Offline        bool `json:"offline"`
	TitleChange    bool `json:"title_change"`
	CategoryChange bool `json:"category_change"`
}

// WebhookConfig is one Discord webhook sink.
type WebhookConfig struct {
	Name          string               `json:"name,omitempty"`
	URL           string               `json:"url"`
	Notifications NotificationSettings `json:"notifications"`
}

// StreamerConfig is one tracked broadcaster with its sinks.
type StreamerConfig struct {
	Username string          `json:"username"`
	Webhooks []WebhookConfig `json:"webhooks"`
}
