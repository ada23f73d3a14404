// Package discord builds webhook payloads from change events and delivers
// them to the configured sinks.
package discord

import (
	"fmt"
	"strings"
	"time"

	"streamwatch/internal/config"
	"streamwatch/internal/watch"
)

// EmbedField is one name/value entry of an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}

type EmbedAuthor struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
}

type EmbedImage struct {
	URL string `json:"url"`
}

// Embed is the Discord embed object carried in a webhook payload.
type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color"`
	Thumbnail   *EmbedImage  `json:"thumbnail,omitempty"`
	Image       *EmbedImage  `json:"image,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Author      *EmbedAuthor `json:"author,omitempty"`
}

// One fixed color per event kind; the merged kind gets its own color,
// distinct from either half.
var kindColors = map[watch.ChangeKind]int{
	watch.ChangeOnline:           0x9146FF,
	watch.ChangeOffline:          0x808080,
	watch.ChangeTitle:            0x00FF00,
	watch.ChangeCategory:         0xFF9900,
	watch.ChangeTitleAndCategory: 0x00CCFF,
}

var kindTitles = map[watch.ChangeKind]string{
	watch.ChangeOnline:           "Stream started",
	watch.ChangeOffline:          "Stream ended",
	watch.ChangeTitle:            "Title changed",
	watch.ChangeCategory:         "Category changed",
	watch.ChangeTitleAndCategory: "Title and category changed",
}

// MessageBuilder renders change events into embeds. Clock-style values are
// shown in the configured display timezone.
type MessageBuilder struct {
	loc *time.Location
	now func() time.Time
}

func NewMessageBuilder(loc *time.Location) *MessageBuilder {
	if loc == nil {
		loc = time.UTC
	}
	return &MessageBuilder{loc: loc, now: time.Now}
}

// Build constructs the embed for one change event.
func (b *MessageBuilder) Build(change watch.Change) Embed {
	state := change.State
	channelURL := "https://twitch.tv/" + state.Login

	embed := Embed{
		Title:     kindTitles[change.Kind],
		URL:       channelURL,
		Color:     kindColors[change.Kind],
		Timestamp: b.now().UTC().Format(time.RFC3339),
		Author: &EmbedAuthor{
			Name:    state.DisplayName,
			IconURL: state.ProfileImageURL,
		},
	}

	switch change.Kind {
	case watch.ChangeOnline:
		embed.Description = orDefault(state.Title, "(no title)")

		fields := []EmbedField{
			{Name: "Category", Value: orDefault(state.GameName, "(none)"), Inline: true},
		}
		if start, err := time.Parse(time.RFC3339, state.StartedAt); err == nil {
			fields = append(fields, EmbedField{
				Name:   "Started",
				Value:  b.clock(start),
				Inline: true,
			})
			if elapsed := b.formatElapsed(start); elapsed != "" {
				embed.Footer = &EmbedFooter{Text: "live for " + elapsed}
			}
		}
		embed.Fields = fields

		if state.ThumbnailURL != "" {
			preview := strings.ReplaceAll(state.ThumbnailURL, "{width}", config.ThumbnailWidth)
			preview = strings.ReplaceAll(preview, "{height}", config.ThumbnailHeight)
			embed.Image = &EmbedImage{URL: preview}
		}

	case watch.ChangeOffline:
		embed.Description = "The stream has ended"

		var fields []EmbedField
		now := b.now()
		if start, err := time.Parse(time.RFC3339, change.StreamStartedAt); err == nil {
			fields = append(fields, EmbedField{
				Name: "Duration",
				Value: fmt.Sprintf("%s → %s (%s)",
					b.clock(start), b.clock(now), formatSpan(now.Sub(start))),
			})
		} else {
			fields = append(fields, EmbedField{
				Name:   "Ended",
				Value:  b.clock(now),
				Inline: true,
			})
		}

		if change.VODURL != "" {
			fields = append(fields, EmbedField{
				Name:  "VOD",
				Value: fmt.Sprintf("[Watch the recording](%s)", change.VODURL),
			})
		}
		embed.Fields = fields

		if change.VODThumbnailURL != "" {
			embed.Image = &EmbedImage{URL: change.VODThumbnailURL}
		}

	case watch.ChangeTitle:
		embed.Fields = []EmbedField{
			{Name: "Before", Value: orDefault(change.OldValue, "(none)")},
			{Name: "After", Value: orDefault(change.NewValue, "(none)")},
		}

	case watch.ChangeCategory:
		embed.Fields = []EmbedField{
			{Name: "Before", Value: orDefault(change.OldValue, "(none)"), Inline: true},
			{Name: "After", Value: orDefault(change.NewValue, "(none)"), Inline: true},
		}

	case watch.ChangeTitleAndCategory:
		embed.Fields = []EmbedField{
			{
				Name:  "Title",
				Value: fmt.Sprintf("%s\n→ %s", orDefault(change.OldTitle, "(none)"), orDefault(change.NewTitle, "(none)")),
			},
			{
				Name:  "Category",
				Value: fmt.Sprintf("%s\n→ %s", orDefault(change.OldGame, "(none)"), orDefault(change.NewGame, "(none)")),
			},
		}
	}

	// Title/category updates on a running stream get a live marker unless the
	// online footer already claimed the slot.
	if isUpdateKind(change.Kind) && state.IsLive && embed.Footer == nil {
		embed.Footer = &EmbedFooter{Text: "Live now"}
	}

	return embed
}

func isUpdateKind(k watch.ChangeKind) bool {
	switch k {
	case watch.ChangeTitle, watch.ChangeCategory, watch.ChangeTitleAndCategory:
		return true
	default:
		return false
	}
}

func (b *MessageBuilder) clock(t time.Time) string {
	return t.In(b.loc).Format("15:04")
}

// formatElapsed renders time since start, or "" when the stream just started
// (a "live for 0m" footer is noise).
func (b *MessageBuilder) formatElapsed(start time.Time) string {
	diff := b.now().Sub(start)
	if diff < time.Minute {
		return ""
	}
	return formatSpan(diff)
}

func formatSpan(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Minutes())
	hours := total / 60
	mins := total % 60
	if hours == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dh%dm", hours, mins)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
