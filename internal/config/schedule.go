package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SpecKind describes the normalized kind of a polling schedule string.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// MinPollInterval is the floor for interval schedules. The Helix API is
// batched, but polling tighter than this buys nothing and burns quota.
const MinPollInterval = 10 * time.Second

// ParsedSpec represents a parsed polling schedule.
//
// Supported forms:
//   - Cron (crontab.guru-style): "*/2 * * * *", "@hourly", "@every 90s"
//   - Interval duration: "90s", "2m30s"
//
// Optional prefixes:
//   - "cron:" forces cron parsing
//   - "interval:" or "every:" forces interval parsing
type ParsedSpec struct {
	Kind  SpecKind
	Cron  string
	Every time.Duration
}

// CronParser is the parser used for all cron schedules in this repo
// (standard 5-field spec plus descriptors like @hourly / @every).
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a polling schedule string into either a validated cron
// expression or an interval duration.
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("polling.schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCronSpec(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "interval:"):
		return parseIntervalSpec(strings.TrimSpace(s[len("interval:"):]))
	case strings.HasPrefix(low, "every:"):
		return parseIntervalSpec(strings.TrimSpace(s[len("every:"):]))
	}

	// Heuristic: whitespace or a leading '@' means cron.
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return parseCronSpec(s)
	}

	if d, err := time.ParseDuration(s); err == nil {
		return intervalSpec(d)
	}

	return ParsedSpec{}, fmt.Errorf(
		"invalid polling.schedule %q (use cron like '*/2 * * * *' or a duration like '90s')", raw)
}

func parseCronSpec(expr string) (ParsedSpec, error) {
	if expr == "" {
		return ParsedSpec{}, fmt.Errorf("cron schedule required after 'cron:'")
	}
	if _, err := CronParser.Parse(expr); err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return ParsedSpec{Kind: SpecCron, Cron: expr}, nil
}

func parseIntervalSpec(v string) (ParsedSpec, error) {
	if v == "" {
		return ParsedSpec{}, fmt.Errorf("interval required")
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid interval %q: %w", v, err)
	}
	return intervalSpec(d)
}

func intervalSpec(d time.Duration) (ParsedSpec, error) {
	if d < MinPollInterval {
		return ParsedSpec{}, fmt.Errorf("polling interval %s below minimum %s", d, MinPollInterval)
	}
	return ParsedSpec{Kind: SpecInterval, Every: d}, nil
}
