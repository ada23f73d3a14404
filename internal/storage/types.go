package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("history storage disabled")

// Config configures the event-history store.
//
// Driver values:
//   - "file": dependency-free append-only JSON Lines file
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", history is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// EventRecord records one fired change event and its delivery outcome.
// Keep it compact and schema-stable.
type EventRecord struct {
	At        time.Time
	Streamer  string
	Kind      string
	Title     string
	Category  string
	VODURL    string
	Sinks     int
	Delivered int
	Failed    int
}
