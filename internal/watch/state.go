// Package watch is the polling / change-detection / dispatch engine.
package watch

import (
	"strings"
	"sync"
)

// StreamerState is the complete known status of one tracked streamer at one
// point in time. Snapshots are wholesale-replaced every cycle, never mutated.
type StreamerState struct {
	UserID          string
	Login           string
	DisplayName     string
	ProfileImageURL string
	IsLive          bool
	Title           string
	GameID          string
	GameName        string
	StartedAt       string // RFC 3339, set only while live
	ThumbnailURL    string // set only while live
	ViewerCount     int
}

// StateStore is the in-memory last-known-state cache.
//
// Keys are case-folded logins; folding happens here, not at call sites, so
// "Foo" and "foo" can never produce duplicate entries.
type StateStore struct {
	mu     sync.RWMutex
	states map[string]StreamerState
}

func NewStateStore() *StateStore {
	return &StateStore{states: make(map[string]StreamerState)}
}

// Get returns the snapshot for login, or nil when the streamer has no
// baseline yet.
func (s *StateStore) Get(login string) *StreamerState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[strings.ToLower(login)]
	if !ok {
		return nil
	}
	return &st
}

// Update replaces the snapshot for login.
func (s *StateStore) Update(login string, st StreamerState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[strings.ToLower(login)] = st
}

// Len reports how many streamers have a baseline.
func (s *StateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}
