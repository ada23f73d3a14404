package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"streamwatch/internal/config"
	"streamwatch/internal/twitch"
	"streamwatch/pkg/logx"
)

// helixStub is a minimal in-memory Helix backend.
type helixStub struct {
	mu          sync.Mutex
	users       []twitch.User
	streams     []twitch.Stream
	channels    []twitch.Channel
	videos      []twitch.Video
	failStreams bool
}

func (h *helixStub) setLive(s []twitch.Stream) {
	h.mu.Lock()
	h.streams = s
	h.mu.Unlock()
}

func (h *helixStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var data any
	switch r.URL.Path {
	case "/users":
		data = h.users
	case "/streams":
		if h.failStreams {
			http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
			return
		}
		data = h.streams
	case "/channels":
		data = h.channels
	case "/videos":
		data = h.videos
	default:
		http.NotFound(w, r)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

type captureDispatcher struct {
	mu    sync.Mutex
	calls [][]Change
}

func (d *captureDispatcher) Dispatch(_ context.Context, changes []Change, _ config.StreamerConfig) {
	d.mu.Lock()
	d.calls = append(d.calls, append([]Change(nil), changes...))
	d.mu.Unlock()
}

func (d *captureDispatcher) all() []Change {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Change
	for _, c := range d.calls {
		out = append(out, c...)
	}
	return out
}

func testPoller(t *testing.T, stub *helixStub) (*Poller, *captureDispatcher) {
	t.Helper()

	api := httptest.NewServer(stub)
	t.Cleanup(api.Close)
	tok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"tok","expires_in":3600,"token_type":"bearer"}`)
	}))
	t.Cleanup(tok.Close)

	broker := twitch.NewBroker("cid", "sec", logx.Nop(), twitch.WithTokenURL(tok.URL))
	client := twitch.NewClient(broker, "cid", logx.Nop(), twitch.WithBaseURL(api.URL))

	cfg := &config.Config{
		Polling: config.PollingConfig{Schedule: "30s"},
		Streamers: []config.StreamerConfig{
			{
				Username: "Foo",
				Webhooks: []config.WebhookConfig{{
					URL:           config.WebhookURLPrefix + "1/t",
					Notifications: config.NotificationSettings{Online: true, Offline: true, TitleChange: true, CategoryChange: true},
				}},
			},
		},
	}

	disp := &captureDispatcher{}
	p, err := NewPoller(client, cfg, disp, logx.Nop())
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	return p, disp
}

func fooUser() twitch.User {
	return twitch.User{ID: "1", Login: "foo", DisplayName: "Foo", ProfileImageURL: "https://a/p.png"}
}

func fooStream(title, gameID, gameName string) twitch.Stream {
	return twitch.Stream{
		ID: "s1", UserID: "1", UserLogin: "foo", UserName: "Foo",
		GameID: gameID, GameName: gameName, Title: title,
		ViewerCount: 3, StartedAt: "2024-01-01T00:00:00Z",
		ThumbnailURL: "https://t/{width}x{height}.jpg",
	}
}

func TestPollerLiveBaselineSynthesizesOnline(t *testing.T) {
	t.Parallel()
	stub := &helixStub{
		users:   []twitch.User{fooUser()},
		streams: []twitch.Stream{fooStream("hello", "g1", "Game One")},
	}
	p, disp := testPoller(t, stub)

	ctx := context.Background()
	if err := p.initUsers(ctx); err != nil {
		t.Fatalf("initUsers: %v", err)
	}
	p.cycle(ctx)

	got := disp.all()
	if len(got) != 1 || got[0].Kind != ChangeOnline {
		t.Fatalf("changes = %+v, want single synthesized online", got)
	}
	st := p.Store().Get("foo")
	if st == nil || !st.IsLive || st.Title != "hello" {
		t.Fatalf("stored state = %+v", st)
	}
}

func TestPollerOfflineBaselineIsSilent(t *testing.T) {
	t.Parallel()
	stub := &helixStub{
		users:    []twitch.User{fooUser()},
		channels: []twitch.Channel{{BroadcasterID: "1", BroadcasterLogin: "foo", Title: "resting", GameID: "g1", GameName: "Game One"}},
	}
	p, disp := testPoller(t, stub)

	ctx := context.Background()
	if err := p.initUsers(ctx); err != nil {
		t.Fatalf("initUsers: %v", err)
	}
	p.cycle(ctx)

	if got := disp.all(); len(got) != 0 {
		t.Fatalf("changes = %+v, want none for offline baseline", got)
	}
	st := p.Store().Get("foo")
	if st == nil || st.IsLive || st.Title != "resting" {
		t.Fatalf("stored state = %+v", st)
	}
}

func TestPollerAbandonedCycleLeavesStoreUntouched(t *testing.T) {
	t.Parallel()
	stub := &helixStub{
		users:   []twitch.User{fooUser()},
		streams: []twitch.Stream{fooStream("hello", "g1", "Game One")},
	}
	p, disp := testPoller(t, stub)

	ctx := context.Background()
	if err := p.initUsers(ctx); err != nil {
		t.Fatalf("initUsers: %v", err)
	}
	p.cycle(ctx)

	before := *p.Store().Get("foo")
	calls := len(disp.all())

	stub.mu.Lock()
	stub.failStreams = true
	stub.mu.Unlock()
	p.cycle(ctx)

	after := p.Store().Get("foo")
	if *after != before {
		t.Fatalf("store advanced on abandoned cycle: %+v -> %+v", before, after)
	}
	if len(disp.all()) != calls {
		t.Fatal("dispatch happened during abandoned cycle")
	}
}

func TestPollerOfflineTransitionEnrichedWithVOD(t *testing.T) {
	t.Parallel()
	stub := &helixStub{
		users:   []twitch.User{fooUser()},
		streams: []twitch.Stream{fooStream("hello", "g1", "Game One")},
		videos: []twitch.Video{{
			ID: "v1", UserID: "1", URL: "https://twitch.tv/videos/1",
			ThumbnailURL: "https://vt/%{width}x%{height}.jpg",
		}},
	}
	p, disp := testPoller(t, stub)

	ctx := context.Background()
	if err := p.initUsers(ctx); err != nil {
		t.Fatalf("initUsers: %v", err)
	}
	p.cycle(ctx)

	// Stream ends; channel metadata keeps the same title/category.
	stub.setLive(nil)
	stub.mu.Lock()
	stub.channels = []twitch.Channel{{BroadcasterID: "1", BroadcasterLogin: "foo", Title: "hello", GameID: "g1", GameName: "Game One"}}
	stub.mu.Unlock()
	p.cycle(ctx)

	var offline *Change
	for _, c := range disp.all() {
		if c.Kind == ChangeOffline {
			offline = &c
			break
		}
	}
	if offline == nil {
		t.Fatal("no offline change dispatched")
	}
	if offline.StreamStartedAt != "2024-01-01T00:00:00Z" {
		t.Fatalf("StreamStartedAt = %q", offline.StreamStartedAt)
	}
	if offline.VODURL != "https://twitch.tv/videos/1" {
		t.Fatalf("VODURL = %q", offline.VODURL)
	}
	if offline.VODThumbnailURL != "https://vt/440x248.jpg" {
		t.Fatalf("VODThumbnailURL = %q, want substituted size", offline.VODThumbnailURL)
	}
}

func TestPollerRestartDeferredWhileLive(t *testing.T) {
	t.Parallel()
	stub := &helixStub{
		users:   []twitch.User{fooUser()},
		streams: []twitch.Stream{fooStream("hello", "g1", "Game One")},
	}
	p, _ := testPoller(t, stub)

	g := NewGuard(config.GuardConfig{Enabled: true, MemoryLimitMB: 1, SampleEveryCycles: 1}, logx.Nop())
	g.readMem = func() uint64 { return 64 * 1024 * 1024 }
	p.guard = g

	ctx := context.Background()
	if err := p.initUsers(ctx); err != nil {
		t.Fatalf("initUsers: %v", err)
	}

	p.cycle(ctx)
	if err := p.afterCycle(); err != nil {
		t.Fatalf("afterCycle while live = %v, want deferred restart", err)
	}
	if !g.Tripped() {
		t.Fatal("guard should have tripped")
	}

	stub.setLive(nil)
	stub.mu.Lock()
	stub.channels = []twitch.Channel{{BroadcasterID: "1", BroadcasterLogin: "foo", Title: "hello", GameID: "g1", GameName: "Game One"}}
	stub.mu.Unlock()
	p.cycle(ctx)

	if err := p.afterCycle(); err != ErrRestartRequested {
		t.Fatalf("afterCycle once offline = %v, want ErrRestartRequested", err)
	}
}
