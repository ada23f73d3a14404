package twitch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"streamwatch/pkg/logx"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *atomic.Int64) {
	t.Helper()

	var apiHits atomic.Int64
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiHits.Add(1)
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(api.Close)

	tok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"tok","expires_in":3600,"token_type":"bearer"}`)
	}))
	t.Cleanup(tok.Close)

	b := NewBroker("cid", "secret", logx.Nop(), WithTokenURL(tok.URL))
	return NewClient(b, "cid", logx.Nop(), WithBaseURL(api.URL)), &apiHits
}

func TestEmptyBatchShortCircuits(t *testing.T) {
	t.Parallel()
	c, hits := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty batch")
	}))

	ctx := context.Background()
	if m, err := c.Users(ctx, nil); err != nil || len(m) != 0 {
		t.Fatalf("Users(nil) = %v, %v", m, err)
	}
	if m, err := c.Streams(ctx, []string{}); err != nil || len(m) != 0 {
		t.Fatalf("Streams(empty) = %v, %v", m, err)
	}
	if m, err := c.Channels(ctx, nil); err != nil || len(m) != 0 {
		t.Fatalf("Channels(nil) = %v, %v", m, err)
	}
	if hits.Load() != 0 {
		t.Fatalf("api hits = %d, want 0", hits.Load())
	}
}

func TestUsersKeyedByLowercaseLogin(t *testing.T) {
	t.Parallel()
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Client-Id"); got != "cid" {
			t.Errorf("Client-Id = %q", got)
		}
		if got := r.URL.Query()["login"]; len(got) != 2 {
			t.Errorf("login params = %v, want 2 entries", got)
		}
		fmt.Fprint(w, `{"data":[
			{"id":"1","login":"FooBar","display_name":"FooBar","profile_image_url":"https://a/1.png"},
			{"id":"2","login":"baz","display_name":"Baz","profile_image_url":"https://a/2.png"}
		]}`)
	}))

	users, err := c.Users(context.Background(), []string{"FooBar", "baz"})
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if _, ok := users["foobar"]; !ok {
		t.Fatalf("expected lowercase key, got keys: %v", mapKeys(users))
	}
	if users["foobar"].ID != "1" {
		t.Fatalf("unexpected user: %+v", users["foobar"])
	}
}

func TestStreamsKeyedByLowercaseLogin(t *testing.T) {
	t.Parallel()
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"id":"s1","user_id":"1","user_login":"FooBar","title":"hi","game_id":"g","game_name":"G","viewer_count":5,"started_at":"2024-01-01T00:00:00Z","thumbnail_url":"https://t/{width}x{height}.jpg"}
		]}`)
	}))

	streams, err := c.Streams(context.Background(), []string{"foobar"})
	if err != nil {
		t.Fatalf("Streams: %v", err)
	}
	s, ok := streams["foobar"]
	if !ok || s.ViewerCount != 5 {
		t.Fatalf("unexpected streams map: %+v", streams)
	}
}

func TestErrorEmbedsStatusAndBody(t *testing.T) {
	t.Parallel()
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Forbidden","message":"missing scope"}`, http.StatusForbidden)
	}))

	_, err := c.Users(context.Background(), []string{"x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "missing scope") {
		t.Fatalf("error should embed status and body: %v", err)
	}
}

func TestLatestVOD(t *testing.T) {
	t.Parallel()
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("user_id") != "42" || q.Get("type") != "archive" || q.Get("first") != "1" {
			t.Errorf("unexpected query: %v", q)
		}
		fmt.Fprint(w, `{"data":[{"id":"v1","user_id":"42","url":"https://vod/1","thumbnail_url":"https://vt/%{width}x%{height}.jpg"}]}`)
	}))

	vod, err := c.LatestVOD(context.Background(), "42")
	if err != nil {
		t.Fatalf("LatestVOD: %v", err)
	}
	if vod == nil || vod.URL != "https://vod/1" {
		t.Fatalf("unexpected vod: %+v", vod)
	}
}

func TestLatestVODAbsent(t *testing.T) {
	t.Parallel()
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	}))

	vod, err := c.LatestVOD(context.Background(), "42")
	if err != nil {
		t.Fatalf("LatestVOD: %v", err)
	}
	if vod != nil {
		t.Fatalf("expected nil vod, got %+v", vod)
	}
}

func mapKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
