package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"streamwatch/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q): %v", driver, err)
		}
		if st != nil {
			t.Fatalf("Open(%q) returned a store, want nil", driver)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestFileStoreAppend(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "history")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx := context.Background()
	events := []EventRecord{
		{At: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), Streamer: "alpha", Kind: "online", Sinks: 2, Delivered: 2},
		{At: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), Streamer: "alpha", Kind: "offline", VODURL: "https://v/1", Sinks: 2, Delivered: 1, Failed: 1},
	}
	for _, e := range events {
		if err := st.AppendEvent(ctx, e); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "history.events.jsonl"))
	if err != nil {
		t.Fatalf("open history file: %v", err)
	}
	defer f.Close()

	var got []EventRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e EventRecord
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		got = append(got, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(got) != len(events) {
		t.Fatalf("lines = %d, want %d", len(got), len(events))
	}
	for i := range events {
		if got[i].Streamer != events[i].Streamer || got[i].Kind != events[i].Kind {
			t.Fatalf("line %d = %+v, want %+v", i, got[i], events[i])
		}
		if got[i].Delivered != events[i].Delivered || got[i].Failed != events[i].Failed {
			t.Fatalf("line %d tally = %+v, want %+v", i, got[i], events[i])
		}
	}
}

func TestFileStoreAppendAfterClose(t *testing.T) {
	t.Parallel()

	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "history")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := st.AppendEvent(context.Background(), EventRecord{Streamer: "x"}); err == nil {
		t.Fatal("expected error appending to a closed store")
	}
}
