package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hylla/draftwork/internal/domain"
)

func TestFetchItemDecodesSnapshot(t *testing.T) {
	want := baseItem()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/items/7" {
			t.Errorf("path: %s", r.URL.Path)
		}
		if r.Header.Get("X-Actor-ID") != "u-admin" {
			t.Errorf("actor header: %q", r.Header.Get("X-Actor-ID"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(want)
	}))
	defer server.Close()

	client := NewClient(server.URL, "u-admin", nil)
	got, err := client.FetchItem(context.Background(), 7)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.ID != 7 || got.Name != "Banner" || got.Revision != 3 {
		t.Fatalf("snapshot: %+v", got)
	}
}

func TestFetchItemMapsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "u-admin", nil)
	if _, err := client.FetchItem(context.Background(), 42); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("fetch missing item: %v, want ErrNotFound", err)
	}
}

// TestStreamEventsDecodesFrames verifies SSE frames reach the handler in order
// and malformed frames are skipped without killing the stream.
func TestStreamEventsDecodesFrames(t *testing.T) {
	status := domain.StatusSubmitted
	frames := []domain.Event{
		domain.ItemUpdated{ID: 7, Delta: domain.ItemDelta{Status: &status}},
		domain.CommentCreated{ItemID: 7, Comment: domain.Comment{ID: 2, Body: "second"}},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/items/7/events" {
			t.Errorf("path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, event := range frames {
			data, err := domain.EncodeEvent(event)
			if err != nil {
				t.Errorf("encode: %v", err)
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
		fmt.Fprint(w, "data: {not json\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	var got []domain.Event
	client := NewClient(server.URL, "u-bob", nil)
	err := client.StreamEvents(context.Background(), 7, func(event domain.Event) {
		got = append(got, event)
	})
	if !errors.Is(err, io.EOF) {
		t.Fatalf("stream end: %v, want io.EOF", err)
	}

	if len(got) != 2 {
		t.Fatalf("events: %d, want 2", len(got))
	}
	if _, ok := got[0].(domain.ItemUpdated); !ok {
		t.Fatalf("first event: %T", got[0])
	}
	if created, ok := got[1].(domain.CommentCreated); !ok || created.Comment.ID != 2 {
		t.Fatalf("second event: %+v", got[1])
	}
}

// TestWatchStopsOnDeletedItem verifies the watch loop ends once the snapshot
// fetch reports the item gone and the view lands in its terminal state.
func TestWatchStopsOnDeletedItem(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	ctrl := New(baseItem(), nil)
	client := NewClient(server.URL, "u-bob", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Watch(ctx, ctrl); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if !ctrl.View().Deleted {
		t.Fatal("view not marked deleted")
	}
}
