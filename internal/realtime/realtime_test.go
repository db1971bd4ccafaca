package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ohartl/knowbase/internal/models"
)

func TestDecodeNoteRecord(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "n1",
		"title": "hello",
		"metadata": {"pinned": true, "pinned_order": 3}
	}`)

	record, err := Decode[models.NoteRecord](raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	note := record.ToNote()
	if !note.Pinned || note.PinnedOrder != 3 {
		t.Errorf("metadata mapping: %+v", note)
	}
	// Absent metadata keys fall back to zero values.
	if note.Archived {
		t.Error("missing archived flag should map to false")
	}
}

func TestDecodeToleratesNullAndWrongTypes(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "n1",
		"metadata": {"pinned": "yes", "pinned_order": null, "archived": 1}
	}`)

	record, err := Decode[models.NoteRecord](raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	note := record.ToNote()
	if note.Pinned || note.PinnedOrder != 0 || note.Archived {
		t.Errorf("mistyped metadata must map to zero values, got %+v", note)
	}
}

func TestDecodeEmptyRecord(t *testing.T) {
	if _, err := Decode[models.NoteRecord](nil); err == nil {
		t.Error("expected error for empty record")
	}
}

func TestDispatcherRoutesByTable(t *testing.T) {
	d := NewDispatcher(nil)

	var mu sync.Mutex
	var got []string
	d.Register("notes", func(p models.RealtimePayload) {
		mu.Lock()
		got = append(got, "notes:"+string(p.EventType))
		mu.Unlock()
	})

	d.Dispatch(models.RealtimePayload{Table: "notes", EventType: models.RealtimeInsert})
	d.Dispatch(models.RealtimePayload{Table: "tasks", EventType: models.RealtimeDelete}) // no handler
	d.Dispatch(models.RealtimePayload{Table: "notes", EventType: models.RealtimeUpdate})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "notes:INSERT" || got[1] != "notes:UPDATE" {
		t.Errorf("dispatched = %v", got)
	}
}

func TestFeedDeliversFramesInOrder(t *testing.T) {
	upgrader := websocket.Upgrader{}

	frames := []models.RealtimePayload{
		{EventType: models.RealtimeInsert, Table: "notes", Schema: "public", Record: json.RawMessage(`{"id":"n1"}`)},
		{EventType: models.RealtimeDelete, Table: "notes", Schema: "public", OldRecord: json.RawMessage(`{"id":"n1"}`)},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, frame := range frames {
			data, _ := json.Marshal(frame)
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	received := make(chan models.RealtimePayload, 4)
	d := NewDispatcher(nil)
	d.Register("notes", func(p models.RealtimePayload) {
		received <- p
	})

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	feed := NewFeed(FeedConfig{URL: url}, d, nil, nil)
	feed.Start(context.Background())
	defer feed.Stop()

	for i, want := range frames {
		select {
		case got := <-received:
			if got.EventType != want.EventType {
				t.Errorf("frame %d: EventType = %s, want %s", i, got.EventType, want.EventType)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("frame %d never arrived", i)
		}
	}
}

func TestFeedStopTerminates(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	feed := NewFeed(FeedConfig{URL: url}, NewDispatcher(nil), nil, nil)
	feed.Start(context.Background())

	stopped := make(chan struct{})
	go func() {
		feed.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not terminate the feed")
	}
}
