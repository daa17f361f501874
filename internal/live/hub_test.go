package live

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for condition")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_DeliversPublishedEvents(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	server := httptest.NewServer(hub)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	hub.Publish(Event{Type: "prediction", Class: "cat", Confidence: 0.8})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	var ev Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("Invalid event JSON: %v", err)
	}
	if ev.Type != "prediction" || ev.Class != "cat" || ev.Confidence != 0.8 {
		t.Errorf("Unexpected event %+v", ev)
	}
	if ev.Timestamp.IsZero() {
		t.Error("Publish should stamp events")
	}

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < queueSize*3; i++ {
			hub.Publish(Event{Type: "feedback", Class: "dog"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked with no hub running")
	}
}

func TestHub_OriginCheck(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		wantOK  bool
	}{
		{"no origin header", nil, "", true},
		{"same origin", nil, "SAME", true},
		{"foreign origin", nil, "https://evil.example", false},
		{"allowed origin", []string{"https://dash.example/"}, "https://dash.example", true},
		{"not in allow list", []string{"https://dash.example"}, "https://evil.example", false},
		{"wildcard", []string{"*"}, "https://evil.example", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), tt.allowed)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go hub.Run(ctx)

			server := httptest.NewServer(hub)
			defer server.Close()

			header := http.Header{}
			switch tt.origin {
			case "":
			case "SAME":
				header.Set("Origin", server.URL)
			default:
				header.Set("Origin", tt.origin)
			}

			conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), header)
			if conn != nil {
				conn.Close()
			}
			if tt.wantOK && err != nil {
				t.Fatalf("Expected connection, got %v", err)
			}
			if !tt.wantOK {
				if err == nil {
					t.Fatal("Expected the handshake to be refused")
				}
				if resp == nil || resp.StatusCode != http.StatusForbidden {
					t.Errorf("Expected 403, got %v", resp)
				}
			}
		})
	}
}
