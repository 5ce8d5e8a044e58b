package ui

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"vortex/internal/orchestrator"
)

func startFeed(t *testing.T) (*Feed, string) {
	t.Helper()
	// Grab a free port first so Start can bind it deterministically.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	f := NewFeed(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := f.Start(addr); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f, addr
}

func dial(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	var conn *websocket.Conn
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, _, err = websocket.DefaultDialer.Dial("ws://"+addr+"/events", nil)
		if err == nil {
			t.Cleanup(func() { conn.Close() })
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("dial: %v", err)
	return nil
}

func TestBroadcastReachesClient(t *testing.T) {
	f, addr := startFeed(t)
	conn := dial(t, addr)

	ev := orchestrator.UIEvent{Kind: "user", Text: "open chrome", Stage: "dispatching", At: time.Now()}
	// The client registers asynchronously after the upgrade; retry until
	// the broadcast lands.
	got := make(chan orchestrator.UIEvent, 1)
	go func() {
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var out orchestrator.UIEvent
		if json.Unmarshal(data, &out) == nil {
			got <- out
		}
	}()

	deadline := time.After(3 * time.Second)
	for {
		f.Broadcast(ev)
		select {
		case out := <-got:
			if out.Kind != "user" || out.Text != "open chrome" {
				t.Errorf("received %+v", out)
			}
			return
		case <-deadline:
			t.Fatal("event never delivered")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestBroadcastWithNoClients(t *testing.T) {
	f, _ := startFeed(t)
	// Must not block or panic.
	f.Broadcast(orchestrator.UIEvent{Kind: "status", At: time.Now()})
}

func TestCloseDisconnectsClients(t *testing.T) {
	f, addr := startFeed(t)
	conn := dial(t, addr)

	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("read succeeded after Close")
	}
}
