package ui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vortex/internal/orchestrator"
)

// Feed pushes orchestrator events to desktop UI clients over websockets.
// Clients connect to /events and receive each event as one JSON text frame.
// A client that cannot keep up is disconnected, never waited for.
type Feed struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte

	srv *http.Server
}

func NewFeed(log *slog.Logger) *Feed {
	if log == nil {
		log = slog.Default()
	}
	return &Feed{
		log: log,
		upgrader: websocket.Upgrader{
			// The feed binds to loopback; the UI is a local process.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// Start serves the feed on addr. Returns once the listener is up.
func (f *Feed) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", f.handleEvents)

	f.srv = &http.Server{Addr: addr, Handler: mux}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("ui feed listen %s: %w", addr, err)
	}
	f.log.Info("ui feed listening", "addr", addr)
	go func() {
		if err := f.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.log.Error("ui feed server stopped", "err", err)
		}
	}()
	return nil
}

func (f *Feed) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Warn("ui client upgrade failed", "err", err)
		return
	}

	out := make(chan []byte, 32)
	f.mu.Lock()
	f.clients[conn] = out
	n := len(f.clients)
	f.mu.Unlock()
	f.log.Info("ui client connected", "remote", conn.RemoteAddr().String(), "clients", n)

	go f.writer(conn, out)

	// Reads are discarded; the loop only notices the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	f.drop(conn)
}

func (f *Feed) writer(conn *websocket.Conn, out <-chan []byte) {
	for msg := range out {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			f.drop(conn)
			return
		}
	}
	conn.Close()
}

func (f *Feed) drop(conn *websocket.Conn) {
	f.mu.Lock()
	out, ok := f.clients[conn]
	if ok {
		delete(f.clients, conn)
	}
	f.mu.Unlock()
	if ok {
		close(out)
	}
	conn.Close()
}

// Broadcast fans one event out to every connected client. Clients with a
// full send buffer are dropped.
func (f *Feed) Broadcast(ev orchestrator.UIEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		f.log.Error("ui event marshal failed", "err", err)
		return
	}

	f.mu.Lock()
	var stale []*websocket.Conn
	for conn, out := range f.clients {
		select {
		case out <- data:
		default:
			stale = append(stale, conn)
		}
	}
	f.mu.Unlock()

	for _, conn := range stale {
		f.log.Warn("ui client too slow, dropping", "remote", conn.RemoteAddr().String())
		f.drop(conn)
	}
}

// Close disconnects all clients and stops the server.
func (f *Feed) Close() error {
	f.mu.Lock()
	for conn, out := range f.clients {
		close(out)
		conn.Close()
		delete(f.clients, conn)
	}
	f.mu.Unlock()

	if f.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return f.srv.Shutdown(ctx)
}
