package ipc

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"vortex/internal/orchestrator"
)

type echoHandler struct{ last Request }

func (h *echoHandler) Handle(req Request) Response {
	h.last = req
	switch req.Verb {
	case VerbStatus:
		return Response{OK: true, Status: &orchestrator.Status{Stage: "idle"}}
	case VerbSay:
		if req.Text == "" {
			return Response{Error: "nothing to say"}
		}
		return Response{OK: true}
	default:
		return Response{OK: true}
	}
}

func startServer(t *testing.T, h Handler) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ctl.sock")
	srv := NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)), path, h)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return path
}

func TestRequestRoundTrip(t *testing.T) {
	h := &echoHandler{}
	path := startServer(t, h)

	resp, err := Send(path, Request{Verb: VerbStatus})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !resp.OK || resp.Status == nil || resp.Status.Stage != "idle" {
		t.Errorf("response = %+v", resp)
	}
	if h.last.Verb != VerbStatus {
		t.Errorf("handler saw %+v", h.last)
	}
}

func TestSayCarriesText(t *testing.T) {
	h := &echoHandler{}
	path := startServer(t, h)

	resp, err := Send(path, Request{Verb: VerbSay, Text: "hello there"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !resp.OK || h.last.Text != "hello there" {
		t.Errorf("resp=%+v last=%+v", resp, h.last)
	}
}

func TestSendToMissingSocketFails(t *testing.T) {
	_, err := Send(filepath.Join(t.TempDir(), "nope.sock"), Request{Verb: VerbTrigger})
	if err == nil {
		t.Fatal("expected dial error")
	}
}

func TestCloseStopsAccepting(t *testing.T) {
	h := &echoHandler{}
	path := filepath.Join(t.TempDir(), "ctl.sock")
	srv := NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)), path, h)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	srv.Close()

	if _, err := Send(path, Request{Verb: VerbTrigger}); err == nil {
		t.Fatal("Send succeeded after Close")
	}
}
