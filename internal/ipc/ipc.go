package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"vortex/internal/orchestrator"
	"vortex/internal/timeline"
)

// DefaultSocketPath is where the daemon listens for vortex-ctl.
const DefaultSocketPath = "/tmp/vortexd.sock"

// Control verbs understood by the daemon.
const (
	VerbTrigger     = "trigger"      // simulate a wake event
	VerbStatus      = "status"       // snapshot of stage and security state
	VerbResetCamera = "reset-camera" // clear a degraded camera after intervention
	VerbSay         = "say"          // speak arbitrary text
	VerbTimeline    = "timeline"     // recent event log
	VerbShutdown    = "shutdown"     // stop the daemon
)

type Request struct {
	Verb string `json:"verb"`
	Text string `json:"text,omitempty"`
}

type Response struct {
	OK       bool                 `json:"ok"`
	Error    string               `json:"error,omitempty"`
	Status   *orchestrator.Status `json:"status,omitempty"`
	Timeline []timeline.Entry     `json:"timeline,omitempty"`
}

// Handler turns a control request into a response. Implemented by the daemon.
type Handler interface {
	Handle(req Request) Response
}

// Server accepts one request per connection on a unix socket and answers it.
type Server struct {
	log  *slog.Logger
	path string
	h    Handler
	ln   net.Listener
}

func NewServer(log *slog.Logger, path string, h Handler) *Server {
	if log == nil {
		log = slog.Default()
	}
	if path == "" {
		path = DefaultSocketPath
	}
	return &Server{log: log, path: path, h: h}
}

func (s *Server) Start() error {
	// A stale socket from a crashed daemon would block the bind.
	os.Remove(s.path)

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("control socket %s: %w", s.path, err)
	}
	s.ln = ln
	s.log.Info("control socket listening", "path", s.path)

	go s.accept()
	return nil
}

func (s *Server) accept() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("control accept failed", "err", err)
			continue
		}
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.log.Warn("bad control request", "err", err)
		return
	}
	resp := s.h.Handle(req)
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.log.Warn("control reply failed", "verb", req.Verb, "err", err)
	}
}

func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	os.Remove(s.path)
	return err
}

// Send dials the daemon, sends one request and waits for the response.
func Send(path string, req Request) (Response, error) {
	if path == "" {
		path = DefaultSocketPath
	}
	conn, err := net.DialTimeout("unix", path, 3*time.Second)
	if err != nil {
		return Response{}, fmt.Errorf("dial %s: %w", path, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("read reply: %w", err)
	}
	return resp, nil
}
