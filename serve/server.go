package main

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"sync"

	runo "github.com/Paranoid-AF/runo"
	"github.com/Paranoid-AF/runo/generate"
)

// Generator processes a verse request.
type Generator interface {
	Generate(ctx context.Context, req *runo.Request) *runo.Response
	Stream(ctx context.Context, req *runo.Request, emit func(verse string) error) (*runo.Stats, error)
	Text(ctx context.Context, req *runo.TextRequest) *runo.TextResponse
	Close()
}

// sessionEntry tracks a cancellable in-flight request for a session.
type sessionEntry struct {
	requestID int
	cancel    context.CancelFunc
}

// Server listens on a Unix domain socket for verse requests.
type Server struct {
	listener net.Listener
	sockPath string
	factory  func() Generator

	mu       sync.Mutex
	engine   Generator
	sessions map[string]sessionEntry
}

// NewServer creates a new IPC server bound to the given socket path.
func NewServer(sockPath string) (*Server, error) {
	return NewServerWithFactory(sockPath, func() Generator { return generate.NewEngine() })
}

// NewServerWithFactory creates a new IPC server whose engine is built, and
// rebuilt on reload, by factory.
func NewServerWithFactory(sockPath string, factory func() Generator) (*Server, error) {
	// Remove stale socket file if it exists
	if err := os.Remove(sockPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, err
	}

	return &Server{
		listener: listener,
		sockPath: sockPath,
		factory:  factory,
		engine:   factory(),
		sessions: make(map[string]sessionEntry),
	}, nil
}

// Serve accepts connections and handles requests.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Close shuts down the server, the engine, and removes the socket file.
func (s *Server) Close() {
	s.listener.Close()
	s.current().Close()
	os.Remove(s.sockPath)
}

func (s *Server) current() Generator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

// begin cancels any in-flight request of the session and returns the
// context for the new one. done must be called when the request finishes.
func (s *Server) begin(parent context.Context, sid string, reqID int) (ctx context.Context, done func()) {
	ctx, cancel := context.WithCancel(parent)
	if sid != "" {
		s.mu.Lock()
		if prev, ok := s.sessions[sid]; ok {
			prev.cancel()
		}
		s.sessions[sid] = sessionEntry{requestID: reqID, cancel: cancel}
		s.mu.Unlock()
	}
	return ctx, func() {
		cancel()
		if sid != "" {
			s.mu.Lock()
			if cur, ok := s.sessions[sid]; ok && cur.requestID == reqID {
				delete(s.sessions, sid)
			}
			s.mu.Unlock()
		}
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}

	raw := scanner.Bytes()
	slog.Debug("request", "data", string(raw))

	// Check if this is a config request (has "action" field)
	var cfgReq runo.ConfigRequest
	if err := json.Unmarshal(raw, &cfgReq); err == nil && cfgReq.Action != "" {
		s.handleConfigRequest(conn, &cfgReq)
		return
	}

	var req runo.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		slog.Warn("invalid request", "error", err)
		return
	}

	ctx, done := s.begin(context.Background(), req.SessionID, req.RequestID)
	defer done()

	resp := s.current().Generate(ctx, &req)

	// If cancelled, skip writing; the client has already moved on.
	if ctx.Err() != nil {
		return
	}

	resp.RequestID = req.RequestID
	writeJSONLine(conn, resp)
}

func (s *Server) handleConfigRequest(conn net.Conn, req *runo.ConfigRequest) {
	writeJSONLine(conn, s.configAction(req.Action))
}

func (s *Server) configAction(action string) *runo.ConfigResponse {
	var resp runo.ConfigResponse

	switch action {
	case "get":
		cfg, err := runo.LoadConfig()
		if err != nil {
			resp.Error = &runo.Error{Code: runo.CodeConfigError, Message: err.Error()}
		} else {
			resp.Config = cfg
		}

	case "reload":
		// Respond immediately; the old engine may still be finishing a
		// generation.
		go s.reloadEngine()
		cfg, _ := runo.LoadConfig()
		resp.Config = cfg

	case "defaults":
		resp.Config = runo.DefaultConfig()

	case "validate":
		cfg, err := runo.LoadConfig()
		if err != nil {
			resp.Error = &runo.Error{Code: runo.CodeConfigError, Message: err.Error()}
		} else {
			resp.Warnings = runo.ValidateConfig(cfg)
		}

	default:
		resp.Error = &runo.Error{
			Code:    runo.CodeUnknownAction,
			Message: "unknown config action: " + action,
		}
	}
	return &resp
}

func (s *Server) reloadEngine() {
	next := s.factory()

	s.mu.Lock()
	prev := s.engine
	s.engine = next
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	slog.Info("engine reloaded")
}

func writeJSONLine(conn net.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}

	slog.Debug("response", "data", string(data))

	conn.Write(append(data, '\n'))
}
