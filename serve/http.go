package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	runo "github.com/Paranoid-AF/runo"
)

const (
	requestIDHeader = "X-Request-ID"
	maxRequestBytes = 64 << 10
	wsWriteTimeout  = 10 * time.Second
)

// HTTPServer exposes the engine over HTTP and WebSocket.
type HTTPServer struct {
	srv      *Server
	upgrader websocket.Upgrader
	server   *http.Server
}

// NewHTTPServer creates an HTTP front end sharing srv's engine and sessions.
func NewHTTPServer(addr string, srv *Server) *HTTPServer {
	h := &HTTPServer{
		srv: srv,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	h.server = &http.Server{
		Addr:              addr,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return h
}

// Handler returns the route table.
func (h *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/verses", h.handleVerses)
	mux.HandleFunc("GET /v1/verses/stream", h.handleStream)
	mux.HandleFunc("GET /v1/text", h.handleText)
	mux.HandleFunc("/v1/config/{action}", h.handleConfig)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return withRequestID(mux)
}

// Serve listens on ln until Shutdown.
func (h *HTTPServer) Serve(ln net.Listener) error {
	err := h.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for active ones.
func (h *HTTPServer) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// withRequestID tags every request with an id, taken from the client when
// it sends one.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		slog.Debug("http request", "method", r.Method, "path", r.URL.Path, "request_id", id)
		next.ServeHTTP(w, r)
	})
}

func (h *HTTPServer) handleVerses(w http.ResponseWriter, r *http.Request) {
	var req runo.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, &runo.Response{
			Verses: []string{},
			Error:  &runo.Error{Code: runo.CodeInvalidRequest, Message: err.Error()},
		})
		return
	}

	ctx, done := h.srv.begin(r.Context(), req.SessionID, req.RequestID)
	defer done()

	resp := h.srv.current().Generate(ctx, &req)
	resp.RequestID = req.RequestID
	writeJSON(w, statusFor(resp.Error), resp)
}

// handleText answers GET /v1/text?prefix=&temperature=&count= with
// {"content": prefix + sampled characters}.
func (h *HTTPServer) handleText(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := runo.TextRequest{Prefix: q.Get("prefix")}

	var err error
	if v := q.Get("temperature"); v != "" {
		if req.Temperature, err = strconv.ParseFloat(v, 64); err != nil {
			writeJSON(w, http.StatusBadRequest, &runo.TextResponse{
				Error: &runo.Error{Code: runo.CodeInvalidRequest, Message: "temperature: " + err.Error()},
			})
			return
		}
	}
	if v := q.Get("count"); v != "" {
		if req.Count, err = strconv.Atoi(v); err != nil {
			writeJSON(w, http.StatusBadRequest, &runo.TextResponse{
				Error: &runo.Error{Code: runo.CodeInvalidRequest, Message: "count: " + err.Error()},
			})
			return
		}
	}

	resp := h.srv.current().Text(r.Context(), &req)
	writeJSON(w, statusFor(resp.Error), resp)
}

// handleStream upgrades to a WebSocket, reads one request message and
// answers with one event per verse followed by a done or error event.
func (h *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	var req runo.Request
	if err := ws.ReadJSON(&req); err != nil {
		writeEvent(ws, &runo.Event{
			Type:  runo.EventError,
			Error: &runo.Error{Code: runo.CodeInvalidRequest, Message: err.Error()},
		})
		return
	}

	ctx, done := h.srv.begin(r.Context(), req.SessionID, req.RequestID)
	defer done()

	// A close frame or a broken connection from the client stops generation.
	go func() {
		for {
			if _, _, err := ws.NextReader(); err != nil {
				done()
				return
			}
		}
	}()

	index := 0
	stats, err := h.srv.current().Stream(ctx, &req, func(verse string) error {
		ev := &runo.Event{Type: runo.EventVerse, Index: index, Verse: verse}
		index++
		return writeEvent(ws, ev)
	})
	if err != nil {
		var rerr *runo.Error
		if !errors.As(err, &rerr) {
			rerr = &runo.Error{Code: runo.CodeModelError, Message: err.Error()}
		}
		writeEvent(ws, &runo.Event{Type: runo.EventError, Stats: stats, Error: rerr})
		return
	}

	writeEvent(ws, &runo.Event{Type: runo.EventDone, Stats: stats})
	ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteTimeout))
}

func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	resp := h.srv.configAction(r.PathValue("action"))
	status := http.StatusOK
	if resp.Error != nil {
		status = http.StatusBadRequest
		if resp.Error.Code == runo.CodeConfigError {
			status = http.StatusInternalServerError
		}
	}
	writeJSON(w, status, resp)
}

func writeEvent(ws *websocket.Conn, ev *runo.Event) error {
	ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return ws.WriteJSON(ev)
}

func statusFor(rerr *runo.Error) int {
	if rerr == nil {
		return http.StatusOK
	}
	switch rerr.Code {
	case runo.CodeInvalidRequest:
		return http.StatusBadRequest
	case runo.CodeNotConfigured:
		return http.StatusServiceUnavailable
	case runo.CodeCancelled:
		return http.StatusConflict
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
