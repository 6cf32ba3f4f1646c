// Package bridge exposes the device's live screen to remote viewers and
// feeds viewer input back into the session dispatch harness. Frames come
// from the stream producer; input events are decoded per connection and
// routed through the Dispatcher callback slots.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/commandAGI/deviced/internal/device"
	"github.com/commandAGI/deviced/internal/stream"
)

const authTimeout = 10 * time.Second

// Config is the display server's configuration surface.
type Config struct {
	// Password gates the handshake when non-empty.
	Password string
	// Shared allows more than one concurrent viewer.
	Shared bool
	// FrameRate is the frame push cadence toward viewers.
	FrameRate int
	// Encoding is advertised to clients in the hello message.
	Encoding stream.Encoding
	// CompressionLevel 0-9, advertised alongside the encoding.
	CompressionLevel int
	// AllowClipboard accepts client clipboard pushes.
	AllowClipboard bool
	// ViewOnly drops all client input without decoding it.
	ViewOnly bool
	// AllowResize advertises resize support to clients.
	AllowResize bool
}

// Server serves the display protocol over websocket connections. Each
// accepted connection gets its own handler goroutines and its own button
// state; one viewer disconnecting never disturbs the others or the
// producer.
type Server struct {
	cfg        Config
	producer   *stream.Producer
	dispatcher *Dispatcher
	log        *slog.Logger

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
}

// NewServer creates a bridge server sourcing video from producer and
// routing input through dispatcher.
func NewServer(cfg Config, producer *stream.Producer, dispatcher *Dispatcher, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	return &Server{
		cfg:        cfg,
		producer:   producer,
		dispatcher: dispatcher,
		log:        log.With("component", "display_bridge"),
		conns:      make(map[*websocket.Conn]struct{}),
	}
}

// ActiveConnections reports the number of live viewer connections.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Stop closes every live connection. In-flight reads on those sockets
// unblock; subsequent connection attempts are refused.
func (s *Server) Stop() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for ws := range s.conns {
		conns = append(conns, ws)
	}
	s.mu.Unlock()

	for _, ws := range conns {
		if err := ws.Close(websocket.StatusGoingAway, "server shutting down"); err != nil {
			s.log.Debug("Failed to close viewer connection", "error", err)
		}
	}
	s.log.Info("Display bridge stopped", "connections_closed", len(conns))
}

// register admits a new connection, enforcing the shared policy.
func (s *Server) register(ws *websocket.Conn) (rejectReason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "server shutting down"
	}
	if !s.cfg.Shared && len(s.conns) > 0 {
		return "display already in use"
	}
	s.conns[ws] = struct{}{}
	return ""
}

func (s *Server) unregister(ws *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, ws)
}

// ServeHTTP upgrades the request and runs the per-connection protocol.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.log.Info("Viewer connection request", "ip", r.RemoteAddr)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Error("Failed to accept viewer websocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			s.log.Debug("Failed to close viewer websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if reason := s.register(ws); reason != "" {
		s.log.Warn("Viewer connection rejected", "ip", r.RemoteAddr, "reason", reason)
		if err := s.writeJSON(ctx, ws, serverMessage{Type: msgError, Error: reason}); err != nil {
			s.log.Debug("Failed to send rejection", "error", err)
		}
		_ = ws.Close(websocket.StatusPolicyViolation, reason)
		return
	}
	defer s.unregister(ws)

	if err := s.handshake(ctx, ws); err != nil {
		s.log.Warn("Viewer handshake failed", "ip", r.RemoteAddr, "error", err)
		_ = ws.Close(websocket.StatusPolicyViolation, "authentication failed")
		return
	}
	s.log.Info("Viewer connected", "ip", r.RemoteAddr)

	var wg sync.WaitGroup
	wg.Add(2)

	// Frame push loop: producer -> viewer.
	go func() {
		defer wg.Done()
		defer cancel()
		s.pushFrames(ctx, ws)
	}()

	// Input loop: viewer -> dispatcher.
	go func() {
		defer wg.Done()
		defer cancel()
		s.readInput(ctx, ws)
	}()

	wg.Wait()
	s.log.Info("Viewer disconnected", "ip", r.RemoteAddr)
}

// handshake advertises the display and authenticates the client when a
// password is configured.
func (s *Server) handshake(ctx context.Context, ws *websocket.Conn) error {
	width, height := s.producer.Resolution()
	hello := serverMessage{
		Type:        msgHello,
		Width:       width,
		Height:      height,
		Encoding:    string(s.cfg.Encoding),
		Compression: s.cfg.CompressionLevel,
		ViewOnly:    s.cfg.ViewOnly,
		Resize:      s.cfg.AllowResize,
	}
	if err := s.writeJSON(ctx, ws, hello); err != nil {
		return err
	}

	if s.cfg.Password != "" {
		authCtx, cancel := context.WithTimeout(ctx, authTimeout)
		defer cancel()
		_, data, err := ws.Read(authCtx)
		if err != nil {
			return err
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		if msg.Type != msgAuth || msg.Password != s.cfg.Password {
			_ = s.writeJSON(ctx, ws, serverMessage{Type: msgError, Error: "authentication failed"})
			return errAuthFailed
		}
	}

	return s.writeJSON(ctx, ws, serverMessage{Type: msgReady})
}

// pushFrames sends the latest frame on the update cadence. Delivery is
// last-write-wins: a frame is sent only when the capture timestamp has
// advanced, so a slow viewer sees fewer, more recent frames.
func (s *Server) pushFrames(ctx context.Context, ws *websocket.Conn) {
	interval := time.Second / time.Duration(s.cfg.FrameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastSent time.Time
	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame := s.producer.GetFrame()
		if !first && !frame.CapturedAt.After(lastSent) {
			continue
		}
		if err := ws.Write(ctx, websocket.MessageBinary, frame.Pixels); err != nil {
			if ctx.Err() == nil {
				s.log.Debug("Frame write failed", "error", err)
			}
			return
		}
		lastSent = frame.CapturedAt
		first = false
	}
}

// readInput reads and decodes client events until the connection closes.
// Malformed messages are dropped with the connection left open; in
// view-only mode everything is dropped without decoding.
func (s *Server) readInput(ctx context.Context, ws *websocket.Conn) {
	buttons := newButtonState()
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				s.log.Debug("Viewer closed connection")
			} else if ctx.Err() == nil {
				s.log.Warn("Viewer read error", "error", err)
			}
			return
		}
		if s.cfg.ViewOnly {
			continue
		}
		if typ != websocket.MessageText {
			s.log.Debug("Ignoring non-text client message")
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Debug("Dropping malformed client message", "error", err)
			continue
		}

		switch msg.Type {
		case msgKey:
			s.handleKey(msg)
		case msgPointer:
			s.handlePointer(msg, buttons)
		case msgClipboard:
			if !s.cfg.AllowClipboard {
				s.log.Debug("Dropping clipboard push, clipboard disabled")
				continue
			}
			s.log.Debug("Clipboard push received", "bytes", len(msg.Text))
		default:
			s.log.Debug("Dropping unknown client message", "type", msg.Type)
		}
	}
}

// handleKey maps the keysym and fires the key callbacks. Unmapped keysyms
// are dropped silently; a release fires key-up, then the completed press.
func (s *Server) handleKey(msg clientMessage) {
	key, ok := device.KeyFromKeysym(msg.Code)
	if !ok {
		s.log.Debug("Dropping unmapped keysym", "code", msg.Code)
		return
	}
	if msg.Pressed {
		if err := s.dispatcher.OnKeyDown(key); err != nil {
			s.log.Warn("Key down dispatch failed", "key", key, "error", err)
		}
		return
	}
	if err := s.dispatcher.OnKeyUp(key); err != nil {
		s.log.Warn("Key up dispatch failed", "key", key, "error", err)
	}
	if err := s.dispatcher.OnKeyPress(key); err != nil {
		s.log.Warn("Key press dispatch failed", "key", key, "error", err)
	}
}

// handlePointer always forwards the position, then fires edge events
// derived from the mask diff, updating the connection's button state
// after each one.
func (s *Server) handlePointer(msg clientMessage, buttons *buttonState) {
	if err := s.dispatcher.OnMouseMove(msg.X, msg.Y); err != nil {
		s.log.Warn("Mouse move dispatch failed", "error", err)
	}
	for _, edge := range diffButtons(buttons.mask(), msg.Buttons) {
		if edge.Pressed {
			if err := s.dispatcher.OnMouseDown(edge.Button); err != nil {
				s.log.Warn("Mouse down dispatch failed", "button", edge.Button, "error", err)
			}
			if err := s.dispatcher.OnMouseClick(msg.X, msg.Y, edge.Button); err != nil {
				s.log.Warn("Mouse click dispatch failed", "button", edge.Button, "error", err)
			}
		} else {
			if err := s.dispatcher.OnMouseUp(edge.Button); err != nil {
				s.log.Warn("Mouse up dispatch failed", "button", edge.Button, "error", err)
			}
		}
		buttons.set(edge.Button, edge.Pressed)
	}
}

func (s *Server) writeJSON(ctx context.Context, ws *websocket.Conn, v serverMessage) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
