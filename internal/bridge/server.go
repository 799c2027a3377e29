package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/runnerr0/tabsentry/internal/tabs"
)

// Handler receives what connections send. Calls for one connection are
// made in arrival order from a single goroutine.
type Handler interface {
	HandleEvent(ctx context.Context, ev Event)
	// HandleCommand returns the response payload.
	HandleCommand(ctx context.Context, name string, payload json.RawMessage) interface{}
}

// Options tune the server. Zero values take defaults.
type Options struct {
	RequestTimeout time.Duration
	MaxMessageSize int64
	SendBuffer     int
	PingInterval   time.Duration
	PongWait       time.Duration
}

func (o *Options) applyDefaults() {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 5 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 1 << 20
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.PongWait <= o.PingInterval {
		o.PongWait = 2 * o.PingInterval
	}
}

// Server accepts bridge connections and implements tabs.Browser on top of
// the most recent connection that announced itself as the browser.
type Server struct {
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	conns   map[string]*conn
	browser *conn
	handler Handler

	pendingMu sync.Mutex
	pending   map[string]chan *Frame

	ctx    context.Context
	cancel context.CancelFunc
}

var _ tabs.Browser = (*Server)(nil)

// NewServer creates a server with no connections. Call SetHandler before
// serving.
func NewServer(opts Options, logger *slog.Logger) *Server {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:   opts,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // daemon listens on loopback only
			},
		},
		conns:   make(map[string]*conn),
		pending: make(map[string]chan *Frame),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetHandler sets the receiver of events and commands.
func (s *Server) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *Server) currentHandler() Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handler
}

// ServeHTTP upgrades the request and starts serving the connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade bridge connection", "error", err)
		return
	}

	c := &conn{
		id:      uuid.NewString(),
		ws:      ws,
		send:    make(chan []byte, s.opts.SendBuffer),
		inbound: make(chan *Frame, s.opts.SendBuffer),
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
	s.logger.Info("Bridge client connected", "conn_id", c.id, "remote", r.RemoteAddr)

	go s.writePump(c)
	go s.dispatch(c)
	go s.readPump(c)
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// HasBrowser reports whether a browser connection is available.
func (s *Server) HasBrowser() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.browser != nil
}

// Close drops every connection.
func (s *Server) Close() {
	s.cancel()

	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		s.removeConn(c)
	}
}

func (s *Server) removeConn(c *conn) {
	if !c.close() {
		return
	}

	s.mu.Lock()
	if existing, ok := s.conns[c.id]; ok && existing == c {
		delete(s.conns, c.id)
	}
	if s.browser == c {
		s.browser = nil
	}
	role := c.role
	s.mu.Unlock()

	s.logger.Info("Bridge client disconnected", "conn_id", c.id, "role", role)
}

func (s *Server) readPump(c *conn) {
	defer s.removeConn(c)

	c.ws.SetReadLimit(s.opts.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("Bridge read error", "conn_id", c.id, "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))

		var f Frame
		if err := json.Unmarshal(message, &f); err != nil {
			s.logger.Warn("Failed to parse bridge frame", "conn_id", c.id, "error", err)
			continue
		}

		switch f.Kind {
		case KindHello:
			s.hello(c, &f)
		case KindResult:
			s.deliver(&f)
		case KindEvent, KindCommand:
			// Results are delivered above without waiting on handlers, so a
			// handler blocked on a browser request cannot starve its reply.
			select {
			case c.inbound <- &f:
			case <-c.done:
				return
			}
		default:
			s.logger.Debug("Ignoring bridge frame", "conn_id", c.id, "kind", f.Kind)
		}
	}
}

func (s *Server) writePump(c *conn) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn("Failed to write bridge frame", "conn_id", c.id, "error", err)
				s.removeConn(c)
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.removeConn(c)
				return
			}
		}
	}
}

func (s *Server) dispatch(c *conn) {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.inbound:
			h := s.currentHandler()
			if h == nil {
				s.logger.Warn("No handler for bridge frame", "conn_id", c.id, "kind", f.Kind)
				continue
			}
			switch f.Kind {
			case KindEvent:
				var ev Event
				if err := f.ParsePayload(&ev); err != nil {
					s.logger.Warn("Bad event payload", "conn_id", c.id, "event", f.Name, "error", err)
					continue
				}
				ev.Type = f.Name
				h.HandleEvent(s.ctx, ev)
			case KindCommand:
				reply, err := NewFrame(KindResponse, f.Name, h.HandleCommand(s.ctx, f.Name, f.Payload))
				if err != nil {
					s.logger.Error("Failed to encode response", "command", f.Name, "error", err)
					continue
				}
				reply.ID = f.ID
				s.sendTo(c, reply)
			}
		}
	}
}

func (s *Server) hello(c *conn, f *Frame) {
	s.mu.Lock()
	c.role = f.Role
	if f.Role == RoleBrowser {
		s.browser = c
	}
	s.mu.Unlock()
	if f.Role == RoleBrowser {
		s.logger.Info("Browser attached", "conn_id", c.id)
	}

	ack := &Frame{Kind: KindHello, ID: c.id, Role: f.Role}
	s.sendTo(c, ack)
}

func (s *Server) sendTo(c *conn, f *Frame) bool {
	data, err := json.Marshal(f)
	if err != nil {
		s.logger.Error("Failed to marshal bridge frame", "kind", f.Kind, "error", err)
		return false
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		s.logger.Warn("Send buffer full, dropping frame", "conn_id", c.id, "kind", f.Kind)
		return false
	}
}

// NotifyRefresh tells every connection the closed-tab history changed. It
// returns tabs.ErrNoListener when nobody is connected.
func (s *Server) NotifyRefresh(ctx context.Context) error {
	f := &Frame{Kind: KindNotify, Name: TopicRefresh}

	s.mu.RLock()
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	delivered := 0
	for _, c := range conns {
		if s.sendTo(c, f) {
			delivered++
		}
	}
	if delivered == 0 {
		return tabs.ErrNoListener
	}
	return nil
}

// request sends a primitive to the browser and waits for its result.
func (s *Server) request(ctx context.Context, method string, params, out interface{}) error {
	s.mu.RLock()
	c := s.browser
	s.mu.RUnlock()
	if c == nil {
		return fmt.Errorf("%s: %w", method, tabs.ErrNoBrowser)
	}

	f, err := NewFrame(KindRequest, method, params)
	if err != nil {
		return err
	}
	f.ID = uuid.NewString()

	ch := make(chan *Frame, 1)
	s.pendingMu.Lock()
	s.pending[f.ID] = ch
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, f.ID)
		s.pendingMu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	if !s.sendTo(c, f) {
		return fmt.Errorf("%s: %w", method, tabs.ErrNoBrowser)
	}

	select {
	case res := <-ch:
		if res.Error != "" {
			if res.Code == CodeInvalidReference {
				return fmt.Errorf("%s: %s: %w", method, res.Error, tabs.ErrInvalidReference)
			}
			return fmt.Errorf("%s: %s", method, res.Error)
		}
		if out != nil {
			return res.ParsePayload(out)
		}
		return nil
	case <-c.done:
		return fmt.Errorf("%s: browser disconnected: %w", method, tabs.ErrNoBrowser)
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", method, ctx.Err())
	}
}

func (s *Server) deliver(f *Frame) {
	s.pendingMu.Lock()
	ch, ok := s.pending[f.ID]
	s.pendingMu.Unlock()
	if !ok {
		s.logger.Debug("Result for unknown request", "id", f.ID)
		return
	}
	select {
	case ch <- f:
	default:
	}
}

// QueryTabs implements tabs.Browser.
func (s *Server) QueryTabs(ctx context.Context, q tabs.Query) ([]tabs.Tab, error) {
	var out []tabs.Tab
	if err := s.request(ctx, MethodQueryTabs, q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTab implements tabs.Browser.
func (s *Server) CreateTab(ctx context.Context, url string) error {
	return s.request(ctx, MethodCreateTab, createTabParams{URL: url}, nil)
}

// RemoveTab implements tabs.Browser.
func (s *Server) RemoveTab(ctx context.Context, id tabs.TabID) error {
	return s.request(ctx, MethodRemoveTab, removeTabParams{TabID: id}, nil)
}

// SetBadge implements tabs.Browser.
func (s *Server) SetBadge(ctx context.Context, text string) error {
	return s.request(ctx, MethodSetBadge, setBadgeParams{Text: text}, nil)
}
