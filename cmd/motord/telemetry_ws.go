package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"motorctl/internal/motor"
)

// ============================================================================
// Telemetry WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// Constraints:
//   - The ControlCycle stays owned by the daemon loop; the initial snapshot on
//     connect goes through a StatusRequest.
//   - WS frames originate from loop-emitted Broadcasts.
//   - Slow clients are disconnected when their send buffer fills.
//
// Messages are JSON text frames with an envelope: {type, ts, data}.
// The first message on connect is "status_init" with a Status in data.
// ============================================================================

// wsTelemetryData is the JSON `data` payload for "telemetry".
type wsTelemetryData struct {
	Raw         uint16          `json:"raw"`
	Direction   motor.Direction `json:"direction"`
	Magnitude   uint8           `json:"magnitude"`
	RateRPM     float64         `json:"rate_rpm"`
	SmoothedRPM float64         `json:"smoothed_rpm"`
	Overridden  bool            `json:"input_overridden"`
}

// wsDirectionChangedData is the JSON `data` payload for "direction_changed".
type wsDirectionChangedData struct {
	From motor.Direction `json:"from"`
	To   motor.Direction `json:"to"`
}

const (
	wsTypeStatusInit       = "status_init"
	wsTypeTelemetry        = "telemetry"
	wsTypeDirectionChanged = "direction_changed"
)

// wsOutboundEvent is a pre-typed, externally-consumable event.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time // zero means now
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func marshalEnvelope(ev wsOutboundEvent) ([]byte, error) {
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()
	return json.Marshal(envelope{Type: ev.Type, Ts: &ts, Data: ev.Data})
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size. Zero selects a default.
	SendBuf int

	// BroadcastBuf is the hub inbound queue size. Zero selects a default.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled, then disconnects all clients.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first, remove them after unlocking.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.closeSend()
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// Closing send signals writePump to exit.
		c.closeSend()

		h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

// BroadcastBytes enqueues a pre-serialized frame. It never blocks; if the hub
// queue is full the message is dropped.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// closeStatus extracts the websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(what string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws "+what+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws "+what+" exiting", "remote_addr", c.remoteAddr, "error", err)
}

// writePump writes queued frames and pings. It exits on write error or when
// send is closed.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", err)
				return
			}
		}
	}
}

// readPump discards inbound messages so control frames are handled and
// disconnects are noticed, then unregisters the client.
func (c *Client) readPump(ctx context.Context) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

// ============================================================================
// HTTP handler
// ============================================================================

type Server struct {
	logger *slog.Logger
	hub    *Hub

	// Used for the status_init snapshot on connect.
	requests chan<- StatusRequest
	timeout  time.Duration
}

type ServerConfig struct {
	Hub HubConfig

	// StatusTimeout bounds the status_init round-trip. Zero selects a default.
	StatusTimeout time.Duration
}

// NewServer constructs the telemetry server. Call Register on a mux, then
// start hub.Run(ctx) and RunBroadcaster.
func NewServer(logger *slog.Logger, requests chan<- StatusRequest, cfg ServerConfig) *Server {
	timeout := cfg.StatusTimeout
	if timeout <= 0 {
		timeout = statusRequestTimeout
	}
	return &Server{
		logger:   logger,
		hub:      NewHub(logger, cfg.Hub),
		requests: requests,
		timeout:  timeout,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Register registers the WS handler on the provided mux.
func (s *Server) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleTelemetryWS)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleTelemetryWS upgrades and registers a client, then sends status_init.
func (s *Server) handleTelemetryWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)

	// Register first so broadcasts can reach it.
	s.hub.register <- client

	// The pumps must outlive the handler: net/http cancels r.Context() when
	// the handler returns.
	go client.writePump(context.Background())
	go client.readPump(context.Background())

	if s.requests == nil {
		return
	}

	status, err := requestStatus(r.Context(), s.requests, s.timeout)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("ws status request failed", "error", err)
		}
		return
	}

	initMsg, err := marshalEnvelope(wsOutboundEvent{Type: wsTypeStatusInit, Data: status})
	if err != nil {
		s.logger.Warn("ws status_init marshal failed", "error", err)
		return
	}

	// Already slow before the first frame: disconnect.
	select {
	case client.send <- initMsg:
	default:
		s.hub.unregister <- client
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster reads loop-emitted Broadcasts, marshals them and fans them
// out through the hub. Intended to run as a single goroutine.
//
// Telemetry is rate-limited: the latest pending frame is flushed at most once
// every window, even if updates keep arriving. Direction changes go out
// immediately, after any pending telemetry.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan Broadcast, window time.Duration, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}
	if window <= 0 {
		window = telemetryCoalesce
	}

	var (
		pending *wsOutboundEvent
		timer   *time.Timer
		timerC  <-chan time.Time
	)

	emit := func(ev wsOutboundEvent) {
		msg, err := marshalEnvelope(ev)
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.BroadcastBytes(msg)
	}

	flushPending := func() {
		if pending == nil {
			return
		}
		emit(*pending)
		pending = nil
	}

	stopTimer := func() {
		if timer != nil && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer = nil
		timerC = nil
	}

	for {
		select {
		case <-ctx.Done():
			flushPending()
			stopTimer()
			return

		case <-timerC:
			flushPending()
			timer = nil
			timerC = nil

		case b, ok := <-src:
			if !ok {
				flushPending()
				stopTimer()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}

			if ev.Type == wsTypeTelemetry {
				pending = &ev
				if timer == nil {
					timer = time.NewTimer(window)
					timerC = timer.C
				}
				continue
			}

			flushPending()
			stopTimer()
			emit(ev)
		}
	}
}

func convertBroadcast(b Broadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BroadcastTelemetry:
		s := ev.Status
		return wsOutboundEvent{
			Type: wsTypeTelemetry,
			Data: wsTelemetryData{
				Raw:         s.Raw,
				Direction:   s.Command.Direction,
				Magnitude:   s.Command.Magnitude,
				RateRPM:     s.RateRPM,
				SmoothedRPM: s.SmoothedRPM,
				Overridden:  s.InputOverridden,
			},
			At: s.At,
		}, true

	case BroadcastDirectionChanged:
		return wsOutboundEvent{
			Type: wsTypeDirectionChanged,
			Data: wsDirectionChangedData{From: ev.From, To: ev.To},
			At:   ev.At,
		}, true

	default:
		return wsOutboundEvent{}, false
	}
}
