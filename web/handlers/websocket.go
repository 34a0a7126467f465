package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/scrypster/pinpoint/internal/logger"
	"github.com/scrypster/pinpoint/pkg/types"
)

const (
	outboxSize   = 64
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// subscriber receives encoded events. The hub owns the outbox: it is closed
// exactly once, when the subscriber leaves or is dropped.
type subscriber interface {
	outbox() chan []byte
	close()
}

// WebSocketHub fans pin events out to connected map and library clients.
// A subscriber whose outbox is full is dropped rather than allowed to stall
// the others.
type WebSocketHub struct {
	events chan []byte
	join   chan subscriber
	leave  chan subscriber

	mu   sync.RWMutex
	subs map[subscriber]struct{}

	ctx    context.Context
	cancel context.CancelFunc

	anyOrigin      bool
	allowedOrigins map[string]bool
	originPatterns []string
	log            *zap.SugaredLogger
}

// NewWebSocketHub creates a hub. origins are full origins such as
// "https://app.example.com"; an empty list or "*" accepts any origin.
func NewWebSocketHub(origins []string) *WebSocketHub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &WebSocketHub{
		events:         make(chan []byte, 256),
		join:           make(chan subscriber),
		leave:          make(chan subscriber),
		subs:           make(map[subscriber]struct{}),
		ctx:            ctx,
		cancel:         cancel,
		allowedOrigins: make(map[string]bool),
		log:            logger.GetLogger("websocket"),
	}
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch {
		case o == "":
		case o == "*":
			h.anyOrigin = true
		default:
			h.allowedOrigins[o] = true
			if u, err := url.Parse(o); err == nil && u.Host != "" {
				h.originPatterns = append(h.originPatterns, u.Host)
			}
		}
	}
	if len(h.allowedOrigins) == 0 {
		h.anyOrigin = true
	}
	return h
}

// Run processes joins, leaves and events until Stop is called.
func (h *WebSocketHub) Run() {
	for {
		select {
		case s := <-h.join:
			h.add(s)
		case s := <-h.leave:
			h.remove(s)
		case msg := <-h.events:
			h.fanOut(msg)
		case <-h.ctx.Done():
			h.log.Debugw("websocket hub stopping")
			return
		}
	}
}

func (h *WebSocketHub) add(s subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	h.log.Debugw("websocket client connected", "total", n)
}

func (h *WebSocketHub) remove(s subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.outbox())
	}
	n := len(h.subs)
	h.mu.Unlock()
	h.log.Debugw("websocket client disconnected", "total", n)
}

func (h *WebSocketHub) fanOut(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.outbox() <- msg:
		default:
			delete(h.subs, s)
			close(s.outbox())
			h.log.Warnw("dropped slow websocket client")
		}
	}
}

// Stop closes every subscriber and ends Run.
func (h *WebSocketHub) Stop() {
	h.cancel()

	h.mu.Lock()
	for s := range h.subs {
		close(s.outbox())
		s.close()
	}
	h.subs = make(map[subscriber]struct{})
	h.mu.Unlock()
}

// Broadcast encodes message as JSON and queues it for every subscriber. The
// message is dropped when the queue is full.
func (h *WebSocketHub) Broadcast(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		h.log.Errorw("failed to marshal websocket message", "error", err)
		return
	}
	select {
	case h.events <- data:
	default:
		h.log.Warnw("websocket event queue full, dropping message")
	}
}

// PublishPin broadcasts a pin.enriched event.
func (h *WebSocketHub) PublishPin(pin types.EnrichedPin) {
	h.Broadcast(Event{Type: EventPinEnriched, Data: pin})
}

// ClientCount returns the number of connected subscribers.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Register adds a subscriber.
func (h *WebSocketHub) Register(s subscriber) {
	select {
	case h.join <- s:
	case <-h.ctx.Done():
	}
}

// Unregister removes a subscriber.
func (h *WebSocketHub) Unregister(s subscriber) {
	select {
	case h.leave <- s:
	case <-h.ctx.Done():
	}
}

// ServeHTTP upgrades the request and streams events until the peer goes away.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := strings.TrimRight(r.Header.Get("Origin"), "/")
	if origin != "" && !h.anyOrigin && !h.allowedOrigins[origin] {
		http.Error(w, "Forbidden: invalid origin", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.originPatterns,
		InsecureSkipVerify: h.anyOrigin,
	})
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "error", err)
		return
	}

	c := &peer{hub: h, conn: conn, send: make(chan []byte, outboxSize)}
	h.Register(c)

	// Pins only flow server to client; reads just notice the peer leaving.
	go c.write()
	go c.read()
}

// peer is one live WebSocket connection.
type peer struct {
	hub  *WebSocketHub
	conn *websocket.Conn
	send chan []byte
}

func (p *peer) outbox() chan []byte { return p.send }

func (p *peer) close() {
	_ = p.conn.Close(websocket.StatusNormalClosure, "")
}

func (p *peer) write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		p.hub.Unregister(p)
		p.close()
	}()

	for {
		select {
		case msg, ok := <-p.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(p.hub.ctx, writeTimeout)
			err := p.conn.Write(ctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				p.hub.log.Debugw("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(p.hub.ctx, writeTimeout)
			err := p.conn.Ping(ctx)
			cancel()
			if err != nil {
				p.hub.log.Debugw("websocket ping failed", "error", err)
				return
			}
		}
	}
}

func (p *peer) read() {
	defer func() {
		p.hub.Unregister(p)
		p.close()
	}()
	for {
		if _, _, err := p.conn.Read(p.hub.ctx); err != nil {
			return
		}
	}
}

// MockClient is a subscriber for tests.
type MockClient struct {
	SendChan chan []byte
}

func (m *MockClient) outbox() chan []byte { return m.SendChan }

func (m *MockClient) close() {}
