package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"tradepulse/internal/alert"
	"tradepulse/internal/logger"
	"tradepulse/internal/strategy"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 50 * time.Second
	streamBuffer     = 64
)

// Event is one message pushed to stream clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans events out to websocket clients. A client that cannot keep up
// misses events rather than stalling the publisher.
type Hub struct {
	mu      sync.Mutex
	clients map[*streamClient]struct{}
	closed  bool
}

type streamClient struct {
	send chan []byte
	once sync.Once
}

func (c *streamClient) close() { c.once.Do(func() { close(c.send) }) }

func NewHub() *Hub {
	return &Hub{clients: make(map[*streamClient]struct{})}
}

// PublishSignal has the engine.SignalHook signature.
func (h *Hub) PublishSignal(sig strategy.Signal) { h.Publish("signal", sig) }

// PublishAlert pushes a fired alert.
func (h *Hub) PublishAlert(a alert.Alert) { h.Publish("alert", a) }

func (h *Hub) Publish(kind string, data any) {
	payload, err := json.Marshal(Event{Type: kind, Data: data})
	if err != nil {
		logger.Warnf("[http] stream encode %s: %v", kind, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
		}
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register() (*streamClient, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &streamClient{send: make(chan []byte, streamBuffer)}
	h.clients[c] = struct{}{}
	return c, true
}

func (h *Hub) unregister(c *streamClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (s *Server) handleStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Debugf("[http] stream upgrade: %v", err)
		return
	}
	client, ok := s.hub.register()
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(streamWriteWait))
		_ = conn.Close()
		return
	}
	go s.readStream(conn, client)
	s.writeStream(conn, client)
}

// readStream drains client frames so pongs and close frames are processed.
func (s *Server) readStream(conn *websocket.Conn, client *streamClient) {
	defer s.hub.unregister(client)
	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeStream(conn *websocket.Conn, client *streamClient) {
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case msg, ok := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
