package rendezvous

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sotto/internal/signaling"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameBytes  = 256 * 1024
	clientSendBuf  = 64
)

// Hub is the websocket pub/sub core: topics map to subscriber sets and a
// published frame is copied to every subscriber of its topic, including
// the publisher (clients filter their own envelopes). Nothing is stored;
// a peer that was not subscribed at publish time never sees the frame.
type Hub struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*hubClient]struct{}
	topics  map[string]map[*hubClient]struct{}
}

// hubClient is one connected websocket with its write pump.
type hubClient struct {
	conn *websocket.Conn
	send chan signaling.Frame
}

// NewHub returns an empty hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*hubClient]struct{}),
		topics:  make(map[string]map[*hubClient]struct{}),
	}
}

// ServeWS upgrades the request and runs the connection until it drops.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", "error", err)
		return
	}
	c := &hubClient{conn: conn, send: make(chan signaling.Frame, clientSendBuf)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	connectionsTotal.Inc()
	connectionsActive.Inc()
	h.log.Debug("client connected", "remote", conn.RemoteAddr())

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *hubClient) {
	defer h.drop(c)
	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f signaling.Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			return
		}
		switch f.Op {
		case signaling.OpSub:
			h.subscribe(c, f.Topic)
		case signaling.OpPub:
			h.publish(f)
		default:
			h.log.Debug("ignoring unknown op", "op", f.Op)
		}
	}
}

func (h *Hub) writePump(c *hubClient) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case f, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) subscribe(c *hubClient, topic string) {
	if topic == "" {
		return
	}
	h.mu.Lock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*hubClient]struct{})
	}
	h.topics[topic][c] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("subscribed", "topic", topic)
}

// publish fans a frame out to the topic's subscribers. A subscriber whose
// buffer is full loses the frame: the channel is best-effort by contract
// and the protocol above tolerates silent loss. The sends are non-blocking
// and stay under h.mu so they cannot race drop closing a send channel.
func (h *Hub) publish(f signaling.Frame) {
	if f.Topic == "" || f.Envelope == nil {
		return
	}
	envelopesPublished.WithLabelValues(string(f.Envelope.Type)).Inc()

	h.mu.Lock()
	for c := range h.topics[f.Topic] {
		select {
		case c.send <- f:
			envelopesDelivered.Inc()
		default:
			envelopesDropped.Inc()
			h.log.Warn("dropping frame for slow subscriber", "topic", f.Topic)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) drop(c *hubClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for topic, subs := range h.topics {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	// Closed under h.mu: once a client is out of the maps no publish can
	// reach its channel, and in-flight publishes hold the lock.
	close(c.send)
	h.mu.Unlock()

	_ = c.conn.Close()
	connectionsActive.Dec()
	h.log.Debug("client disconnected", "remote", c.conn.RemoteAddr())
}
