package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sotto/internal/domain"
)

var (
	// ErrUnavailable is returned by Connect when the broker cannot be
	// reached within the configured number of dial attempts.
	ErrUnavailable = errors.New("signaling: broker unavailable")

	// ErrNotConnected is returned by Send while no broker connection is up.
	ErrNotConnected = errors.New("signaling: not connected")
)

const (
	defaultDialAttempts = 5
	dialBackoffStart    = 500 * time.Millisecond
	dialBackoffMax      = 8 * time.Second
	reconnectBackoffMax = 30 * time.Second
	writeTimeout        = 10 * time.Second
)

// Client is the websocket signaling client. It subscribes to its own inbox
// topic and the broadcast topic, dispatches inbound envelopes by type, and
// transparently reconnects after the initial Connect succeeds.
type Client struct {
	url          string
	self         domain.PeerKey
	dialAttempts int
	log          *slog.Logger

	mu   sync.Mutex // guards conn and all writes to it
	conn *websocket.Conn

	hmu      sync.RWMutex
	handlers map[domain.EnvelopeType]map[int]domain.EnvelopeHandler
	nextID   int

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ domain.Signaler = (*Client)(nil)

// NewClient returns a client for the broker at url, identifying as self.
// dialAttempts bounds how often Connect retries; values below one fall back
// to the default.
func NewClient(url string, self domain.PeerKey, dialAttempts int, log *slog.Logger) *Client {
	if dialAttempts < 1 {
		dialAttempts = defaultDialAttempts
	}
	return &Client{
		url:          url,
		self:         self,
		dialAttempts: dialAttempts,
		log:          log,
		handlers:     make(map[domain.EnvelopeType]map[int]domain.EnvelopeHandler),
		done:         make(chan struct{}),
	}
}

// Connect dials the broker, subscribes to the inbox and broadcast topics
// and starts the read loop. Idempotent while connected: a second call
// returns nil without dialing again. It retries with backoff and gives up
// with ErrUnavailable once the attempts are exhausted.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	backoff := dialBackoffStart
	var lastErr error
	for attempt := 1; attempt <= c.dialAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := c.dial(ctx)
		if err == nil {
			c.mu.Lock()
			if c.conn != nil {
				// A concurrent Connect won the race; keep its connection.
				c.mu.Unlock()
				_ = conn.Close()
				return nil
			}
			c.conn = conn
			c.mu.Unlock()
			c.log.Info("signaling connected", "url", c.url)
			c.wg.Add(1)
			go c.run(conn)
			return nil
		}
		lastErr = err
		c.log.Warn("signaling dial failed", "attempt", attempt, "error", err)
		if attempt < c.dialAttempts {
			if err := sleepWithContext(ctx, backoff); err != nil {
				return err
			}
			if backoff *= 2; backoff > dialBackoffMax {
				backoff = dialBackoffMax
			}
		}
	}
	return fmt.Errorf("%w: %d attempts: %v", ErrUnavailable, c.dialAttempts, lastErr)
}

// dial opens a connection and registers the two standing subscriptions.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := *websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, err
	}
	for _, topic := range []string{InboxTopic(c.self), BroadcastTopic} {
		if err := writeFrame(conn, Frame{Op: OpSub, Topic: topic}); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

// Send publishes payload as an envelope of the given type. An empty to
// targets the broadcast topic.
func (c *Client) Send(ctx context.Context, typ domain.EnvelopeType, to domain.PeerKey, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	env := domain.Envelope{
		Type:      typ,
		From:      c.self,
		To:        to,
		Payload:   raw,
		Timestamp: time.Now().UnixMilli(),
	}
	topic := BroadcastTopic
	if !to.IsZero() {
		topic = InboxTopic(to)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return writeFrame(c.conn, Frame{Op: OpPub, Topic: topic, Envelope: &env})
}

// Subscribe registers h for envelopes of the given type; the wildcard type
// matches everything. Handlers run on the read loop and must not block.
// The returned function removes the registration.
func (c *Client) Subscribe(typ domain.EnvelopeType, h domain.EnvelopeHandler) func() {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	id := c.nextID
	c.nextID++
	if c.handlers[typ] == nil {
		c.handlers[typ] = make(map[int]domain.EnvelopeHandler)
	}
	c.handlers[typ][id] = h
	return func() {
		c.hmu.Lock()
		defer c.hmu.Unlock()
		delete(c.handlers[typ], id)
	}
}

// Close tears the connection down and stops the read loop.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}

// run reads frames until the connection fails, then keeps redialing with
// capped backoff until Close.
func (c *Client) run(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		err := c.readLoop(conn)
		if c.isClosed() {
			return
		}
		c.log.Warn("signaling disconnected", "error", err)

		backoff := dialBackoffStart
		for {
			if !c.sleepWithDone(backoff) {
				return
			}
			next, err := c.dial(context.Background())
			if err == nil {
				if c.isClosed() {
					_ = next.Close()
					return
				}
				c.mu.Lock()
				c.conn = next
				c.mu.Unlock()
				c.log.Info("signaling reconnected", "url", c.url)
				conn = next
				break
			}
			c.log.Warn("signaling reconnect failed", "error", err)
			if backoff *= 2; backoff > reconnectBackoffMax {
				backoff = reconnectBackoffMax
			}
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}
		if f.Op != OpPub || f.Envelope == nil {
			continue
		}
		c.dispatch(*f.Envelope)
	}
}

// dispatch validates an inbound envelope and hands it to the registered
// handlers. Anything malformed is dropped here so handlers only ever see
// well-formed envelopes from other peers.
func (c *Client) dispatch(env domain.Envelope) {
	if !domain.KnownEnvelopeType(env.Type) {
		c.log.Debug("dropping envelope with unknown type", "type", env.Type)
		return
	}
	if _, err := domain.ParsePeerKey(env.From.String()); err != nil {
		c.log.Debug("dropping envelope with bad sender", "type", env.Type, "error", err)
		return
	}
	if env.From == c.self {
		return
	}
	if !env.To.IsZero() && env.To != c.self {
		c.log.Debug("dropping misrouted envelope", "type", env.Type, "to", env.To)
		return
	}

	c.hmu.RLock()
	hs := make([]domain.EnvelopeHandler, 0, len(c.handlers[env.Type])+len(c.handlers[domain.EnvelopeWildcard]))
	for _, h := range c.handlers[env.Type] {
		hs = append(hs, h)
	}
	for _, h := range c.handlers[domain.EnvelopeWildcard] {
		hs = append(hs, h)
	}
	c.hmu.RUnlock()

	for _, h := range hs {
		h(env)
	}
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// sleepWithDone waits for d; false means the client closed while waiting.
func (c *Client) sleepWithDone(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-c.done:
		return false
	case <-timer.C:
		return true
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func writeFrame(conn *websocket.Conn, f Frame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(f)
}
