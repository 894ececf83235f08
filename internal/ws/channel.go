// Package ws is the single socket abstraction shared by the chat and
// notification channels: dial, read/write pumps, and the lifecycle state
// machine. Channels never reconnect; a terminal channel is replaced by a new one.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"grievance-chat/internal/metrics"
	"grievance-chat/internal/observability"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a frame to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Must be less than pongWait.
	maxMessageSize = 64 << 10            // Largest inbound frame accepted.
	sendBuffer     = 256
)

var (
	ErrNotOpen   = errors.New("ws: channel not open")
	ErrQueueFull = errors.New("ws: outbound queue full")
	ErrReused    = errors.New("ws: channel already opened once")
	ErrClosed    = errors.New("ws: channel closed while connecting")
)

// Handler receives channel events. Callbacks never overlap. OnOpen runs on
// the goroutine that called Open, before Open returns; OnFrame and OnClose run
// on the reader goroutine in transport order. No callback starts once Close
// has returned, but one already running when Close is called may finish after
// it, so receivers that outlive a channel must discard its late deliveries.
type Handler struct {
	OnOpen  func()
	OnFrame func(frame []byte)
	// OnClose fires once when the peer or the transport ends an open channel.
	// A local Close does not report back.
	OnClose func(state State, err error)
}

type Options struct {
	// Kind labels logs and metrics, e.g. "chat" or "notifications".
	Kind   string
	Dialer *websocket.Dialer
	Logger *slog.Logger
}

// Channel is one bidirectional realtime connection. It is single-use.
type Channel struct {
	kind   string
	dialer *websocket.Dialer
	log    *slog.Logger
	h      Handler

	mu    sync.Mutex
	state State
	conn  *websocket.Conn
	send  chan []byte

	quit     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once

	dispatchMu sync.Mutex
	released   atomic.Bool
}

func NewChannel(opts Options, h Handler) *Channel {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	log := opts.Logger
	if log == nil {
		log = observability.Logger()
	}
	kind := opts.Kind
	if kind == "" {
		kind = "default"
	}
	return &Channel{
		kind:   kind,
		dialer: dialer,
		log:    log.With("channel", kind),
		h:      h,
		send:   make(chan []byte, sendBuffer),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Open dials rawURL and starts the pumps. It blocks until the handshake
// completes or fails; a failed dial leaves the channel errored.
func (c *Channel) Open(ctx context.Context, rawURL string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrReused
	}
	c.state = StateConnecting
	c.mu.Unlock()

	target := Redact(rawURL)
	c.log.Debug("channel connecting", "url", target)

	conn, resp, err := c.dialer.DialContext(ctx, rawURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		c.markDone()
		return ErrClosed
	}
	if err != nil {
		c.state = StateErrored
		c.mu.Unlock()
		c.markDone()
		metrics.ChannelsFailed.WithLabelValues(c.kind).Inc()
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		c.log.Warn("channel dial failed", "url", target, "status", status, "err", err)
		return fmt.Errorf("ws: dial %s: %w", target, err)
	}
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()

	metrics.ChannelsOpened.WithLabelValues(c.kind).Inc()
	c.log.Info("channel open", "url", target)

	c.deliver(func() {
		if c.h.OnOpen != nil {
			c.h.OnOpen()
		}
	})

	go c.writePump()
	go c.readPump()
	return nil
}

// Send queues one text frame. It never blocks.
func (c *Channel) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return ErrNotOpen
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrQueueFull
	}
}

// SendJSON encodes v and queues it.
func (c *Channel) SendJSON(v any) error {
	frame, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ws: encode frame: %w", err)
	}
	return c.Send(frame)
}

// Close tears the channel down. Closing a channel that is already closed,
// errored or never opened is a no-op.
func (c *Channel) Close() {
	c.released.Store(true)

	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateIdle:
		c.state = StateClosed
		c.markDone()
	case StateConnecting:
		// Open notices the state change once the dial returns.
		c.state = StateClosed
	case StateOpen:
		c.state = StateClosed
		c.stop()
		c.log.Info("channel closed")
	}
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the channel holds no live connection and its reader has exited.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// readPump pumps frames from the websocket connection to the handler.
func (c *Channel) readPump() {
	defer c.markDone()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			c.finish(err)
			return
		}
		metrics.FramesReceived.WithLabelValues(c.kind).Inc()
		c.deliver(func() {
			if c.h.OnFrame != nil {
				c.h.OnFrame(frame)
			}
		})
	}
}

// writePump owns every data write on the connection.
func (c *Channel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Warn("channel write failed", "err", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.quit:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// finish records how the peer or transport ended an open channel.
func (c *Channel) finish(err error) {
	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		return
	}
	next := StateErrored
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		next = StateClosed
	}
	c.state = next
	c.mu.Unlock()
	c.stop()

	if next == StateErrored {
		metrics.ChannelsFailed.WithLabelValues(c.kind).Inc()
		c.log.Warn("channel errored", "err", err)
	} else {
		c.log.Info("channel closed by peer", "err", err)
	}

	c.deliver(func() {
		if c.h.OnClose != nil {
			c.h.OnClose(next, err)
		}
	})
}

func (c *Channel) deliver(fn func()) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	if c.released.Load() {
		return
	}
	fn()
}

func (c *Channel) stop() {
	c.stopOnce.Do(func() { close(c.quit) })
}

func (c *Channel) markDone() {
	c.doneOnce.Do(func() { close(c.done) })
}
