package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"grievance-chat/internal/metrics"
	"grievance-chat/internal/observability"
	"grievance-chat/internal/ws"
)

var ErrMissingCredentials = errors.New("chat: conversation id and token are required")

// SendError is a send rejected locally. UserMessage is the inline notice shown to the user.
type SendError struct {
	reason string
	notice string
}

func (e *SendError) Error() string       { return "chat: " + e.reason }
func (e *SendError) UserMessage() string { return e.notice }

var (
	ErrCannotSend   = &SendError{reason: "connection not available", notice: "Cannot send message. Connection not available."}
	ErrSendFailed   = &SendError{reason: "outbound queue full", notice: "Failed to send message."}
	ErrEmptyMessage = &SendError{reason: "empty message", notice: "Type a message first."}
)

type ManagerConfig struct {
	// BaseURL selects the API/WS host, e.g. http://localhost:8000.
	BaseURL string
	Dialer  *websocket.Dialer
	Logger  *slog.Logger
}

// Receiver gets every well-formed chat message, tagged with the conversation
// and the generation of the channel that delivered it. A generation is stale
// once it differs from Generation.
type Receiver func(conversationID int, gen uint64, m Message)

// Manager owns at most one live chat channel at a time.
type Manager struct {
	cfg     ManagerConfig
	log     *slog.Logger
	receive Receiver

	openMu sync.Mutex

	mu     sync.Mutex
	ch     *ws.Channel
	convID int
	failed bool
	gen    uint64
}

func NewManager(cfg ManagerConfig, receive Receiver) *Manager {
	log := cfg.Logger
	if log == nil {
		log = observability.Logger()
	}
	return &Manager{cfg: cfg, log: log.With("component", "chat"), receive: receive}
}

// Open connects to /ws/chat/<conversationID>/. A live channel from an earlier
// Open is closed first. Without both an id and a token nothing is dialed and
// the manager reports errored.
func (m *Manager) Open(ctx context.Context, conversationID int, token string) error {
	m.openMu.Lock()
	defer m.openMu.Unlock()

	m.mu.Lock()
	prev := m.ch
	m.gen++
	gen := m.gen
	m.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	fail := func(err error) error {
		m.mu.Lock()
		m.ch, m.convID, m.failed = nil, conversationID, true
		m.mu.Unlock()
		metrics.ChannelsFailed.WithLabelValues("chat").Inc()
		m.log.Error("chat channel unusable", "conversation", conversationID, "err", err)
		return err
	}

	if conversationID <= 0 || strings.TrimSpace(token) == "" {
		return fail(ErrMissingCredentials)
	}
	target, err := ws.Endpoint(m.cfg.BaseURL, fmt.Sprintf("/ws/chat/%d/", conversationID), token)
	if err != nil {
		return fail(err)
	}

	ch := ws.NewChannel(ws.Options{Kind: "chat", Dialer: m.cfg.Dialer, Logger: m.log}, ws.Handler{
		OnOpen: func() {
			m.log.Info("chat channel open", "conversation", conversationID)
		},
		OnFrame: func(frame []byte) {
			m.handleFrame(conversationID, gen, frame)
		},
		OnClose: func(state ws.State, err error) {
			m.log.Info("chat channel ended", "conversation", conversationID, "state", state.String(), "err", err)
		},
	})

	m.mu.Lock()
	m.ch, m.convID, m.failed = ch, conversationID, false
	m.mu.Unlock()

	if err := ch.Open(ctx, target); err != nil {
		return fmt.Errorf("chat: open conversation %d: %w", conversationID, err)
	}
	return nil
}

func (m *Manager) handleFrame(conversationID int, gen uint64, frame []byte) {
	msg, err := DecodeFrame(frame)
	if err != nil {
		metrics.FramesDropped.WithLabelValues("chat", dropReason(err)).Inc()
		m.log.Warn("dropping chat frame", "conversation", conversationID, "err", err)
		return
	}
	if m.receive != nil {
		m.receive(conversationID, gen, msg)
	}
}

// Send queues body for the server, which echoes it back to every participant.
// Nothing is inserted locally.
func (m *Manager) Send(body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return ErrEmptyMessage
	}

	m.mu.Lock()
	ch := m.ch
	m.mu.Unlock()
	if ch == nil || ch.State() != ws.StateOpen {
		metrics.SendFailures.WithLabelValues("not_open").Inc()
		return ErrCannotSend
	}

	frame, err := EncodeOutbound(body)
	if err != nil {
		metrics.SendFailures.WithLabelValues("encode").Inc()
		return ErrSendFailed
	}
	switch err := ch.Send(frame); {
	case err == nil:
		return nil
	case errors.Is(err, ws.ErrNotOpen):
		metrics.SendFailures.WithLabelValues("not_open").Inc()
		return ErrCannotSend
	default:
		metrics.SendFailures.WithLabelValues("queue_full").Inc()
		m.log.Warn("chat send failed", "err", err)
		return ErrSendFailed
	}
}

// Close tears down the current channel and retires its generation. It is
// safe to call repeatedly and before any Open.
func (m *Manager) Close() {
	m.mu.Lock()
	ch := m.ch
	m.gen++
	m.mu.Unlock()
	if ch != nil {
		ch.Close()
	}
}

func (m *Manager) State() ws.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.failed:
		return ws.StateErrored
	case m.ch == nil:
		return ws.StateIdle
	default:
		return m.ch.State()
	}
}

// Generation identifies the current channel. Every Open and Close advances it.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// ConversationID is the conversation of the most recent Open.
func (m *Manager) ConversationID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.convID
}

// done exposes the current channel's Done for tests.
func (m *Manager) done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ch == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return m.ch.Done()
}
