// Package notify keeps the session-wide notification channel and the unseen
// badge count, independent of any open conversation.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"grievance-chat/internal/metrics"
	"grievance-chat/internal/observability"
	"grievance-chat/internal/ws"
)

const (
	userPath  = "/ws/notifications/"
	adminPath = "/ws/notifications/admin/"

	DefaultMaxItems = 50
)

var ErrMissingToken = errors.New("notify: token is required")

type Config struct {
	BaseURL string
	// Admin selects the staff notification channel.
	Admin bool
	// MaxItems caps the recent queue; the unseen counter is not capped.
	MaxItems int
	Dialer   *websocket.Dialer
	Logger   *slog.Logger
	// OnEvent runs on the channel's reader goroutine after each counted event.
	OnEvent func(Item, int)
}

// Aggregator counts unseen server-pushed events. Acknowledge clears
// everything: the whole badge resets when the user visits any target.
type Aggregator struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	mu     sync.Mutex
	ch     *ws.Channel
	unseen int
	items  []Item
}

func NewAggregator(cfg Config) *Aggregator {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	log := cfg.Logger
	if log == nil {
		log = observability.Logger()
	}
	return &Aggregator{cfg: cfg, log: log.With("component", "notify"), now: time.Now}
}

// Start opens the user-scoped channel. A channel from an earlier Start is
// closed first; counts and queue carry over.
func (a *Aggregator) Start(ctx context.Context, token string) error {
	a.Stop()
	if strings.TrimSpace(token) == "" {
		return ErrMissingToken
	}

	path := userPath
	if a.cfg.Admin {
		path = adminPath
	}
	target, err := ws.Endpoint(a.cfg.BaseURL, path, token)
	if err != nil {
		return err
	}

	ch := ws.NewChannel(ws.Options{Kind: "notifications", Dialer: a.cfg.Dialer, Logger: a.log}, ws.Handler{
		OnFrame: a.handleFrame,
		OnClose: func(state ws.State, err error) {
			a.log.Info("notification channel ended", "state", state.String(), "err", err)
		},
	})
	a.mu.Lock()
	a.ch = ch
	a.mu.Unlock()

	if err := ch.Open(ctx, target); err != nil {
		return fmt.Errorf("notify: start: %w", err)
	}
	return nil
}

func (a *Aggregator) handleFrame(data []byte) {
	item, err := DecodeEvent(data, a.now())
	if err != nil {
		metrics.FramesDropped.WithLabelValues("notifications", "malformed").Inc()
		a.log.Warn("dropping notification frame", "err", err)
		return
	}
	metrics.Notifications.WithLabelValues(string(item.Type)).Inc()

	a.mu.Lock()
	a.unseen++
	a.items = append([]Item{item}, a.items...)
	if len(a.items) > a.cfg.MaxItems {
		a.items = a.items[:a.cfg.MaxItems]
	}
	unseen := a.unseen
	a.mu.Unlock()

	if a.cfg.OnEvent != nil {
		a.cfg.OnEvent(item, unseen)
	}
}

// Acknowledge is called when the user navigates to a notification target.
// The counter resets to zero and the queue empties regardless of targetID.
func (a *Aggregator) Acknowledge(targetID int) {
	a.mu.Lock()
	cleared := a.unseen
	a.unseen = 0
	a.items = nil
	a.mu.Unlock()
	a.log.Debug("notifications acknowledged", "target", targetID, "cleared", cleared)
}

// Stop closes the channel, as on logout. Safe to call repeatedly.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	ch := a.ch
	a.mu.Unlock()
	if ch != nil {
		ch.Close()
	}
}

// Unseen is the badge count.
func (a *Aggregator) Unseen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unseen
}

// Items are the recent notifications, newest first.
func (a *Aggregator) Items() []Item {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Item(nil), a.items...)
}

func (a *Aggregator) State() ws.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ch == nil {
		return ws.StateIdle
	}
	return a.ch.State()
}
