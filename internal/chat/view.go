package chat

import (
	"context"
	"sync"

	"grievance-chat/internal/ws"
)

// Identity is what a conversation view needs from the session.
type Identity interface {
	Token() string
	UserID() int
}

// View is the state a chat screen embeds: one manager, one store, one active conversation.
type View struct {
	ident    Identity
	store    *Store
	mgr      *Manager
	onAppend func(Entry)

	mu     sync.Mutex
	active *Conversation
}

// NewView wires a manager whose frames land in the view's store. onAppend,
// if set, is called after each appended message on the channel's reader goroutine.
func NewView(cfg ManagerConfig, ident Identity, onAppend func(Entry)) *View {
	v := &View{ident: ident, store: NewStore(), onAppend: onAppend}
	v.mgr = NewManager(cfg, v.receive)
	return v
}

// Select switches to conv: the previous channel is closed, the log is cleared
// and seeded with conv.History, then a channel scoped to conv.ID is opened.
func (v *View) Select(ctx context.Context, conv Conversation) error {
	v.mu.Lock()
	v.mgr.Close()
	v.store.Clear()
	v.store.Seed(conv.History)
	c := conv
	c.History = nil
	v.active = &c
	v.mu.Unlock()

	return v.mgr.Open(ctx, conv.ID, v.ident.Token())
}

// receive drops frames from any channel but the current one. Reselecting the
// same conversation retires the old socket too, so the id alone is not enough.
func (v *View) receive(conversationID int, gen uint64, m Message) {
	v.mu.Lock()
	if v.active == nil || v.active.ID != conversationID || gen != v.mgr.Generation() {
		v.mu.Unlock()
		return
	}
	v.store.Append(m)
	v.mu.Unlock()

	if v.onAppend != nil {
		v.onAppend(Entry{Message: m, Side: m.SideFor(v.ident.UserID())})
	}
}

func (v *View) Send(body string) error {
	return v.mgr.Send(body)
}

// Entries is the ordered log with own/peer sides for the session user.
func (v *View) Entries() []Entry {
	return v.store.Entries(v.ident.UserID())
}

// Active returns the selected conversation, if any.
func (v *View) Active() (Conversation, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active == nil {
		return Conversation{}, false
	}
	return *v.active, true
}

func (v *View) State() ws.State {
	return v.mgr.State()
}

// Close is the unmount path: channel closed and log discarded.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mgr.Close()
	v.store.Clear()
	v.active = nil
}
