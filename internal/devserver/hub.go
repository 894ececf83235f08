package devserver

import (
	"context"
	"log/slog"
	"slices"
)

type directMessage struct {
	client  *Client
	payload []byte
}

// Hub owns the socket registry. Only Run touches the maps.
type Hub struct {
	rooms      map[int]map[*Client]bool // grievance id -> chat sockets
	listeners  map[*Client]bool         // notification sockets
	broadcast  chan Envelope            // broker -> clients
	direct     chan directMessage       // reply to one socket
	register   chan *Client
	unregister chan *Client
	broker     Broker
	log        *slog.Logger
	done       chan struct{}
}

func NewHub(broker Broker, log *slog.Logger) *Hub {
	return &Hub{
		rooms:      make(map[int]map[*Client]bool),
		listeners:  make(map[*Client]bool),
		broadcast:  make(chan Envelope),
		direct:     make(chan directMessage),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broker:     broker,
		log:        log,
		done:       make(chan struct{}),
	}
}

// Run processes registrations and fanout until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	go func() {
		err := h.broker.Subscribe(ctx, func(e Envelope) {
			select {
			case h.broadcast <- e:
			case <-ctx.Done():
			}
		})
		if err != nil {
			h.log.Error("broker subscription ended", "err", err)
		}
	}()

	for {
		select {
		case client := <-h.register:
			if client.room != 0 {
				if h.rooms[client.room] == nil {
					h.rooms[client.room] = make(map[*Client]bool)
				}
				h.rooms[client.room][client] = true
			} else {
				h.listeners[client] = true
			}

		case client := <-h.unregister:
			h.drop(client)

		case d := <-h.direct:
			if h.registered(d.client) {
				h.deliver(d.client, d.payload)
			}

		case e := <-h.broadcast:
			if e.Room != 0 {
				for client := range h.rooms[e.Room] {
					h.deliver(client, e.Payload)
				}
				continue
			}
			for client := range h.listeners {
				if slices.Contains(e.Users, client.user.ID) || (e.Staff && client.user.Privileged()) {
					h.deliver(client, e.Payload)
				}
			}

		case <-ctx.Done():
			for client := range h.listeners {
				h.drop(client)
			}
			for _, room := range h.rooms {
				for client := range room {
					h.drop(client)
				}
			}
			return
		}
	}
}

// Publish hands an envelope to the broker; it never blocks on the Run loop.
func (h *Hub) Publish(ctx context.Context, e Envelope) {
	if err := h.broker.Publish(ctx, e); err != nil {
		h.log.Error("publish failed", "room", e.Room, "err", err)
	}
}

func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Reply sends payload to one socket only, such as a validation error.
func (h *Hub) Reply(c *Client, payload []byte) {
	select {
	case h.direct <- directMessage{client: c, payload: payload}:
	case <-h.done:
	}
}

func (h *Hub) registered(c *Client) bool {
	if c.room != 0 {
		return h.rooms[c.room][c]
	}
	return h.listeners[c]
}

// deliver drops a socket whose buffer is full rather than stall the hub.
func (h *Hub) deliver(c *Client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		h.log.Warn("dropping slow client", "user", c.user.ID, "room", c.room)
		h.drop(c)
	}
}

func (h *Hub) drop(c *Client) {
	if !h.registered(c) {
		return
	}
	if c.room != 0 {
		delete(h.rooms[c.room], c)
		if len(h.rooms[c.room]) == 0 {
			delete(h.rooms, c.room)
		}
	} else {
		delete(h.listeners, c)
	}
	close(c.send)
}
