package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const eventsChannel = "grievance-portal:events"

// Envelope is one fanout unit. Room targets a conversation's chat sockets;
// otherwise the payload goes to notification sockets of Users, plus every
// staff socket when Staff is set.
type Envelope struct {
	Room    int             `json:"room,omitempty"`
	Users   []int           `json:"users,omitempty"`
	Staff   bool            `json:"staff,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Broker carries envelopes between server instances.
type Broker interface {
	Publish(ctx context.Context, e Envelope) error
	// Subscribe delivers envelopes until ctx ends.
	Subscribe(ctx context.Context, deliver func(Envelope)) error
}

// LocalBroker keeps fanout inside one process.
type LocalBroker struct {
	ch chan Envelope
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{ch: make(chan Envelope, 1024)}
}

func (b *LocalBroker) Publish(ctx context.Context, e Envelope) error {
	select {
	case b.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *LocalBroker) Subscribe(ctx context.Context, deliver func(Envelope)) error {
	for {
		select {
		case e := <-b.ch:
			deliver(e)
		case <-ctx.Done():
			return nil
		}
	}
}

// RedisBroker fans out through Redis pub/sub so any instance can reach any socket.
type RedisBroker struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedisBroker(rdb *redis.Client, log *slog.Logger) *RedisBroker {
	return &RedisBroker{rdb: rdb, log: log}
}

func (b *RedisBroker) Publish(ctx context.Context, e Envelope) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return b.rdb.Publish(ctx, eventsChannel, data).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, deliver func(Envelope)) error {
	pubsub := b.rdb.Subscribe(ctx, eventsChannel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", eventsChannel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				b.log.Warn("dropping envelope", "err", err)
				continue
			}
			deliver(e)
		case <-ctx.Done():
			return nil
		}
	}
}
