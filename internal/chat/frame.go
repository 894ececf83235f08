package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	TypeChatMessage = "chat_message"
	TypeError       = "error"
)

var (
	ErrMalformedFrame = errors.New("chat: malformed frame")
	ErrUnknownFrame   = errors.New("chat: unrecognized frame type")
	ErrServerFrame    = errors.New("chat: server reported an error")
)

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Message json.RawMessage `json:"message"`
}

// DecodeFrame reads one inbound chat frame. Both the flat
// {user, message, timestamp} shape and the wrapped
// {type:"chat_message", payload:{...}} shape are accepted.
func DecodeFrame(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch env.Type {
	case TypeChatMessage:
		if hasValue(env.Payload) {
			return decodeMessage(env.Payload)
		}
		return decodeMessage(data)
	case "":
		return decodeMessage(data)
	case TypeError:
		var text string
		_ = json.Unmarshal(env.Message, &text)
		return Message{}, fmt.Errorf("%w: %s", ErrServerFrame, text)
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownFrame, env.Type)
	}
}

func decodeMessage(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if w.User == nil || w.User.ID == 0 {
		return Message{}, fmt.Errorf("%w: missing user", ErrMalformedFrame)
	}
	if w.Message == nil {
		return Message{}, fmt.Errorf("%w: missing message", ErrMalformedFrame)
	}
	m := w.message()
	m.Provenance = FromChannel
	return m, nil
}

func hasValue(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

type outboundFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// EncodeOutbound builds the frame sent for user input.
func EncodeOutbound(body string) ([]byte, error) {
	return json.Marshal(outboundFrame{Type: TypeChatMessage, Message: body})
}

// dropReason labels a decode error for metrics.
func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrServerFrame):
		return "server_error"
	case errors.Is(err, ErrUnknownFrame):
		return "unknown_type"
	default:
		return "malformed"
	}
}
