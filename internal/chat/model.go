package chat

import (
	"encoding/json"
	"strings"
	"time"
)

// User is the sender reference carried by every chat message.
type User struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	ProfileImage string `json:"profile_image,omitempty"`
}

// DisplayName falls back the way the portal does when a name is missing.
func (u User) DisplayName() string {
	if strings.TrimSpace(u.Name) == "" {
		return "Unknown"
	}
	return u.Name
}

// Provenance records where a message entered the log.
type Provenance int

const (
	// FromHistory messages were seeded from the REST payload when the conversation was selected.
	FromHistory Provenance = iota
	// FromChannel messages arrived over the conversation socket, including the echo of our own sends.
	FromChannel
)

type Message struct {
	ID         int        `json:"id,omitempty"`
	User       User       `json:"user"`
	Body       string     `json:"message"`
	Timestamp  time.Time  `json:"timestamp"`
	Provenance Provenance `json:"-"`
}

// Side is the own/peer projection used for left/right rendering.
type Side int

const (
	Peer Side = iota
	Own
)

func (s Side) String() string {
	if s == Own {
		return "own"
	}
	return "peer"
}

// SideFor classifies m against the session user. It is computed on read and never stored.
func (m Message) SideFor(selfID int) Side {
	if selfID != 0 && m.User.ID == selfID {
		return Own
	}
	return Peer
}

// Entry is a message plus its read-time side.
type Entry struct {
	Message
	Side Side
}

// Conversation is a chat thread scoped to one grievance. ID matches the grievance id.
type Conversation struct {
	ID          int
	Title       string
	Participant User
	History     []Message
}

// wireMessage is the loose shape the backend sends, both in REST history and on the socket.
type wireMessage struct {
	ID        int             `json:"id"`
	User      *User           `json:"user"`
	Message   *string         `json:"message"`
	Timestamp json.RawMessage `json:"timestamp"`
}

func (w wireMessage) message() Message {
	m := Message{ID: w.ID, Timestamp: parseTimestamp(w.Timestamp)}
	if w.User != nil {
		m.User = *w.User
	}
	if w.Message != nil {
		m.Body = *w.Message
	}
	return m
}

// UnmarshalJSON accepts history entries with missing users or odd timestamps.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = w.message()
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05",
}

// parseTimestamp reads a string timestamp or unix seconds (milliseconds when
// large). Anything else is the zero time; ordering never depends on it.
func parseTimestamp(raw json.RawMessage) time.Time {
	if !hasValue(raw) {
		return time.Time{}
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n > 1e12 {
			return time.UnixMilli(int64(n)).UTC()
		}
		return time.Unix(int64(n), 0).UTC()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
