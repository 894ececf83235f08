package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType is the `type` discriminator of a notification frame.
type EventType string

const (
	NewGrievance          EventType = "new_grievance"
	GrievanceStatusUpdate EventType = "grievance_status_update"
	NewComment            EventType = "new_comment"
	ProfileUpdated        EventType = "profile_updated"
	ChatRequest           EventType = "chat_request"
	ChatMessage           EventType = "send_notification"
)

var defaultText = map[EventType]string{
	NewGrievance:          "New grievance submitted",
	GrievanceStatusUpdate: "Grievance status updated",
	NewComment:            "New comment on a grievance",
	ProfileUpdated:        "Profile updated",
	ChatRequest:           "New chat request",
	ChatMessage:           "New chat message",
}

var ErrMalformedEvent = errors.New("notify: malformed event")

// Item is one entry of the recent-notifications queue.
type Item struct {
	ID         string
	Type       EventType
	Text       string
	TargetID   int
	ReceivedAt time.Time
}

type frame struct {
	Type    EventType       `json:"type"`
	Message json.RawMessage `json:"message"`
	Payload json.RawMessage `json:"payload"`
}

// targetKeys are checked in order on the payload, then on the frame itself.
var targetKeys = []string{"grievance_id", "conversation_id", "target_id", "id"}

// DecodeEvent turns a notification frame into an Item. Frames without a type are rejected.
func DecodeEvent(data []byte, now time.Time) (Item, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	f.Type = EventType(strings.TrimSpace(string(f.Type)))
	if f.Type == "" {
		return Item{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}

	item := Item{ID: uuid.NewString(), Type: f.Type, ReceivedAt: now}

	var payload map[string]json.RawMessage
	if len(f.Payload) > 0 {
		_ = json.Unmarshal(f.Payload, &payload)
	}

	item.Text = firstString(f.Message, f.Payload, payload["message"])
	if item.Text == "" {
		item.Text = defaultText[f.Type]
	}
	if item.Text == "" {
		item.Text = "New notification"
	}

	var top map[string]json.RawMessage
	_ = json.Unmarshal(data, &top)
	item.TargetID = firstInt(payload, targetKeys)
	if item.TargetID == 0 {
		item.TargetID = firstInt(top, targetKeys)
	}
	return item, nil
}

func firstString(candidates ...json.RawMessage) string {
	for _, raw := range candidates {
		if len(raw) == 0 {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func firstInt(m map[string]json.RawMessage, keys []string) int {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var n int
		if json.Unmarshal(raw, &n) == nil && n > 0 {
			return n
		}
	}
	return 0
}
