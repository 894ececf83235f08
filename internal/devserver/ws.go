package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const saveTimeout = 5 * time.Second

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type chatFrame struct {
	Type    string      `json:"type"`
	Payload ChatMessage `json:"payload"`
}

// serveChatWs joins the caller to the grievance's room. Only the submitter
// and staff may join.
func (s *Server) serveChatWs(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	g, err := s.repo.Grievance(r.Context(), id)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	if !g.VisibleTo(u) {
		writeDetail(w, http.StatusForbidden, "You do not have permission to join this chat.")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", "err", err)
		return
	}

	client := newClient(s.hub, conn, u, g.ID)
	client.owner = g.SubmittedBy.ID
	client.onMessage = s.handleChatFrame
	if !s.hub.Register(client) {
		conn.Close()
		return
	}
	s.log.Debug("chat socket joined", "user", u.ID, "room", g.ID)

	go client.writePump()
	go client.readPump()
}

func (s *Server) serveNotificationsWs(staffOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, _ := currentUser(r)
		if staffOnly && !u.Privileged() {
			writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn("upgrade failed", "err", err)
			return
		}

		client := newClient(s.hub, conn, u, 0)
		if !s.hub.Register(client) {
			conn.Close()
			return
		}
		go client.writePump()
		go client.readPump()
	}
}

// handleChatFrame validates, persists and broadcasts one inbound chat frame.
// Failures are reported to the sender only.
func (s *Server) handleChatFrame(c *Client, data []byte) {
	var in map[string]any
	if err := json.Unmarshal(data, &in); err != nil {
		s.replyError(c, "Invalid JSON format.")
		return
	}
	text, _ := in["message"].(string)
	text = strings.TrimSpace(text)
	if text == "" {
		s.replyError(c, "Invalid message content.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	msg, err := s.repo.SaveMessage(ctx, c.room, c.user.ID, text)
	if err != nil {
		s.log.Error("save chat message", "room", c.room, "err", err)
		s.replyError(c, "Failed to save message.")
		return
	}

	payload, err := json.Marshal(chatFrame{Type: "chat_message", Payload: msg})
	if err != nil {
		s.replyError(c, "An internal error occurred while processing your message.")
		return
	}
	s.hub.Publish(ctx, Envelope{Room: c.room, Payload: payload})

	n := notice{
		Type:    "send_notification",
		Message: fmt.Sprintf("New message from %s", c.user.DisplayName()),
		Payload: map[string]any{"grievance_id": c.room, "sender_name": c.user.DisplayName()},
	}
	if c.user.Privileged() {
		if c.owner != c.user.ID {
			s.notify(ctx, []int{c.owner}, false, n)
		}
	} else {
		s.notify(ctx, nil, true, n)
	}
}

func (s *Server) replyError(c *Client, message string) {
	data, _ := json.Marshal(errorFrame{Type: "error", Message: message})
	s.hub.Reply(c, data)
}
