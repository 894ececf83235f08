// Package render turns chat entries, inbox rows and notifications into
// terminal text.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"grievance-chat/internal/api"
	"grievance-chat/internal/chat"
	"grievance-chat/internal/notify"
)

const (
	DefaultWidth = 80
	timeLayout   = "Jan 2 15:04"
)

var s = newStyles()

// Entry draws one message bubble: own messages flush right, peers flush left.
func Entry(e chat.Entry, width int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	name := s.peerName.Render(e.User.DisplayName())
	bubble, align := s.peer, lipgloss.Left
	if e.Side == chat.Own {
		name = s.ownName.Render("You")
		bubble, align = s.own, lipgloss.Right
	}

	meta := name
	if ts := stamp(e.Timestamp); ts != "" {
		meta += " " + s.muted.Render(ts)
	}
	maxBody := width * 2 / 3
	if maxBody < 10 {
		maxBody = width
	}
	block := lipgloss.JoinVertical(align, meta, bubble.MaxWidth(maxBody).Render(e.Body))
	return lipgloss.PlaceHorizontal(width, align, block)
}

func Transcript(entries []chat.Entry, width int) string {
	if len(entries) == 0 {
		return s.empty.Render("No messages yet. Say hello.")
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, Entry(e, width))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// ChatHeader names the open conversation and its channel state.
func ChatHeader(c chat.Conversation, state string) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		s.title.Render(fmt.Sprintf("#%d %s", c.ID, c.Title)),
		s.header.Render(fmt.Sprintf("with %s · %s · /quit to leave", c.Participant.DisplayName(), state)),
	)
}

func Conversations(convs []chat.Conversation) string {
	lines := []string{s.title.Render("Inbox"), s.header.Render(fmt.Sprintf("conversations: %d", len(convs)))}
	if len(convs) == 0 {
		lines = append(lines, s.empty.Render("No accepted chats."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}
	for _, c := range convs {
		last := s.muted.Render("no messages")
		if n := len(c.History); n > 0 {
			last = s.muted.Render(truncate(c.History[n-1].Body, 40))
		}
		lines = append(lines, fmt.Sprintf("%5d  %-24s %-18s %s", c.ID, truncate(c.Title, 24), truncate(c.Participant.DisplayName(), 18), last))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// Notification is one streamed line with the running badge count.
func Notification(item notify.Item, unseen int) string {
	target := ""
	if item.TargetID != 0 {
		target = s.muted.Render(fmt.Sprintf(" (#%d)", item.TargetID))
	}
	return fmt.Sprintf("%s %s %s%s", s.badge.Render(fmt.Sprintf("[%d]", unseen)), s.muted.Render(stamp(item.ReceivedAt)), item.Text, target)
}

func Grievances(list []api.Grievance) string {
	lines := []string{s.title.Render("Grievances"), s.header.Render(fmt.Sprintf("total: %d", len(list)))}
	if len(list) == 0 {
		lines = append(lines, s.empty.Render("Nothing submitted yet."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}
	for _, g := range list {
		chatState := g.ChatStatus
		if chatState == "" {
			chatState = "PENDING"
		}
		lines = append(lines, fmt.Sprintf("%5d  %-32s %s  chat:%s", g.ID, truncate(g.Title, 32), s.status.Render(fmt.Sprintf("%-12s", g.Status)), chatState))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func Grievance(g api.Grievance) string {
	submitter := "N/A"
	if g.SubmittedBy != nil {
		submitter = g.SubmittedBy.Name
	}
	assignee := "unassigned"
	if g.AssignedTo != nil {
		assignee = g.AssignedTo.Name
	}
	parts := []string{
		s.title.Render(fmt.Sprintf("#%d %s", g.ID, g.Title)),
		s.header.Render(fmt.Sprintf("status: %s · submitted by %s · assigned to %s · %s", g.Status, submitter, assignee, stamp(g.CreatedAt))),
		s.section.Render(g.Description),
	}
	if len(g.Comments) > 0 {
		comments := []string{s.title.Render("Comments")}
		for _, c := range g.Comments {
			comments = append(comments, fmt.Sprintf("%s %s  %s", s.peerName.Render(c.User.Name), s.muted.Render(stamp(c.Timestamp)), c.Text))
		}
		parts = append(parts, s.section.Render(lipgloss.JoinVertical(lipgloss.Left, comments...)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// Stats is the staff summary: totals plus a bar for the resolved share.
func Stats(st api.Stats) string {
	const barWidth = 20
	filled := 0
	if st.Total > 0 {
		filled = st.Resolved * barWidth / st.Total
	}
	bar := s.ownName.Render(strings.Repeat("#", filled)) + s.muted.Render(strings.Repeat(".", barWidth-filled))
	return lipgloss.JoinVertical(lipgloss.Left,
		s.title.Render("Grievance statistics"),
		fmt.Sprintf("total: %d  pending: %d  resolved: %d", st.Total, st.Pending, st.Resolved),
		"["+bar+"]",
	)
}

// Users lists accounts under title.
func Users(title string, users []api.User) string {
	lines := []string{s.title.Render(title), s.header.Render(fmt.Sprintf("users: %d", len(users)))}
	if len(users) == 0 {
		lines = append(lines, s.empty.Render("No users."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}
	for _, u := range users {
		lines = append(lines, fmt.Sprintf("%5d  %-16s %-24s %s", u.ID, truncate(u.Username, 16), truncate(u.Name, 24), s.status.Render(u.Role)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// Assistant is one reply from the scripted helper.
func Assistant(text string) string {
	return s.peerName.Render("Assistant") + " " + text
}

// Error renders a user-facing failure line.
func Error(msg string) string {
	return s.errText.Render(msg)
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(timeLayout)
}

func truncate(v string, n int) string {
	v = strings.ReplaceAll(strings.TrimSpace(v), "\n", " ")
	r := []rune(v)
	if len(r) <= n {
		return v
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
