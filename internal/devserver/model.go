package devserver

import (
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("devserver: not found")
	ErrDuplicate = errors.New("devserver: already exists")
)

const (
	RoleAdmin         = "admin"
	RoleGrievanceCell = "grievance_cell"
	RoleStudent       = "student"

	StatusSubmitted   = "SUBMITTED"
	StatusInReview    = "IN_REVIEW"
	StatusActionTaken = "ACTION_TAKEN"
	StatusResolved    = "RESOLVED"

	ChatPending  = "PENDING"
	ChatAccepted = "ACCEPTED"
)

func validStatus(s string) bool {
	switch s {
	case StatusSubmitted, StatusInReview, StatusActionTaken, StatusResolved:
		return true
	}
	return false
}

type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	ProfileImage string `json:"profile_image,omitempty"`
	Password     string `json:"-"`
}

func (u User) Privileged() bool {
	return u.Role == RoleAdmin || u.Role == RoleGrievanceCell
}

// DisplayName falls back to the username like the portal's message payload does.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// Sender is the user object embedded in chat payloads.
type Sender struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	ProfileImage *string `json:"profile_image"`
}

func (u User) Sender() Sender {
	s := Sender{ID: u.ID, Name: u.DisplayName()}
	if u.ProfileImage != "" {
		img := u.ProfileImage
		s.ProfileImage = &img
	}
	return s
}

type Comment struct {
	ID        int       `json:"id"`
	User      User      `json:"user"`
	Text      string    `json:"comment_text"`
	Timestamp time.Time `json:"timestamp"`
}

type ChatMessage struct {
	ID        int       `json:"id"`
	User      Sender    `json:"user"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type Grievance struct {
	ID           int           `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Status       string        `json:"status"`
	ChatStatus   string        `json:"chat_status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	SubmittedBy  User          `json:"submitted_by"`
	AssignedTo   *User         `json:"assigned_to"`
	Comments     []Comment     `json:"comments"`
	ChatMessages []ChatMessage `json:"chat_messages"`
}

// VisibleTo mirrors the chat permission: the owner or any staff member.
func (g Grievance) VisibleTo(u User) bool {
	return u.Privileged() || g.SubmittedBy.ID == u.ID
}
