package api

import (
	"time"

	"grievance-chat/internal/chat"
)

type Status string

const (
	StatusSubmitted   Status = "SUBMITTED"
	StatusInReview    Status = "IN_REVIEW"
	StatusActionTaken Status = "ACTION_TAKEN"
	StatusResolved    Status = "RESOLVED"
)

// Statuses lists the values UpdateStatus accepts, in workflow order.
var Statuses = []Status{StatusSubmitted, StatusInReview, StatusActionTaken, StatusResolved}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// StatusFilter narrows the grievance list. The backend reads it from ?status_filter=.
type StatusFilter string

const (
	FilterInProgress StatusFilter = "in_progress"
	FilterResolved   StatusFilter = "resolved"
)

func (f StatusFilter) Valid() bool {
	return f == FilterInProgress || f == FilterResolved
}

// Stats is the staff dashboard summary. Pending counts everything not resolved.
type Stats struct {
	Total    int `json:"total_grievances"`
	Pending  int `json:"pending_grievances"`
	Resolved int `json:"resolved_grievances"`
}

// ChatAccepted is the chat_status that makes a grievance show up in the inbox.
const ChatAccepted = "ACCEPTED"

type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	ProfileImage string `json:"profile_image,omitempty"`
}

// Roles lists the values staff may assign.
var Roles = []string{"student", "grievance_cell", "admin"}

func ValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (u User) ChatUser() chat.User {
	return chat.User{ID: u.ID, Name: u.Name, ProfileImage: u.ProfileImage}
}

type Comment struct {
	ID        int       `json:"id"`
	User      User      `json:"user"`
	Text      string    `json:"comment_text"`
	Timestamp time.Time `json:"timestamp"`
}

type Grievance struct {
	ID           int            `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Status       Status         `json:"status"`
	ChatStatus   string         `json:"chat_status,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	SubmittedBy  *User          `json:"submitted_by"`
	AssignedTo   *User          `json:"assigned_to"`
	Comments     []Comment      `json:"comments"`
	ChatMessages []chat.Message `json:"chat_messages,omitempty"`
}

// Conversation projects an accepted grievance into a chat thread as seen by selfID.
// The participant is the submitter unless that is us, then the assignee.
func (g Grievance) Conversation(selfID int) chat.Conversation {
	var participant chat.User
	switch {
	case g.SubmittedBy != nil && g.SubmittedBy.ID != selfID:
		participant = g.SubmittedBy.ChatUser()
	case g.AssignedTo != nil:
		participant = g.AssignedTo.ChatUser()
	default:
		participant = chat.User{Name: "Grievance Cell"}
	}
	return chat.Conversation{
		ID:          g.ID,
		Title:       g.Title,
		Participant: participant,
		History:     append([]chat.Message(nil), g.ChatMessages...),
	}
}

// TokenPair is the response of the token endpoints. Refresh may be empty on refresh.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}
