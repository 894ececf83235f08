package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"grievance-chat/internal/chat"
)

var (
	ErrEmptyComment  = errors.New("api: comment text is required")
	ErrInvalidStatus = errors.New("api: unknown grievance status")
	ErrInvalidFilter = errors.New("api: unknown status filter")
	ErrInvalidRole   = errors.New("api: unknown role")
)

func (c *Client) Login(ctx context.Context, username, password string) (TokenPair, error) {
	var out TokenPair
	in := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/token/", in, &out); err != nil {
		return TokenPair{}, err
	}
	return out, nil
}

// Refresh exchanges a refresh token. The backend may omit a rotated refresh token,
// in which case the old one is returned unchanged.
func (c *Client) Refresh(ctx context.Context, refresh string) (TokenPair, error) {
	var out TokenPair
	if err := c.do(ctx, http.MethodPost, "/api/token/refresh/", map[string]string{"refresh": refresh}, &out); err != nil {
		return TokenPair{}, err
	}
	if out.Refresh == "" {
		out.Refresh = refresh
	}
	return out, nil
}

// Registration is the student sign-up form. Admission numbers double as usernames.
type Registration struct {
	Name            string `json:"name"`
	AdmissionNumber string `json:"admission_number"`
	Password        string `json:"password"`
	Password2       string `json:"password2"`
}

func (c *Client) Register(ctx context.Context, reg Registration) (User, error) {
	var out User
	if err := c.do(ctx, http.MethodPost, "/api/register/", reg, &out); err != nil {
		return User{}, err
	}
	return out, nil
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, "/api/users/me/", nil, &out); err != nil {
		return User{}, err
	}
	return out, nil
}

// Grievances lists what the caller may see: their own, or all of them for staff.
func (c *Client) Grievances(ctx context.Context) ([]Grievance, error) {
	var out []Grievance
	if err := c.do(ctx, http.MethodGet, "/api/grievances/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GrievancesByStatus is the staff in-progress or resolved list.
func (c *Client) GrievancesByStatus(ctx context.Context, filter StatusFilter) ([]Grievance, error) {
	if !filter.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFilter, filter)
	}
	var out []Grievance
	path := "/api/grievances/?" + url.Values{"status_filter": {string(filter)}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	if err := c.do(ctx, http.MethodGet, "/api/grievances/stats/", nil, &out); err != nil {
		return Stats{}, err
	}
	return out, nil
}

func (c *Client) CreateGrievance(ctx context.Context, title, description string) (Grievance, error) {
	var out Grievance
	in := map[string]string{"title": title, "description": description}
	if err := c.do(ctx, http.MethodPost, "/api/grievances/", in, &out); err != nil {
		return Grievance{}, err
	}
	return out, nil
}

func (c *Client) Grievance(ctx context.Context, id int) (Grievance, error) {
	var out Grievance
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/grievances/%d/", id), nil, &out); err != nil {
		return Grievance{}, err
	}
	return out, nil
}

// ChatConversations is the inbox: grievances whose chat was accepted, as
// threads seen by selfID with their history ready to seed a store.
func (c *Client) ChatConversations(ctx context.Context, selfID int) ([]chat.Conversation, error) {
	all, err := c.Grievances(ctx)
	if err != nil {
		return nil, err
	}
	var out []chat.Conversation
	for _, g := range all {
		if g.ChatStatus == ChatAccepted {
			out = append(out, g.Conversation(selfID))
		}
	}
	return out, nil
}

func (c *Client) AcceptChat(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/grievances/%d/accept/", id), struct{}{}, nil)
}

func (c *Client) AddComment(ctx context.Context, id int, text string) (Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Comment{}, ErrEmptyComment
	}
	var out Comment
	in := map[string]string{"comment_text": text}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/grievances/%d/add_comment/", id), in, &out); err != nil {
		return Comment{}, err
	}
	return out, nil
}

func (c *Client) UpdateStatus(ctx context.Context, id int, status Status) (Grievance, error) {
	if !status.Valid() {
		return Grievance{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	var out Grievance
	in := map[string]Status{"status": status}
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/grievances/%d/update_status/", id), in, &out); err != nil {
		return Grievance{}, err
	}
	return out, nil
}

// ChangePassword returns the backend's confirmation text.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	in := map[string]string{"old_password": oldPassword, "new_password": newPassword}
	if err := c.do(ctx, http.MethodPut, "/api/change-password/", in, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// NewUser is the staff "add user" form. The admission number becomes the username.
type NewUser struct {
	Name            string `json:"name"`
	AdmissionNumber string `json:"admission_number"`
	CollegeEmail    string `json:"college_email,omitempty"`
	Role            string `json:"role"`
	Password        string `json:"password"`
}

func (c *Client) Users(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.do(ctx, http.MethodGet, "/api/users/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GrievanceCellMembers(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.do(ctx, http.MethodGet, "/api/users/grievance-cell-members/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateUser(ctx context.Context, nu NewUser) (User, error) {
	if !ValidRole(nu.Role) {
		return User{}, fmt.Errorf("%w: %q", ErrInvalidRole, nu.Role)
	}
	var out User
	if err := c.do(ctx, http.MethodPost, "/api/users/", nu, &out); err != nil {
		return User{}, err
	}
	return out, nil
}

func (c *Client) ChangeRole(ctx context.Context, id int, role string) (User, error) {
	if !ValidRole(role) {
		return User{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	var out User
	in := map[string]string{"role": role}
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/users/%d/change_role/", id), in, &out); err != nil {
		return User{}, err
	}
	return out, nil
}
