package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grievance-chat/internal/apierr"
	"grievance-chat/internal/observability"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func newTestClient(t *testing.T, h http.HandlerFunc, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, staticToken(token), Options{Logger: observability.Discard()})
	require.NoError(t, err)
	return c
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "ftp://x", "localhost:8000", "http://"} {
		_, err := New(raw, nil, Options{})
		assert.ErrorIs(t, err, ErrBadBaseURL, raw)
	}
}

func TestBearerHeaderAndLogin(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/token/":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Empty(t, r.Header.Get("Authorization"))
			var in map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, "21CS042", in["username"])
			_, _ = io.WriteString(w, `{"access":"a1","refresh":"r1"}`)
		case "/api/users/me/":
			assert.Equal(t, "Bearer a1", r.Header.Get("Authorization"))
			_, _ = io.WriteString(w, `{"id":7,"username":"21CS042","name":"Asha","role":"student"}`)
		default:
			http.NotFound(w, r)
		}
	}, "")

	pair, err := c.Login(context.Background(), "21CS042", "pw")
	require.NoError(t, err)
	assert.Equal(t, TokenPair{Access: "a1", Refresh: "r1"}, pair)

	authed, err := New(c.BaseURL(), staticToken("a1"), Options{Logger: observability.Discard()})
	require.NoError(t, err)
	me, err := authed.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Asha", me.Name)
}

func TestRefreshKeepsOldRefreshToken(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"access":"a2"}`)
	}, "")
	pair, err := c.Refresh(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, TokenPair{Access: "a2", Refresh: "r1"}, pair)
}

func TestErrorsAreNormalized(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"No active account found with the given credentials"}`)
	}, "")

	_, err := c.Login(context.Background(), "x", "y")
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Unauthorized())
	assert.Equal(t, "No active account found with the given credentials", apierr.Message(err))
}

func TestChatConversationsFiltersAndProjects(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/grievances/", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `[
			{"id":1,"title":"Hostel water","status":"IN_REVIEW","chat_status":"ACCEPTED",
			 "submitted_by":{"id":7,"name":"Asha"},"assigned_to":{"id":2,"name":"Cell"},
			 "chat_messages":[{"id":11,"user":{"id":2,"name":"Cell"},"message":"hello","timestamp":"2026-01-02T10:00:00Z"}]},
			{"id":2,"title":"Library","status":"SUBMITTED","chat_status":"PENDING","submitted_by":{"id":7,"name":"Asha"}},
			{"id":3,"title":"Fees","status":"SUBMITTED","chat_status":"ACCEPTED","submitted_by":{"id":9,"name":"Ravi"}},
			{"id":4,"title":"Canteen","status":"SUBMITTED","chat_status":"ACCEPTED","submitted_by":{"id":7,"name":"Asha"}}
		]`)
	}, "tok")

	convs, err := c.ChatConversations(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, convs, 3)

	assert.Equal(t, 1, convs[0].ID)
	assert.Equal(t, "Cell", convs[0].Participant.Name, "self submitted, so the assignee is the peer")
	require.Len(t, convs[0].History, 1)
	assert.Equal(t, "hello", convs[0].History[0].Body)

	assert.Equal(t, "Ravi", convs[1].Participant.Name)
	assert.Equal(t, "Grievance Cell", convs[2].Participant.Name)
}

func TestMutations(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		calls []string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()
		body, _ := io.ReadAll(r.Body)
		switch r.URL.Path {
		case "/api/grievances/5/add_comment/":
			assert.JSONEq(t, `{"comment_text":"on it"}`, string(body))
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"id":1,"comment_text":"on it","user":{"id":2}}`)
		case "/api/grievances/5/update_status/":
			assert.JSONEq(t, `{"status":"RESOLVED"}`, string(body))
			_, _ = io.WriteString(w, `{"id":5,"status":"RESOLVED"}`)
		case "/api/grievances/5/accept/":
			w.WriteHeader(http.StatusNoContent)
		}
	}, "tok")

	ctx := context.Background()
	comment, err := c.AddComment(ctx, 5, "  on it ")
	require.NoError(t, err)
	assert.Equal(t, "on it", comment.Text)

	g, err := c.UpdateStatus(ctx, 5, StatusResolved)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, g.Status)

	require.NoError(t, c.AcceptChat(ctx, 5))

	_, err = c.AddComment(ctx, 5, " ")
	assert.ErrorIs(t, err, ErrEmptyComment)
	_, err = c.UpdateStatus(ctx, 5, "DONE")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"POST /api/grievances/5/add_comment/",
		"PATCH /api/grievances/5/update_status/",
		"POST /api/grievances/5/accept/",
	}, calls)
}

func TestStaffReads(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/grievances/":
			assert.Equal(t, "resolved", r.URL.Query().Get("status_filter"))
			_, _ = io.WriteString(w, `[{"id":3,"title":"Fees","status":"RESOLVED"}]`)
		case "/api/grievances/stats/":
			_, _ = io.WriteString(w, `{"total_grievances":5,"pending_grievances":3,"resolved_grievances":2}`)
		case "/api/users/":
			_, _ = io.WriteString(w, `[{"id":1,"username":"admin","role":"admin"},{"id":2,"username":"cell","role":"grievance_cell"}]`)
		case "/api/users/grievance-cell-members/":
			_, _ = io.WriteString(w, `[{"id":2,"username":"cell","role":"grievance_cell"}]`)
		default:
			http.NotFound(w, r)
		}
	}, "tok")
	ctx := context.Background()

	list, err := c.GrievancesByStatus(ctx, FilterResolved)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, StatusResolved, list[0].Status)

	_, err = c.GrievancesByStatus(ctx, "open")
	assert.ErrorIs(t, err, ErrInvalidFilter)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 5, Pending: 3, Resolved: 2}, stats)

	users, err := c.Users(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	members, err := c.GrievanceCellMembers(ctx)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "cell", members[0].Username)
}

func TestAccountMutations(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch r.Method + " " + r.URL.Path {
		case "PUT /api/change-password/":
			assert.JSONEq(t, `{"old_password":"old","new_password":"new-secret"}`, string(body))
			_, _ = io.WriteString(w, `{"message":"Password updated successfully"}`)
		case "POST /api/users/":
			assert.JSONEq(t, `{"name":"Ravi","admission_number":"22EE001","role":"student","password":"longenough"}`, string(body))
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"id":9,"username":"22EE001","name":"Ravi","role":"student"}`)
		case "PATCH /api/users/9/change_role/":
			assert.JSONEq(t, `{"role":"grievance_cell"}`, string(body))
			_, _ = io.WriteString(w, `{"id":9,"username":"22EE001","role":"grievance_cell"}`)
		default:
			http.NotFound(w, r)
		}
	}, "tok")
	ctx := context.Background()

	msg, err := c.ChangePassword(ctx, "old", "new-secret")
	require.NoError(t, err)
	assert.Equal(t, "Password updated successfully", msg)

	u, err := c.CreateUser(ctx, NewUser{Name: "Ravi", AdmissionNumber: "22EE001", Role: "student", Password: "longenough"})
	require.NoError(t, err)
	assert.Equal(t, 9, u.ID)

	u, err = c.ChangeRole(ctx, 9, "grievance_cell")
	require.NoError(t, err)
	assert.Equal(t, "grievance_cell", u.Role)

	_, err = c.ChangeRole(ctx, 9, "dean")
	assert.ErrorIs(t, err, ErrInvalidRole)
	_, err = c.CreateUser(ctx, NewUser{AdmissionNumber: "x", Role: ""})
	assert.ErrorIs(t, err, ErrInvalidRole)
}
