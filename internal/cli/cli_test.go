package cli

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grievance-chat/internal/api"
	"grievance-chat/internal/devserver"
	"grievance-chat/internal/observability"
	"grievance-chat/internal/session"
)

type portal struct {
	url  string
	repo *devserver.MemoryRepository
}

// startPortal runs a dev backend and points the CLI at it through the
// environment, with HOME and the working directory isolated per test.
func startPortal(t *testing.T) *portal {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := observability.Discard()
	repo := devserver.NewMemoryRepository()
	auth := devserver.NewAuth(repo, "cli-test")
	_, err := devserver.Seed(ctx, auth, devserver.DemoUsers)
	require.NoError(t, err)
	hub := devserver.NewHub(devserver.NewLocalBroker(), log)
	go hub.Run(ctx)

	srv := httptest.NewServer(devserver.NewServer(repo, auth, hub, log, devserver.Config{}).Router())
	t.Cleanup(srv.Close)

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(home)
	t.Setenv("GRIEVANCE_API_URL", srv.URL)
	t.Setenv("GRIEVANCE_LOG_LEVEL", "error")
	return &portal{url: srv.URL, repo: repo}
}

// client signs a user in directly against the portal, outside the CLI.
func (p *portal) client(t *testing.T, username, password string) (*session.Session, *api.Client) {
	t.Helper()
	sess := session.New(nil)
	c, err := api.New(p.url, sess, api.Options{Logger: observability.Discard()})
	require.NoError(t, err)
	pair, err := c.Login(context.Background(), username, password)
	require.NoError(t, err)
	_, err = sess.Login(context.Background(), session.Tokens{Access: pair.Access, Refresh: pair.Refresh})
	require.NoError(t, err)
	return sess, c
}

func executeCLI(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	cmd, cleanup := newRootCmd()
	out := &lockedBuffer{}
	cmd.SetArgs(args)
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	cmd.SetIn(stdin)
	cmd.SetOut(out)
	cmd.SetErr(out)
	err := cmd.ExecuteContext(context.Background())
	require.NoError(t, cleanup())
	return out.String(), err
}

// lockedBuffer lets a test poll output while a command is still running.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLoginWhoamiLogout(t *testing.T) {
	startPortal(t)

	_, err := executeCLI(t, nil, "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)

	_, err = executeCLI(t, nil, "login", "-u", "21CS042", "-p", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No active account found")

	out, err := executeCLI(t, strings.NewReader("student123\n"), "login", "-u", "21CS042")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as Asha Rao (student)")

	out, err = executeCLI(t, nil, "whoami", "--refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Asha Rao (21CS042)")
	assert.Contains(t, out, "role: student")
	assert.NotContains(t, out, "staff: yes")

	out, err = executeCLI(t, nil, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	_, err = executeCLI(t, nil, "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestUnknownSessionBackend(t *testing.T) {
	startPortal(t)

	_, err := executeCLI(t, nil, "whoami", "--session-backend", "floppy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floppy")
}

func TestGrievanceCommands(t *testing.T) {
	p := startPortal(t)
	_, student := p.client(t, "21CS077", "student123")
	g, err := student.CreateGrievance(context.Background(), "Broken fan", "Room 204 fan does not turn on.")
	require.NoError(t, err)
	id := strconv.Itoa(g.ID)

	_, err = executeCLI(t, nil, "login", "-u", "cell", "-p", "cell123")
	require.NoError(t, err)

	out, err := executeCLI(t, nil, "grievances", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Broken fan")
	assert.Contains(t, out, "chat:PENDING")

	out, err = executeCLI(t, nil, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "staff: yes")

	out, err = executeCLI(t, nil, "grievances", "status", id, "in_review")
	require.NoError(t, err)
	assert.Contains(t, out, "#"+id+" is now IN_REVIEW")

	_, err = executeCLI(t, nil, "grievances", "status", id, "DONE")
	assert.ErrorContains(t, err, `unknown status "DONE"`)

	out, err = executeCLI(t, nil, "grievances", "comment", id, "Technician", "booked")
	require.NoError(t, err)
	assert.Contains(t, out, "Comment added to #"+id)

	out, err = executeCLI(t, nil, "conversations")
	require.NoError(t, err)
	assert.Contains(t, out, "No accepted chats.")

	out, err = executeCLI(t, nil, "grievances", "accept-chat", "#"+id)
	require.NoError(t, err)
	assert.Contains(t, out, "Chat on #"+id+" accepted")

	out, err = executeCLI(t, nil, "conversations")
	require.NoError(t, err)
	assert.Contains(t, out, "conversations: 1")
	assert.Contains(t, out, "Ravi Kumar")

	out, err = executeCLI(t, nil, "grievances", "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, "status: IN_REVIEW")
	assert.Contains(t, out, "Technician booked")

	_, err = executeCLI(t, nil, "grievances", "show", "abc")
	assert.ErrorContains(t, err, `invalid id "abc"`)
	_, err = executeCLI(t, nil, "grievances", "show", "4242")
	assert.ErrorContains(t, err, "Not found.")
}

func TestChatCommand(t *testing.T) {
	p := startPortal(t)
	_, student := p.client(t, "21CS042", "student123")
	_, staff := p.client(t, "cell", "cell123")
	ctx := context.Background()
	g, err := student.CreateGrievance(ctx, "Scholarship delay", "Not credited yet.")
	require.NoError(t, err)
	id := strconv.Itoa(g.ID)

	_, err = executeCLI(t, nil, "login", "-u", "21CS042", "-p", "student123")
	require.NoError(t, err)

	_, err = executeCLI(t, nil, "chat", id)
	assert.ErrorContains(t, err, "no accepted chat for grievance #"+id)

	require.NoError(t, staff.AcceptChat(ctx, g.ID))

	stdin, input := io.Pipe()
	cmd, cleanup := newRootCmd()
	out := &lockedBuffer{}
	cmd.SetArgs([]string{"chat", id, "--width", "60"})
	cmd.SetIn(stdin)
	cmd.SetOut(out)
	cmd.SetErr(out)

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "No messages yet") }, 3*time.Second, 10*time.Millisecond)
	_, err = io.WriteString(input, "ping-from-cli\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "ping-from-cli") }, 3*time.Second, 10*time.Millisecond)

	_, err = io.WriteString(input, "/quit\n")
	require.NoError(t, err)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("chat did not exit on /quit")
	}
	input.Close()
	require.NoError(t, cleanup())

	text := out.String()
	assert.Contains(t, text, "#"+id+" Scholarship delay")
	assert.Contains(t, text, "with Grievance Cell")
	assert.Contains(t, text, "You")

	stored, err := p.repo.Grievance(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, stored.ChatMessages, 1)
	assert.Equal(t, "ping-from-cli", stored.ChatMessages[0].Message)
}

func TestChatStaysInLoopWhenChannelUnavailable(t *testing.T) {
	p := startPortal(t)
	_, student := p.client(t, "21CS042", "student123")
	_, staff := p.client(t, "cell", "cell123")
	ctx := context.Background()
	g, err := student.CreateGrievance(ctx, "Hostel water", "No water since Monday.")
	require.NoError(t, err)
	require.NoError(t, staff.AcceptChat(ctx, g.ID))

	_, err = executeCLI(t, nil, "login", "-u", "21CS042", "-p", "student123")
	require.NoError(t, err)

	// Nothing listens here, so only the realtime dial fails.
	t.Setenv("GRIEVANCE_WS_URL", "ws://127.0.0.1:1")
	out, err := executeCLI(t, strings.NewReader("hello?\n/quit\n"), "chat", strconv.Itoa(g.ID))
	require.NoError(t, err)
	assert.Contains(t, out, "#"+strconv.Itoa(g.ID)+" Hostel water")
	assert.Equal(t, 2, strings.Count(out, "Cannot send message. Connection not available."))

	stored, err := p.repo.Grievance(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ChatMessages)
}

func TestNotificationsCommand(t *testing.T) {
	p := startPortal(t)
	_, student := p.client(t, "21CS042", "student123")
	ctx := context.Background()

	_, err := executeCLI(t, nil, "login", "-u", "cell", "-p", "cell123")
	require.NoError(t, err)

	stdin, input := io.Pipe()
	cmd, cleanup := newRootCmd()
	out := &lockedBuffer{}
	cmd.SetArgs([]string{"notifications"})
	cmd.SetIn(stdin)
	cmd.SetOut(out)
	cmd.SetErr(out)

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "Listening for notifications as Grievance Cell") }, 3*time.Second, 10*time.Millisecond)

	// The listener registers asynchronously; keep filing until one lands.
	require.Eventually(t, func() bool {
		if _, err := student.CreateGrievance(ctx, "Parking", "No bike stands."); err != nil {
			return false
		}
		return strings.Contains(out.String(), "New grievance from Asha Rao: Parking")
	}, 3*time.Second, 50*time.Millisecond)

	_, err = io.WriteString(input, "ack 1\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "Notifications cleared") }, 3*time.Second, 10*time.Millisecond)

	_, err = io.WriteString(input, "bogus\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "commands: ack <id>, list, count, /quit") }, 3*time.Second, 10*time.Millisecond)

	_, err = io.WriteString(input, "/quit\n")
	require.NoError(t, err)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("notifications did not exit on /quit")
	}
	input.Close()
	require.NoError(t, cleanup())
}

func TestNotificationsForDuration(t *testing.T) {
	startPortal(t)

	_, err := executeCLI(t, nil, "login", "-u", "21CS077", "-p", "student123")
	require.NoError(t, err)

	out, err := executeCLI(t, nil, "notifications", "--for", "200ms")
	require.NoError(t, err)
	assert.Contains(t, out, "Listening for notifications as Ravi Kumar")
	assert.Contains(t, out, "unseen: 0")
}

func TestStaffCommands(t *testing.T) {
	p := startPortal(t)
	_, student := p.client(t, "21CS077", "student123")
	ctx := context.Background()
	open, err := student.CreateGrievance(ctx, "Broken fan", "Room 204.")
	require.NoError(t, err)
	done, err := student.CreateGrievance(ctx, "Library card", "Card not issued.")
	require.NoError(t, err)

	_, err = executeCLI(t, nil, "login", "-u", "admin", "-p", "admin123")
	require.NoError(t, err)
	_, err = executeCLI(t, nil, "grievances", "status", strconv.Itoa(open.ID), "IN_REVIEW")
	require.NoError(t, err)
	_, err = executeCLI(t, nil, "grievances", "status", strconv.Itoa(done.ID), "RESOLVED")
	require.NoError(t, err)

	out, err := executeCLI(t, nil, "grievances", "list", "--status", "resolved")
	require.NoError(t, err)
	assert.Contains(t, out, "Library card")
	assert.NotContains(t, out, "Broken fan")

	out, err = executeCLI(t, nil, "grievances", "list", "--status", "IN_PROGRESS")
	require.NoError(t, err)
	assert.Contains(t, out, "Broken fan")
	assert.NotContains(t, out, "Library card")

	_, err = executeCLI(t, nil, "grievances", "list", "--status", "open")
	assert.ErrorContains(t, err, `unknown status filter "open"`)

	out, err = executeCLI(t, nil, "grievances", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "total: 2  pending: 1  resolved: 1")

	out, err = executeCLI(t, strings.NewReader("welcome123\n"), "users", "add",
		"--admission-number", "22EE010", "--name", "Meera Iyer", "--role", "grievance_cell")
	require.NoError(t, err)
	assert.Contains(t, out, "Created 22EE010")

	out, err = executeCLI(t, nil, "users", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Meera Iyer")
	assert.Contains(t, out, "users: 5")

	out, err = executeCLI(t, nil, "users", "cell-members")
	require.NoError(t, err)
	assert.Contains(t, out, "users: 2")

	created, err := p.repo.UserByUsername(ctx, "22EE010")
	require.NoError(t, err)
	out, err = executeCLI(t, nil, "users", "role", strconv.Itoa(created.ID), "student")
	require.NoError(t, err)
	assert.Contains(t, out, "22EE010 is now student")

	_, err = executeCLI(t, nil, "users", "role", strconv.Itoa(created.ID), "dean")
	assert.ErrorContains(t, err, `unknown role "dean"`)

	// Students are turned away by the portal, not the CLI.
	_, err = executeCLI(t, nil, "login", "-u", "21CS077", "-p", "student123")
	require.NoError(t, err)
	_, err = executeCLI(t, nil, "users", "list")
	assert.ErrorContains(t, err, "You do not have permission to perform this action.")
}

func TestPasswordCommand(t *testing.T) {
	startPortal(t)

	_, err := executeCLI(t, nil, "login", "-u", "21CS042", "-p", "student123")
	require.NoError(t, err)

	_, err = executeCLI(t, strings.NewReader("wrong\nlonger-secret\n"), "password")
	assert.ErrorContains(t, err, "old_password: Wrong password.")

	out, err := executeCLI(t, nil, "password", "--current", "student123", "--new", "longer-secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Password updated successfully")

	_, err = executeCLI(t, nil, "login", "-u", "21CS042", "-p", "student123")
	assert.Error(t, err)
	_, err = executeCLI(t, nil, "login", "-u", "21CS042", "-p", "longer-secret")
	assert.NoError(t, err)
}

func TestAssistantCommand(t *testing.T) {
	p := startPortal(t)

	out, err := executeCLI(t, strings.NewReader("what about status?\nsubmit grievance\nFees\nReceipt missing\nyes\n"), "assistant", "--delay", "1ms")
	require.NoError(t, err)
	assert.Contains(t, out, "Assistant Hello!")
	assert.Contains(t, out, "check the status")
	assert.Contains(t, out, "You must be logged in to submit a grievance.")

	_, err = executeCLI(t, nil, "login", "-u", "21CS042", "-p", "student123")
	require.NoError(t, err)
	out, err = executeCLI(t, strings.NewReader("submit grievance\nCanteen hygiene\nTables are dirty.\nyes\n/quit\n"), "assistant", "--delay", "1ms")
	require.NoError(t, err)
	assert.Contains(t, out, "Title: Canteen hygiene")
	assert.Contains(t, out, "Your grievance has been successfully submitted!")

	list, err := p.repo.Grievances(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Canteen hygiene", list[0].Title)
	assert.Equal(t, "Tables are dirty.", list[0].Description)
}

func TestParseID(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "12", want: 12},
		{in: "#7", want: 7},
		{in: " 3 ", want: 3},
		{in: "0", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "x", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseID(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
