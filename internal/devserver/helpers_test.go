package devserver

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"grievance-chat/internal/api"
	"grievance-chat/internal/observability"
	"grievance-chat/internal/session"
)

type testEnv struct {
	srv   *httptest.Server
	repo  *MemoryRepository
	auth  *Auth
	users map[string]User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := observability.Discard()
	repo := NewMemoryRepository()
	auth := NewAuth(repo, "test-secret")
	users, err := Seed(ctx, auth, DemoUsers)
	require.NoError(t, err)

	hub := NewHub(NewLocalBroker(), log)
	go hub.Run(ctx)

	srv := httptest.NewServer(NewServer(repo, auth, hub, log, Config{}).Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, repo: repo, auth: auth, users: users}
}

// login signs a seeded user in and returns a session plus a client bound to it.
func (e *testEnv) login(t *testing.T, username, password string) (*session.Session, *api.Client) {
	t.Helper()
	sess := session.New(session.NewMemoryStore())
	client, err := api.New(e.srv.URL, sess, api.Options{Logger: observability.Discard()})
	require.NoError(t, err)

	pair, err := client.Login(context.Background(), username, password)
	require.NoError(t, err)
	_, err = sess.Login(context.Background(), session.Tokens{Access: pair.Access, Refresh: pair.Refresh})
	require.NoError(t, err)
	return sess, client
}
