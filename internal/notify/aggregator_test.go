package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grievance-chat/internal/observability"
	"grievance-chat/internal/ws"
)

// pushServer accepts notification sockets and lets tests write frames to the latest one.
type pushServer struct {
	srv *httptest.Server

	mu    sync.Mutex
	conn  *websocket.Conn
	paths []string
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	ps := &pushServer{}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	ps.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ps.mu.Lock()
		ps.conn = conn
		ps.paths = append(ps.paths, r.URL.Path)
		ps.mu.Unlock()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ps.srv.Close)
	return ps
}

// waitConn blocks until the server side of the handshake has registered the socket.
func (ps *pushServer) waitConn(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		ps.mu.Lock()
		defer ps.mu.Unlock()
		return len(ps.paths) >= n
	}, 2*time.Second, 5*time.Millisecond)
}

func (ps *pushServer) push(t *testing.T, frame string) {
	t.Helper()
	ps.mu.Lock()
	defer ps.mu.Unlock()
	require.NotNil(t, ps.conn)
	require.NoError(t, ps.conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func (ps *pushServer) lastPath() string {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if len(ps.paths) == 0 {
		return ""
	}
	return ps.paths[len(ps.paths)-1]
}

func TestStartRequiresToken(t *testing.T) {
	t.Parallel()

	a := NewAggregator(Config{BaseURL: "http://localhost:1", Logger: observability.Discard()})
	assert.ErrorIs(t, a.Start(context.Background(), " "), ErrMissingToken)
	assert.Equal(t, ws.StateIdle, a.State())
}

func TestAcknowledgeClearsEverything(t *testing.T) {
	t.Parallel()

	ps := newPushServer(t)
	a := NewAggregator(Config{BaseURL: ps.srv.URL, Logger: observability.Discard()})
	require.NoError(t, a.Start(context.Background(), "tok"))
	t.Cleanup(a.Stop)
	ps.waitConn(t, 1)
	assert.Equal(t, "/ws/notifications/", ps.lastPath())

	ps.push(t, `{"type":"new_comment","payload":{"grievance_id":1}}`)
	ps.push(t, `{"type":"grievance_status_update","payload":{"grievance_id":2}}`)
	ps.push(t, `{"type":"new_comment","payload":{"grievance_id":3}}`)
	require.Eventually(t, func() bool { return a.Unseen() == 3 }, 2*time.Second, 10*time.Millisecond)

	items := a.Items()
	require.Len(t, items, 3)
	assert.Equal(t, 3, items[0].TargetID, "newest first")

	a.Acknowledge(2)
	assert.Zero(t, a.Unseen())
	assert.Empty(t, a.Items())
}

func TestQueueIsCappedButCounterIsNot(t *testing.T) {
	t.Parallel()

	ps := newPushServer(t)
	var mu sync.Mutex
	var last int
	a := NewAggregator(Config{
		BaseURL:  ps.srv.URL,
		MaxItems: 2,
		Logger:   observability.Discard(),
		OnEvent: func(_ Item, unseen int) {
			mu.Lock()
			last = unseen
			mu.Unlock()
		},
	})
	require.NoError(t, a.Start(context.Background(), "tok"))
	t.Cleanup(a.Stop)
	ps.waitConn(t, 1)

	for i := 1; i <= 5; i++ {
		ps.push(t, fmt.Sprintf(`{"type":"new_grievance","grievance_id":%d}`, i))
	}
	ps.push(t, `garbage`)
	require.Eventually(t, func() bool { return a.Unseen() == 5 }, 2*time.Second, 10*time.Millisecond)

	items := a.Items()
	require.Len(t, items, 2)
	assert.Equal(t, []int{5, 4}, []int{items[0].TargetID, items[1].TargetID})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, last)
}

func TestAdminChannelAndStop(t *testing.T) {
	t.Parallel()

	ps := newPushServer(t)
	a := NewAggregator(Config{BaseURL: ps.srv.URL, Admin: true, Logger: observability.Discard()})
	require.NoError(t, a.Start(context.Background(), "tok"))
	ps.waitConn(t, 1)
	assert.Equal(t, "/ws/notifications/admin/", ps.lastPath())
	assert.Equal(t, ws.StateOpen, a.State())

	a.Stop()
	a.Stop()
	assert.Equal(t, ws.StateClosed, a.State())
}

func TestUndecodableFramesLeaveCountAlone(t *testing.T) {
	t.Parallel()

	ps := newPushServer(t)
	a := NewAggregator(Config{BaseURL: ps.srv.URL, Logger: observability.Discard()})
	require.NoError(t, a.Start(context.Background(), "tok"))
	t.Cleanup(a.Stop)
	ps.waitConn(t, 1)

	ps.push(t, `not json`)
	ps.push(t, `{"message":"no type"}`)
	ps.push(t, `{"type":"  ","payload":{"grievance_id":9}}`)
	// A valid frame behind the bad ones proves they were read and dropped.
	ps.push(t, `{"type":"new_comment","payload":{"grievance_id":1}}`)

	require.Eventually(t, func() bool { return len(a.Items()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, a.Unseen())
	assert.Equal(t, 1, a.Items()[0].TargetID)
	assert.Equal(t, ws.StateOpen, a.State())
}

func TestRestartReplacesChannelAndKeepsCounts(t *testing.T) {
	t.Parallel()

	ps := newPushServer(t)
	a := NewAggregator(Config{BaseURL: ps.srv.URL, Logger: observability.Discard()})
	require.NoError(t, a.Start(context.Background(), "tok"))
	t.Cleanup(a.Stop)
	ps.waitConn(t, 1)

	ps.push(t, `{"type":"new_comment","payload":{"grievance_id":1}}`)
	require.Eventually(t, func() bool { return a.Unseen() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Start(context.Background(), "tok"))
	ps.waitConn(t, 2)
	assert.Equal(t, ws.StateOpen, a.State())

	ps.push(t, `{"type":"grievance_status_update","payload":{"grievance_id":2}}`)
	require.Eventually(t, func() bool { return a.Unseen() == 2 }, 2*time.Second, 10*time.Millisecond)

	items := a.Items()
	require.Len(t, items, 2)
	assert.Equal(t, []int{2, 1}, []int{items[0].TargetID, items[1].TargetID})
	assert.Equal(t, ws.StateOpen, a.State())
}
