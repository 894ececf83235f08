package chat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"grievance-chat/internal/observability"
)

var chatPath = regexp.MustCompile(`^/ws/chat/(\d+)/$`)

// fakeBackend speaks the chat channel contract: it accepts one socket per
// conversation, echoes sends wrapped as chat_message, and lets tests push frames.
type fakeBackend struct {
	t      *testing.T
	srv    *httptest.Server
	sender User

	mu     sync.Mutex
	conns  map[int]*websocket.Conn
	tokens []string
	dials  int
	nextID int
}

func newFakeBackend(t *testing.T, sender User) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{t: t, sender: sender, conns: make(map[int]*websocket.Conn)}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	fb.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		match := chatPath.FindStringSubmatch(r.URL.Path)
		if match == nil {
			http.NotFound(w, r)
			return
		}
		id, _ := strconv.Atoi(match[1])
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		fb.mu.Lock()
		fb.conns[id] = conn
		fb.tokens = append(fb.tokens, r.URL.Query().Get("token"))
		fb.dials++
		fb.mu.Unlock()

		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var in struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(data, &in) != nil {
				continue
			}
			fb.mu.Lock()
			fb.nextID++
			payload := map[string]any{
				"type": TypeChatMessage,
				"payload": map[string]any{
					"id":        fb.nextID,
					"user":      fb.sender,
					"message":   in.Message,
					"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
				},
			}
			err = conn.WriteJSON(payload)
			fb.mu.Unlock()
			if err != nil {
				return
			}
		}
	}))
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) baseURL() string { return fb.srv.URL }

// push writes a raw frame to the socket of conversation id.
func (fb *fakeBackend) push(id int, frame string) {
	fb.t.Helper()
	fb.mu.Lock()
	defer fb.mu.Unlock()
	conn := fb.conns[id]
	if conn == nil {
		fb.t.Fatalf("no socket for conversation %d", id)
	}
	// Writes share fb.mu with the echo loop; gorilla allows one writer at a time.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		fb.t.Fatalf("push: %v", err)
	}
}

func (fb *fakeBackend) connected(id int) bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.conns[id] != nil
}

func (fb *fakeBackend) dialCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.dials
}

type staticIdentity struct {
	token string
	id    int
}

func (s staticIdentity) Token() string { return s.token }
func (s staticIdentity) UserID() int   { return s.id }

func testConfig(base string) ManagerConfig {
	return ManagerConfig{BaseURL: base, Logger: observability.Discard()}
}
