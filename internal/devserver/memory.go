package devserver

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type grievanceRow struct {
	id          int
	ownerID     int
	assigneeID  int
	title       string
	description string
	status      string
	chatStatus  string
	createdAt   time.Time
	updatedAt   time.Time
}

type commentRow struct {
	id        int
	userID    int
	text      string
	timestamp time.Time
}

type messageRow struct {
	id        int
	userID    int
	body      string
	timestamp time.Time
}

type MemoryRepository struct {
	mu       sync.RWMutex
	now      func() time.Time
	users    map[int]User
	byName   map[string]int
	rows     map[int]*grievanceRow
	comments map[int][]commentRow
	messages map[int][]messageRow
	seq      int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		now:      func() time.Time { return time.Now().UTC() },
		users:    make(map[int]User),
		byName:   make(map[string]int),
		rows:     make(map[int]*grievanceRow),
		comments: make(map[int][]commentRow),
		messages: make(map[int][]messageRow),
	}
}

func (m *MemoryRepository) next() int {
	m.seq++
	return m.seq
}

func (m *MemoryRepository) CreateUser(_ context.Context, u User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(u.Username)
	if _, ok := m.byName[key]; ok {
		return User{}, ErrDuplicate
	}
	u.ID = m.next()
	m.users[u.ID] = u
	m.byName[key] = u.ID
	return u, nil
}

func (m *MemoryRepository) UserByUsername(_ context.Context, username string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byName[strings.ToLower(username)]
	if !ok {
		return User{}, ErrNotFound
	}
	return m.users[id], nil
}

func (m *MemoryRepository) UserByID(_ context.Context, id int) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryRepository) Users(_ context.Context, role string) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		if role == "" || u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepository) SetPassword(_ context.Context, id int, hashed string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Password = hashed
	m.users[id] = u
	return nil
}

func (m *MemoryRepository) SetRole(_ context.Context, id int, role string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	u.Role = role
	m.users[id] = u
	return u, nil
}

func (m *MemoryRepository) CreateGrievance(_ context.Context, ownerID int, title, description string) (Grievance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[ownerID]; !ok {
		return Grievance{}, ErrNotFound
	}
	now := m.now()
	row := &grievanceRow{
		id: m.next(), ownerID: ownerID, title: title, description: description,
		status: StatusSubmitted, chatStatus: ChatPending, createdAt: now, updatedAt: now,
	}
	m.rows[row.id] = row
	return m.hydrate(row), nil
}

func (m *MemoryRepository) Grievances(_ context.Context, ownerID int) ([]Grievance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Grievance, 0, len(m.rows))
	for _, row := range m.rows {
		if ownerID != 0 && row.ownerID != ownerID {
			continue
		}
		out = append(out, m.hydrate(row))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryRepository) Grievance(_ context.Context, id int) (Grievance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[id]
	if !ok {
		return Grievance{}, ErrNotFound
	}
	return m.hydrate(row), nil
}

func (m *MemoryRepository) UpdateStatus(_ context.Context, id int, status string) (Grievance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return Grievance{}, ErrNotFound
	}
	row.status = status
	row.updatedAt = m.now()
	return m.hydrate(row), nil
}

func (m *MemoryRepository) AcceptChat(_ context.Context, id, staffID int) (Grievance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return Grievance{}, ErrNotFound
	}
	row.chatStatus = ChatAccepted
	if row.assigneeID == 0 {
		row.assigneeID = staffID
	}
	row.updatedAt = m.now()
	return m.hydrate(row), nil
}

func (m *MemoryRepository) AddComment(_ context.Context, grievanceID, userID int, text string) (Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[grievanceID]; !ok {
		return Comment{}, ErrNotFound
	}
	c := commentRow{id: m.next(), userID: userID, text: text, timestamp: m.now()}
	m.comments[grievanceID] = append(m.comments[grievanceID], c)
	return Comment{ID: c.id, User: m.users[userID], Text: c.text, Timestamp: c.timestamp}, nil
}

func (m *MemoryRepository) SaveMessage(_ context.Context, grievanceID, userID int, body string) (ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[grievanceID]; !ok {
		return ChatMessage{}, ErrNotFound
	}
	msg := messageRow{id: m.next(), userID: userID, body: body, timestamp: m.now()}
	m.messages[grievanceID] = append(m.messages[grievanceID], msg)
	return ChatMessage{ID: msg.id, User: m.users[userID].Sender(), Message: msg.body, Timestamp: msg.timestamp}, nil
}

// hydrate expands a row with its users, comments and chat history. Callers hold m.mu.
func (m *MemoryRepository) hydrate(row *grievanceRow) Grievance {
	g := Grievance{
		ID: row.id, Title: row.title, Description: row.description,
		Status: row.status, ChatStatus: row.chatStatus,
		CreatedAt: row.createdAt, UpdatedAt: row.updatedAt,
		SubmittedBy: m.users[row.ownerID],
		Comments:    []Comment{},
	}
	if row.assigneeID != 0 {
		a := m.users[row.assigneeID]
		g.AssignedTo = &a
	}
	for _, c := range m.comments[row.id] {
		g.Comments = append(g.Comments, Comment{ID: c.id, User: m.users[c.userID], Text: c.text, Timestamp: c.timestamp})
	}
	for _, msg := range m.messages[row.id] {
		g.ChatMessages = append(g.ChatMessages, ChatMessage{ID: msg.id, User: m.users[msg.userID].Sender(), Message: msg.body, Timestamp: msg.timestamp})
	}
	return g
}
