package chat

import "sync"

// Store is the append-only log of the active conversation. It keeps arrival
// order and never reorders or deduplicates: a duplicate delivery shows twice.
type Store struct {
	mu   sync.RWMutex
	msgs []Message
}

func NewStore() *Store {
	return &Store{}
}

// Seed replaces the log with history supplied when a conversation is selected.
func (s *Store) Seed(history []Message) {
	msgs := make([]Message, 0, len(history))
	for _, m := range history {
		m.Provenance = FromHistory
		msgs = append(msgs, m)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = msgs
}

func (s *Store) Append(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
}

// Clear discards the whole log on conversation switch.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// Messages returns a copy of the log in arrival order.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Entries projects the log into own/peer entries for selfID.
func (s *Store) Entries(selfID int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.msgs))
	for _, m := range s.msgs {
		out = append(out, Entry{Message: m, Side: m.SideFor(selfID)})
	}
	return out
}
