package chat

import (
	"context"
	"sync"

	"github.com/suPer8Hu/helpdesk-relay/internal/ai"
)

// Session is a named transcript. The first entry is always the system prompt.
type Session struct {
	ID string

	// turn serializes whole request turns on this session
	turn sync.Mutex

	mu         sync.Mutex
	entries    []ai.Message
	maxEntries int
}

func newSession(id, systemPrompt string, maxEntries int) *Session {
	return &Session{
		ID:         id,
		entries:    []ai.Message{{Role: ai.RoleSystem, Content: systemPrompt}},
		maxEntries: maxEntries,
	}
}

// Transcript returns a copy of the entries in order.
func (s *Session) Transcript() []ai.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ai.Message(nil), s.entries...)
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Session) append(m ai.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, m)
	if s.maxEntries <= 1 || len(s.entries) <= s.maxEntries {
		return
	}
	// keep the system entry, drop the oldest turns after it
	drop := len(s.entries) - s.maxEntries
	trimmed := make([]ai.Message, 0, s.maxEntries)
	trimmed = append(trimmed, s.entries[0])
	trimmed = append(trimmed, s.entries[1+drop:]...)
	s.entries = trimmed
}

// lockTurn blocks until no other turn is running on this session.
func (s *Session) lockTurn() func() {
	s.turn.Lock()
	return s.turn.Unlock
}

// Store resolves session ids to sessions.
type Store interface {
	GetOrCreate(ctx context.Context, sessionID string) *Session
	Append(s *Session, m ai.Message)
}

// MemoryStore keeps every session for the life of the process.
type MemoryStore struct {
	systemPrompt string
	maxEntries   int

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemoryStore returns a store seeding new sessions with systemPrompt.
// maxEntries caps each transcript including the system entry; 0 means no cap.
func NewMemoryStore(systemPrompt string, maxEntries int) *MemoryStore {
	return &MemoryStore{
		systemPrompt: systemPrompt,
		maxEntries:   maxEntries,
		sessions:     make(map[string]*Session),
	}
}

func (m *MemoryStore) GetOrCreate(_ context.Context, sessionID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		return s
	}
	s := newSession(sessionID, m.systemPrompt, m.maxEntries)
	m.sessions[sessionID] = s
	return s
}

func (m *MemoryStore) Append(s *Session, msg ai.Message) {
	s.append(msg)
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StatelessStore hands out a fresh session on every call and remembers nothing.
type StatelessStore struct {
	systemPrompt string
}

func NewStatelessStore(systemPrompt string) *StatelessStore {
	return &StatelessStore{systemPrompt: systemPrompt}
}

func (st *StatelessStore) GetOrCreate(_ context.Context, sessionID string) *Session {
	return newSession(sessionID, st.systemPrompt, 0)
}

func (st *StatelessStore) Append(s *Session, msg ai.Message) {
	s.append(msg)
}
