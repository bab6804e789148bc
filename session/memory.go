package session

import (
	"context"
	"sync"

	"github.com/idtrust/rpflow/oidc"
)

// Memory keeps sessions in process memory. It is concurrently safe.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]map[string]string
}

var _ Backend = (*Memory)(nil)

// NewMemory creates an empty Memory.
func NewMemory() *Memory {
	return &Memory{sessions: map[string]map[string]string{}}
}

// Store returns the oidc.Store of sessionID.
func (m *Memory) Store(sessionID string) oidc.Store {
	return &memoryStore{m: m, sessionID: sessionID}
}

// Len returns the number of sessions holding at least one value.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

type memoryStore struct {
	m         *Memory
	sessionID string
}

func (s *memoryStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	values, ok := s.m.sessions[s.sessionID]
	if !ok {
		values = map[string]string{}
		s.m.sessions[s.sessionID] = values
	}
	values[key] = value
	return nil
}

func (s *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	v, ok := s.m.sessions[s.sessionID][key]
	return v, ok, nil
}

func (s *memoryStore) RemoveAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	delete(s.m.sessions, s.sessionID)
	return nil
}
