package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// sseSession is one open legacy SSE stream. Responses to messages posted for
// the session are delivered through events.
type sseSession struct {
	id        string
	events    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (s *sseSession) deliver(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- payload:
		return true
	case <-s.done:
		return false
	}
}

func (s *sseSession) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

type sessionStore struct {
	mu         sync.Mutex
	streamable map[string]time.Time
	sse        map[string]*sseSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		streamable: make(map[string]time.Time),
		sse:        make(map[string]*sseSession),
	}
}

func (s *sessionStore) startStreamable() string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamable[id] = time.Now()
	return id
}

func (s *sessionStore) hasStreamable(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.streamable[id]
	return ok
}

func (s *sessionStore) endStreamable(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streamable[id]; !ok {
		return false
	}
	delete(s.streamable, id)
	return true
}

func (s *sessionStore) openSSE() *sseSession {
	session := &sseSession{
		id:     uuid.NewString(),
		events: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sse[session.id] = session
	return session
}

func (s *sessionStore) lookupSSE(id string) (*sseSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sse[id]
	return session, ok
}

func (s *sessionStore) closeSSE(id string) {
	s.mu.Lock()
	session, ok := s.sse[id]
	delete(s.sse, id)
	s.mu.Unlock()
	if ok {
		session.close()
	}
}

func (s *sessionStore) closeAllSSE() {
	s.mu.Lock()
	sessions := make([]*sseSession, 0, len(s.sse))
	for id, session := range s.sse {
		sessions = append(sessions, session)
		delete(s.sse, id)
	}
	s.mu.Unlock()
	for _, session := range sessions {
		session.close()
	}
}

func (s *sessionStore) counts() (streamable, sse int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streamable), len(s.sse)
}
