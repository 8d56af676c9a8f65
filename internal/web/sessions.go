package web

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// sessionTTL is how long a web session stays valid.
const sessionTTL = 7 * 24 * time.Hour

type session struct {
	webUserID string
	expiresAt time.Time
}

// sessionStore keeps sessions in memory. They don't survive a restart;
// the Google sign-in button silently re-authenticates, so that's fine.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: map[string]session{}}
}

func (s *sessionStore) Create(webUserID string) string {
	token := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = session{webUserID: webUserID, expiresAt: time.Now().Add(sessionTTL)}
	return token
}

func (s *sessionStore) Get(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return "", false
	}
	if time.Now().After(sess.expiresAt) {
		delete(s.sessions, token)
		return "", false
	}
	return sess.webUserID, true
}

func (s *sessionStore) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}
