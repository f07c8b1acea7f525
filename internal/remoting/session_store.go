package remoting

import (
	"context"
	"sync"
)

// SessionStore retains accepted RemoteSessions by session id (§4.8). On
// SessionClosed(id) it removes the entry; an optional onClosed hook lets
// owners (e.g. the cluster's node registry) react to a session going away
// without SessionStore importing their package.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*RemoteSession

	onClosed func(sess *RemoteSession)
}

// NewSessionStore constructs an empty SessionStore. onClosed, if non-nil,
// is invoked (outside the store's lock) whenever a session is removed.
func NewSessionStore(onClosed func(sess *RemoteSession)) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*RemoteSession),
		onClosed: onClosed,
	}
}

// Add retains sess under its own id.
func (s *SessionStore) Add(sess *RemoteSession) {
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
}

// SessionClosed removes id from the store and fires onClosed, matching
// §4.8's "on SessionClosed(id) it removes the entry."
func (s *SessionStore) SessionClosed(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if ok {
		sess.Close()
		if s.onClosed != nil {
			s.onClosed(sess)
		}
		log.DebugS(context.Background(), "session closed", "session_id", id)
	}
}

// Get returns the session registered under id, if any.
func (s *SessionStore) Get(id string) (*RemoteSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Len reports the number of currently retained sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// CloseAll closes every retained session, e.g. during node shutdown.
func (s *SessionStore) CloseAll() {
	s.mu.Lock()
	sessions := make([]*RemoteSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*RemoteSession)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
}
