package server

import (
	"sync"

	"github.com/google/uuid"
)

// Session is the coordinator's view of one connection: which credential,
// if any, has authenticated on it.
type Session struct {
	id         string
	remoteAddr string

	mu     sync.RWMutex
	caller uuid.UUID
}

// NewSession creates the state of a new connection.
func NewSession(id, remoteAddr string) *Session {
	return &Session{id: id, remoteAddr: remoteAddr}
}

// ID returns the connection id.
func (s *Session) ID() string { return s.id }

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() string { return s.remoteAddr }

// Caller returns the credential that authenticated on the session.
func (s *Session) Caller() (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caller, s.caller != uuid.Nil
}

// Authenticated reports whether an authenticated operation succeeded on the
// session.
func (s *Session) Authenticated() bool {
	_, ok := s.Caller()
	return ok
}

func (s *Session) authenticate(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caller = id
}

// deauthenticate clears the caller if it is id and reports whether it did.
func (s *Session) deauthenticate(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.caller != id {
		return false
	}
	s.caller = uuid.Nil
	return true
}
