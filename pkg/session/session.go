// Package session carries the bearer credential used for every request to
// the chat service. A Session is created once and passed explicitly to the
// components that issue network calls; it is never looked up globally.
package session

import (
	"errors"
	"sync"
)

// ErrNoCredential is returned when a request needs a credential but the
// session holds none.
var ErrNoCredential = errors.New("no credential: run \"ggchat auth\" to log in")

// Session holds the current bearer token. Its lifecycle is explicit: Set on
// login, Clear on logout, AuthFailed when the service rejects the token.
// A Session is safe for concurrent use.
type Session struct {
	mu        sync.RWMutex
	token     string
	listeners []func(error)
}

// New returns a Session holding token. An empty token means logged out.
func New(token string) *Session {
	return &Session{token: token}
}

// Token returns the current bearer token.
func (s *Session) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == "" {
		return "", ErrNoCredential
	}
	return s.token, nil
}

// LoggedIn reports whether a token is set.
func (s *Session) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

// Set replaces the token.
func (s *Session) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Clear drops the token.
func (s *Session) Clear() {
	s.Set("")
}

// OnAuthFailure registers fn to be called, outside the session lock, each
// time AuthFailed is reported.
func (s *Session) OnAuthFailure(fn func(error)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// AuthFailed clears the token and notifies the registered listeners. The
// auth manager behind those listeners decides what happens next.
func (s *Session) AuthFailed(cause error) {
	s.mu.Lock()
	s.token = ""
	listeners := append([]func(error){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(cause)
	}
}
