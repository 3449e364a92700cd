// Package session is the core of wactl: the per-account session state
// machine, the concurrency-safe registry indexing all live sessions, the
// credential store, and the coordinator that drives state transitions from
// protocol engine events.
package session

import (
	"sync"

	"github.com/barok/wactl/internal/engine"
)

// State is the lifecycle position of one account session.
type State int

const (
	StateUnregistered State = iota
	StateConnecting
	StateAwaitingToken
	StateAuthenticated
	StateReady
	StateDisconnected
	StateAuthFailed
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateConnecting:
		return "connecting"
	case StateAwaitingToken:
		return "awaiting_token"
	case StateAuthenticated:
		return "authenticated"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	case StateAuthFailed:
		return "auth_failed"
	default:
		return "unknown"
	}
}

// Session binds one account to one live protocol connection. The engine
// handle is owned exclusively by the session; all state mutation goes
// through the Coordinator.
type Session struct {
	AccountID string

	mu           sync.Mutex
	state        State
	credential   []byte
	pendingToken string
	eng          engine.Engine
}

func newSession(accountID string) *Session {
	return &Session{AccountID: accountID, state: StateConnecting}
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready reports whether the session reached the ready state.
func (s *Session) Ready() bool {
	return s.State() == StateReady
}

// Token returns the pending login token, or "" when none is pending.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingToken
}

func (s *Session) attachEngine(eng engine.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eng = eng
}

func (s *Session) engineHandle() engine.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng
}

// storeToken records an issued login token. Tokens are accepted while
// connecting or awaiting a previous token (re-issue); anything later is
// stale and dropped.
func (s *Session) storeToken(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting && s.state != StateAwaitingToken {
		return false
	}
	s.state = StateAwaitingToken
	s.pendingToken = token
	return true
}

// markAuthenticated caches the credential and clears any pending token. A
// late authenticated event on a ready session refreshes the credential
// without regressing the state.
func (s *Session) markAuthenticated(credential []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = credential
	s.pendingToken = ""
	if s.state != StateReady {
		s.state = StateAuthenticated
	}
}

func (s *Session) markReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingToken = ""
	s.state = StateReady
}

// markTerminal drops the engine handle and parks the session in a terminal
// state. The coordinator removes it from the registry right after.
func (s *Session) markTerminal(terminal State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = terminal
	s.pendingToken = ""
	s.eng = nil
}
