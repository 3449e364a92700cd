package session

import "sync"

// Registry is the single shared mutable structure across sessions: a
// mapping from account id to live session. All access is serialized by one
// mutex; expected session counts are tens, not millions.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// TryRegister atomically checks and reserves the slot for accountID. The
// returned session starts in the connecting state. Exactly one of N
// concurrent callers for the same id wins; the rest get
// ErrAlreadyRegistered with no side effects.
func (r *Registry) TryRegister(accountID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[accountID]; ok {
		return nil, ErrAlreadyRegistered
	}
	sess := newSession(accountID)
	r.sessions[accountID] = sess
	return sess, nil
}

// Get returns the session for accountID when present.
func (r *Registry) Get(accountID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[accountID]
	return sess, ok
}

// Remove deletes the session unconditionally. Idempotent.
func (r *Registry) Remove(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, accountID)
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ListIDs returns a snapshot of the registered account ids.
func (r *Registry) ListIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// SnapshotReadiness projects account id -> ready flag for query endpoints.
func (r *Registry) SnapshotReadiness() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool, len(r.sessions))
	for id, sess := range r.sessions {
		out[id] = sess.Ready()
	}
	return out
}

// SnapshotTokens projects account id -> pending login token. Accounts with
// no pending token are absent from the map.
func (r *Registry) SnapshotTokens() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.sessions))
	for id, sess := range r.sessions {
		if token := sess.Token(); token != "" {
			out[id] = token
		}
	}
	return out
}
