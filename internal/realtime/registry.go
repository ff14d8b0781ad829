package realtime

import "sync"

// ConnectionRegistry maps authenticated users to their single live session.
// All operations are total and idempotent: registering twice replaces
// (last writer wins), unregistering an absent user is a no-op.
type ConnectionRegistry struct {
	mu       sync.RWMutex
	sessions map[int64]Session
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		sessions: make(map[int64]Session),
	}
}

// Register stores sess as the live connection for its user and returns the
// session it replaced, if any. The caller is responsible for closing the
// superseded session.
func (r *ConnectionRegistry) Register(sess Session) (replaced Session) {
	uid := sess.Profile().UserID

	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.sessions[uid]
	if prev != nil && prev.ID() == sess.ID() {
		prev = nil
	}
	r.sessions[uid] = sess
	return prev
}

// Unregister removes the entry for userID, but only while it is still owned
// by sessionID. A disconnect arriving from a session that was already
// replaced must not evict the replacement. Reports whether an entry was
// removed.
func (r *ConnectionRegistry) Unregister(userID int64, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.sessions[userID]
	if !ok || cur.ID() != sessionID {
		return false
	}
	delete(r.sessions, userID)
	return true
}

// Get returns the live session for userID, if any.
func (r *ConnectionRegistry) Get(userID int64) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[userID]
	return sess, ok
}

// Sessions returns all live sessions in unspecified order.
func (r *ConnectionRegistry) Sessions() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		res = append(res, sess)
	}
	return res
}

// Snapshot returns the presence list of currently online users in
// unspecified order. Consumers must not depend on ordering.
func (r *ConnectionRegistry) Snapshot() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]Profile, 0, len(r.sessions))
	for _, sess := range r.sessions {
		res = append(res, sess.Profile())
	}
	return res
}
