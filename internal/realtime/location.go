package realtime

import (
	"fmt"
	"sync"
)

// LocationPublic is the view token reported by clients looking at the public
// chat.
const LocationPublic = "public"

// PrivateLocation returns the view token for the private chat with the given
// user.
func PrivateLocation(otherUserID int64) string {
	return fmt.Sprintf("private:%d", otherUserID)
}

// LocationTracker records which logical view each connected user reported
// last. It is advisory input for notification suppression only: a stale or
// missing entry causes an extra or missing notification, never a delivery
// error. Absence of an entry means "not viewing the target" (always notify).
type LocationTracker struct {
	mu        sync.RWMutex
	locations map[int64]string
}

func NewLocationTracker() *LocationTracker {
	return &LocationTracker{
		locations: make(map[int64]string),
	}
}

// Set overwrites the user's current view token.
func (t *LocationTracker) Set(userID int64, token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.locations[userID] = token
}

// Get returns the user's last reported view token, if any.
func (t *LocationTracker) Get(userID int64) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	token, ok := t.locations[userID]
	return token, ok
}

// Clear removes the user's entry. Called on disconnect.
func (t *LocationTracker) Clear(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.locations, userID)
}
