package realtime

import (
	"fmt"
	"log/slog"
	"sync"
)

// PersonalRoomID returns the room id of a user's personal notification room.
// Every connected user is a member of exactly one personal room regardless of
// which view they are on, giving server-initiated targeted events a stable
// delivery address.
func PersonalRoomID(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// PairRoomID returns the canonical room id for a private 1:1 chat. Operands
// are sorted so both participants resolve to the same id regardless of call
// order.
func PairRoomID(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("private:%d:%d", a, b)
}

// RoomManager tracks room membership and provides broadcast and targeted
// send primitives. Rooms are sets of sessions keyed by room id; join and
// leave are idempotent.
type RoomManager struct {
	registry *ConnectionRegistry
	log      *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[string]Session // room id -> session id -> session
}

func NewRoomManager(registry *ConnectionRegistry, log *slog.Logger) *RoomManager {
	return &RoomManager{
		registry: registry,
		log:      log,
		rooms:    make(map[string]map[string]Session),
	}
}

// Join adds sess to the room, creating the room on first use.
func (m *RoomManager) Join(roomID string, sess Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rooms[roomID] == nil {
		m.rooms[roomID] = make(map[string]Session)
	}
	m.rooms[roomID][sess.ID()] = sess
}

// Leave removes sess from the room; empty rooms are dropped.
func (m *RoomManager) Leave(roomID string, sess Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if members, ok := m.rooms[roomID]; ok {
		delete(members, sess.ID())
		if len(members) == 0 {
			delete(m.rooms, roomID)
		}
	}
}

// LeaveAll removes sess from every room it is a member of. Called on
// disconnect and when a superseded connection is closed.
func (m *RoomManager) LeaveAll(sess Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for roomID, members := range m.rooms {
		delete(members, sess.ID())
		if len(members) == 0 {
			delete(m.rooms, roomID)
		}
	}
}

// Broadcast delivers payload to every live member of the room. Members whose
// connection has gone away are skipped; they will not receive the event live,
// which is exactly why the notification path exists separately.
func (m *RoomManager) Broadcast(roomID string, payload any) {
	m.mu.RLock()
	members := make([]Session, 0, len(m.rooms[roomID]))
	for _, sess := range m.rooms[roomID] {
		members = append(members, sess)
	}
	m.mu.RUnlock()

	for _, sess := range members {
		m.send(sess, payload)
	}
}

// BroadcastAll delivers payload to every connected client.
func (m *RoomManager) BroadcastAll(payload any) {
	for _, sess := range m.registry.Sessions() {
		m.send(sess, payload)
	}
}

// BroadcastAllExcept delivers payload to every connected client except the
// session with the given id.
func (m *RoomManager) BroadcastAllExcept(sessionID string, payload any) {
	for _, sess := range m.registry.Sessions() {
		if sess.ID() == sessionID {
			continue
		}
		m.send(sess, payload)
	}
}

func (m *RoomManager) send(sess Session, payload any) {
	if err := sess.Send(payload); err != nil {
		// The read loop will run disconnect cleanup once the connection
		// is closed.
		m.log.Debug("dropping undeliverable event",
			"session_id", sess.ID(),
			"user_id", sess.Profile().UserID,
			"error", err)
		_ = sess.Close()
	}
}
