package ws

import (
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chattrix/internal/realtime"
)

// session adapts a gorilla websocket connection to the realtime.Session
// interface. Writes are serialized with a mutex; gorilla connections allow at
// most one concurrent writer.
type session struct {
	id      string
	profile realtime.Profile
	conn    *websocket.Conn

	mu     sync.Mutex
	closed bool
}

var _ realtime.Session = (*session)(nil)

func newSession(profile realtime.Profile, conn *websocket.Conn) *session {
	return &session{
		id:      uuid.NewString(),
		profile: profile,
		conn:    conn,
	}
}

func (s *session) ID() string                { return s.id }
func (s *session) Profile() realtime.Profile { return s.profile }

func (s *session) Send(payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return net.ErrClosed
	}
	return s.conn.WriteJSON(payload)
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
