package realtime_test

import (
	"fmt"
	"sync"

	"chattrix/internal/realtime"
)

// fakeSession records every frame sent to it.
type fakeSession struct {
	id      string
	profile realtime.Profile

	mu      sync.Mutex
	frames  []map[string]any
	closed  bool
	sendErr error
}

var _ realtime.Session = (*fakeSession)(nil)

func newFakeSession(userID int64, username string) *fakeSession {
	return &fakeSession{
		id: fmt.Sprintf("sess-%s-%d", username, userID),
		profile: realtime.Profile{
			UserID:   userID,
			Username: username,
		},
	}
}

func (s *fakeSession) ID() string                { return s.id }
func (s *fakeSession) Profile() realtime.Profile { return s.profile }

func (s *fakeSession) Send(payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	if frame, ok := payload.(map[string]any); ok {
		s.frames = append(s.frames, frame)
	}
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// framesOfType returns all recorded frames with the given "type" value.
func (s *fakeSession) framesOfType(eventType string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []map[string]any
	for _, f := range s.frames {
		if f["type"] == eventType {
			res = append(res, f)
		}
	}
	return res
}

func (s *fakeSession) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = nil
}
