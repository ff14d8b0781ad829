// Package realtime implements the in-memory message routing and presence
// engine: the connection registry, room membership, location tracking, the
// event router, and dual-channel notification dispatch.
package realtime

// Profile is the display identity attached to a live connection.
type Profile struct {
	UserID      int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"profile_pic,omitempty"`
	IsAdmin     bool   `json:"-"`
}

// Name returns the profile's preferred display name.
func (p Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Username
}

// AvatarURL returns the avatar path, falling back to the default picture.
func (p Profile) AvatarURL() string {
	if p.Avatar != "" {
		return p.Avatar
	}
	return "/static/profile_pics/default.jpg"
}

// Session is one live client connection. Implementations must make Send and
// Close safe for concurrent use; the engine may write to a session from
// several goroutines at once.
type Session interface {
	// ID uniquely identifies this connection, not the user. A reconnecting
	// user gets a fresh session id, which is how the registry tells a stale
	// disconnect apart from the replacement connection.
	ID() string
	Profile() Profile
	Send(payload any) error
	Close() error
}
