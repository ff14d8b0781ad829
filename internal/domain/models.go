package domain

import "time"

// User represents an application user.
type User struct {
	ID             int64     `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	DisplayName    string    `db:"display_name" json:"display_name"`
	HashedPassword string    `db:"hashed_password" json:"-"`
	IsAdmin        bool      `db:"is_admin" json:"is_admin"`
	Avatar         string    `db:"avatar" json:"avatar"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Name returns the user's preferred display name, falling back to the
// username when no display name is set.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Message represents a single chat message. A nil RecipientID means the
// message belongs to the public room; a non-nil RecipientID makes it private.
type Message struct {
	ID          int64     `db:"id"`
	SenderID    int64     `db:"sender_id"`
	RecipientID *int64    `db:"recipient_id"`
	Text        string    `db:"text"`
	CreatedAt   time.Time `db:"created_at"`
	IsPrivate   bool      `db:"is_private"`
	Pinned      bool      `db:"pinned"`
	FilePath    *string   `db:"file_path"`
	IsRead      bool      `db:"is_read"`
}

// Conversation tracks a private 1:1 thread. User1ID and User2ID are always
// stored in canonical (min, max) order so that exactly one row exists per
// unordered pair.
type Conversation struct {
	ID            int64     `db:"id"`
	User1ID       int64     `db:"user1_id"`
	User2ID       int64     `db:"user2_id"`
	LastMessageID *int64    `db:"last_message_id"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// PushSubscription stores one browser's Web Push endpoint for a user. A user
// may hold several subscriptions across devices.
type PushSubscription struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Endpoint  string    `db:"endpoint" json:"endpoint"`
	P256dhKey string    `db:"p256dh_key" json:"-"`
	AuthKey   string    `db:"auth_key" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
