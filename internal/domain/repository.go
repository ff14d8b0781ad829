package domain

import (
	"context"
	"time"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	ListAll(ctx context.Context) ([]*User, error)
}

// MessageRepository defines persistence operations for messages.
// Lookups return (nil, nil) when the row does not exist.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id int64) (*Message, error)
	SetPinned(ctx context.Context, id int64, pinned bool) error
	ListPublic(ctx context.Context, limit int) ([]*Message, error)
	ListPinned(ctx context.Context) ([]*Message, error)
	ListBetween(ctx context.Context, userA, userB int64, limit int) ([]*Message, error)
	MarkRead(ctx context.Context, senderID, recipientID int64) error
}

// ConversationRepository defines persistence operations for private
// conversations. FindOrCreate must resolve both argument orders to the same
// row.
type ConversationRepository interface {
	FindOrCreate(ctx context.Context, userA, userB int64) (*Conversation, error)
	SetLastMessage(ctx context.Context, conversationID, messageID int64, at time.Time) error
	ListForUser(ctx context.Context, userID int64) ([]*Conversation, error)
}

// SubscriptionRepository defines persistence operations for Web Push
// subscriptions.
type SubscriptionRepository interface {
	Create(ctx context.Context, s *PushSubscription) error
	ListForUser(ctx context.Context, userID int64) ([]*PushSubscription, error)
	Delete(ctx context.Context, id int64) error
}
