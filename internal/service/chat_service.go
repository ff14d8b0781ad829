package service

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"chattrix/internal/domain"
)

// ChatService serves message history and conversation listings for the HTTP
// surface. Live delivery is the routing engine's job; this only reads what
// the engine persisted.
type ChatService struct {
	users         domain.UserRepository
	messages      domain.MessageRepository
	conversations domain.ConversationRepository

	HistoryLimit int
}

func NewChatService(
	users domain.UserRepository,
	messages domain.MessageRepository,
	conversations domain.ConversationRepository,
	historyLimit int,
) *ChatService {
	return &ChatService{
		users:         users,
		messages:      messages,
		conversations: conversations,
		HistoryLimit:  historyLimit,
	}
}

// MessageResponse mirrors the payload shape the frontends consume.
type MessageResponse struct {
	ID          int64  `json:"id"`
	SenderID    int64  `json:"sender_id"`
	RecipientID *int64 `json:"recipient_id,omitempty"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Text        string `json:"text"`
	Message     string `json:"message"` // compatibility duplicate of Text
	Timestamp   string `json:"timestamp"`
	IsPrivate   bool   `json:"is_private"`
	Pinned      bool   `json:"pinned"`
	IsRead      bool   `json:"is_read"`
}

// ConversationResponse is one entry in a user's conversation list.
type ConversationResponse struct {
	ID          int64            `json:"id"`
	OtherUserID int64            `json:"other_user_id"`
	OtherUser   *domain.User     `json:"other_user,omitempty"`
	LastMessage *MessageResponse `json:"last_message,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

const messageTimeLayout = "2006-01-02 15:04:05"

// PublicHistory returns recent public messages in chronological order.
func (s *ChatService) PublicHistory(ctx context.Context, limit int) ([]*MessageResponse, error) {
	if limit <= 0 || limit > s.HistoryLimit {
		limit = s.HistoryLimit
	}
	msgs, err := s.messages.ListPublic(ctx, limit)
	if err != nil {
		return nil, err
	}
	lo.Reverse(msgs)
	return s.toResponses(ctx, msgs)
}

// PinnedMessages returns all pinned public messages, most recent first.
func (s *ChatService) PinnedMessages(ctx context.Context) ([]*MessageResponse, error) {
	msgs, err := s.messages.ListPinned(ctx)
	if err != nil {
		return nil, err
	}
	return s.toResponses(ctx, msgs)
}

// PrivateHistory returns the caller's private thread with otherUserID in
// chronological order and marks the incoming half as read.
func (s *ChatService) PrivateHistory(ctx context.Context, callerID, otherUserID int64, limit int) ([]*MessageResponse, error) {
	other, err := s.users.GetByID(ctx, otherUserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if other == nil {
		return nil, domain.ErrNotFound
	}

	if limit <= 0 || limit > s.HistoryLimit {
		limit = s.HistoryLimit
	}
	msgs, err := s.messages.ListBetween(ctx, callerID, otherUserID, limit)
	if err != nil {
		return nil, err
	}
	lo.Reverse(msgs)

	if err := s.messages.MarkRead(ctx, otherUserID, callerID); err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	return s.toResponses(ctx, msgs)
}

// ConversationsForUser lists the caller's private conversations, most
// recently active first, each annotated with the other participant and the
// last message.
func (s *ChatService) ConversationsForUser(ctx context.Context, userID int64) ([]*ConversationResponse, error) {
	convs, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	res := make([]*ConversationResponse, 0, len(convs))
	for _, c := range convs {
		otherID := c.User1ID
		if otherID == userID {
			otherID = c.User2ID
		}

		entry := &ConversationResponse{
			ID:          c.ID,
			OtherUserID: otherID,
			UpdatedAt:   c.UpdatedAt,
		}
		if other, err := s.users.GetByID(ctx, otherID); err == nil && other != nil {
			entry.OtherUser = other
		}
		if c.LastMessageID != nil {
			if msg, err := s.messages.GetByID(ctx, *c.LastMessageID); err == nil && msg != nil {
				if dto, err := s.toResponse(ctx, msg); err == nil {
					entry.LastMessage = dto
				}
			}
		}
		res = append(res, entry)
	}
	return res, nil
}

func (s *ChatService) toResponse(ctx context.Context, m *domain.Message) (*MessageResponse, error) {
	var username, displayName string
	if u, err := s.users.GetByID(ctx, m.SenderID); err == nil && u != nil {
		username = u.Username
		displayName = u.DisplayName
	}
	return &MessageResponse{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Username:    username,
		DisplayName: displayName,
		Text:        m.Text,
		Message:     m.Text,
		Timestamp:   m.CreatedAt.Format(messageTimeLayout),
		IsPrivate:   m.IsPrivate,
		Pinned:      m.Pinned,
		IsRead:      m.IsRead,
	}, nil
}

func (s *ChatService) toResponses(ctx context.Context, msgs []*domain.Message) ([]*MessageResponse, error) {
	res := make([]*MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		dto, err := s.toResponse(ctx, m)
		if err != nil {
			return nil, err
		}
		res = append(res, dto)
	}
	return res, nil
}
