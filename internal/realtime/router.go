package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chattrix/internal/domain"
)

const (
	publicPreviewRunes  = 50
	privatePreviewRunes = 100
	messageTimeLayout   = "2006-01-02 15:04:05"
)

// Router is the central dispatcher. It validates inbound commands, persists
// messages, fans events out through the room manager, and consults the
// location tracker to decide whether a supplementary notification is
// warranted.
//
// Registry, room, and location state is independent of storage outcomes: a
// failed persistence call is logged and answered with an error frame to the
// offending client only, and never corrupts the in-memory maps.
type Router struct {
	registry  *ConnectionRegistry
	rooms     *RoomManager
	locations *LocationTracker
	notifier  *NotificationDispatcher

	users         domain.UserRepository
	messages      domain.MessageRepository
	conversations domain.ConversationRepository

	log *slog.Logger
	now func() time.Time
}

func NewRouter(
	registry *ConnectionRegistry,
	rooms *RoomManager,
	locations *LocationTracker,
	notifier *NotificationDispatcher,
	users domain.UserRepository,
	messages domain.MessageRepository,
	conversations domain.ConversationRepository,
	log *slog.Logger,
) *Router {
	return &Router{
		registry:      registry,
		rooms:         rooms,
		locations:     locations,
		notifier:      notifier,
		users:         users,
		messages:      messages,
		conversations: conversations,
		log:           log,
		now:           time.Now,
	}
}

// HandleConnect registers the session, joins its personal room, and
// re-broadcasts the presence snapshot. A prior connection of the same user is
// closed explicitly; silent replacement would leak the old socket.
func (r *Router) HandleConnect(ctx context.Context, sess Session) {
	p := sess.Profile()

	if replaced := r.registry.Register(sess); replaced != nil {
		r.rooms.LeaveAll(replaced)
		_ = replaced.Close()
		r.log.Info("superseded previous connection",
			"user_id", p.UserID, "old_session_id", replaced.ID())
	}
	r.rooms.Join(PersonalRoomID(p.UserID), sess)
	r.broadcastPresence()

	r.log.Info("user connected",
		"user_id", p.UserID, "username", p.Username,
		"online", len(r.registry.Snapshot()))
}

// HandleDisconnect deterministically cleans up registry, room membership, and
// location state for the session, then re-broadcasts presence. A disconnect
// from a session that was already replaced only drops its room memberships.
func (r *Router) HandleDisconnect(ctx context.Context, sess Session) {
	p := sess.Profile()

	owned := r.registry.Unregister(p.UserID, sess.ID())
	r.rooms.LeaveAll(sess)
	if !owned {
		return
	}
	r.locations.Clear(p.UserID)
	r.broadcastPresence()

	r.log.Info("user disconnected",
		"user_id", p.UserID, "username", p.Username,
		"online", len(r.registry.Snapshot()))
}

// Dispatch routes one parsed command. No command may crash the dispatcher;
// unexpected panics are contained here so one misbehaving connection cannot
// take down event handling for the rest.
func (r *Router) Dispatch(ctx context.Context, sess Session, cmd Command) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in event handler",
				"event", cmd.Event, "user_id", sess.Profile().UserID, "panic", rec)
			r.sendError(sess, "internal error")
		}
	}()

	switch cmd.Kind {
	case CmdPublicMessage:
		r.handlePublicMessage(ctx, sess, cmd)
	case CmdPrivateMessage:
		r.handlePrivateMessage(ctx, sess, cmd)
	case CmdPinMessage:
		r.handlePin(ctx, sess, cmd)
	case CmdUnpinMessage:
		r.handleUnpin(ctx, sess, cmd)
	case CmdTyping:
		r.handleTyping(sess, cmd)
	case CmdSetLocation:
		r.locations.Set(sess.Profile().UserID, cmd.Location)
	case CmdJoinUserRoom:
		r.rooms.Join(PersonalRoomID(sess.Profile().UserID), sess)
		r.broadcastPresence()
	case CmdJoinPrivateRoom:
		r.handleJoinPrivateRoom(sess, cmd)
	case CmdGetOnlineUsers:
		r.sendPresence(sess)
	case CmdUserJoined:
		r.handleUserJoined(sess)
	case CmdHeartbeat:
		_ = sess.Send(event("heartbeat_response", map[string]any{
			"timestamp": r.now().Format(time.RFC3339),
		}))
	default:
		r.log.Debug("unknown event type",
			"event", cmd.Event, "user_id", sess.Profile().UserID)
	}
}

func (r *Router) handlePublicMessage(ctx context.Context, sess Session, cmd Command) {
	sender := sess.Profile()
	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		// Empty public sends are dropped without an error frame.
		return
	}

	msg := &domain.Message{
		SenderID:  sender.UserID,
		Text:      text,
		CreatedAt: r.now(),
		IsPrivate: false,
	}
	if err := r.messages.Create(ctx, msg); err != nil {
		r.log.Error("persist public message", "user_id", sender.UserID, "error", err)
		r.sendError(sess, "failed to send message")
		return
	}

	r.rooms.BroadcastAll(r.publicMessagePayload(msg, sender))

	// Everyone connected but looking away from the public chat gets a
	// supplementary notification. An unknown location counts as looking away.
	body := fmt.Sprintf("%s: %s", sender.Name(), previewText(text, publicPreviewRunes))
	for _, p := range r.registry.Snapshot() {
		if p.UserID == sender.UserID {
			continue
		}
		if loc, ok := r.locations.Get(p.UserID); ok && loc == LocationPublic {
			continue
		}
		r.notifier.Notify(p.UserID, Notification{
			Kind:    "public_message",
			Title:   "New message in Public Chat",
			Body:    body,
			Sender:  sender.Name(),
			ChatURL: "/chat",
		})
	}
}

func (r *Router) handlePrivateMessage(ctx context.Context, sess Session, cmd Command) {
	sender := sess.Profile()
	text := strings.TrimSpace(cmd.Text)
	if cmd.RecipientID == 0 || text == "" {
		r.sendError(sess, "Missing recipient or message")
		return
	}

	recipient, err := r.users.GetByID(ctx, cmd.RecipientID)
	if err != nil {
		r.log.Error("look up recipient", "recipient_id", cmd.RecipientID, "error", err)
		r.sendError(sess, "failed to send message")
		return
	}
	if recipient == nil {
		r.sendError(sess, "Recipient not found")
		return
	}

	recipientID := cmd.RecipientID
	msg := &domain.Message{
		SenderID:    sender.UserID,
		RecipientID: &recipientID,
		Text:        text,
		CreatedAt:   r.now(),
		IsPrivate:   true,
	}
	if err := r.messages.Create(ctx, msg); err != nil {
		r.log.Error("persist private message", "user_id", sender.UserID, "error", err)
		r.sendError(sess, "failed to send message")
		return
	}

	// Conversation bookkeeping is secondary to delivery: the message is
	// already persisted, so failures here are logged and delivery proceeds.
	if conv, err := r.conversations.FindOrCreate(ctx, sender.UserID, recipientID); err != nil {
		r.log.Error("find or create conversation",
			"user_id", sender.UserID, "recipient_id", recipientID, "error", err)
	} else if err := r.conversations.SetLastMessage(ctx, conv.ID, msg.ID, msg.CreatedAt); err != nil {
		r.log.Error("update conversation last message",
			"conversation_id", conv.ID, "error", err)
	}

	payload := r.privateMessagePayload(msg, sender)
	r.rooms.Broadcast(PersonalRoomID(sender.UserID), payload)
	r.rooms.Broadcast(PersonalRoomID(recipientID), payload)

	if loc, ok := r.locations.Get(recipientID); !ok || loc != PrivateLocation(sender.UserID) {
		r.notifier.Notify(recipientID, Notification{
			Kind:     "private_message",
			Title:    fmt.Sprintf("Message from %s", sender.Name()),
			Body:     previewText(text, privatePreviewRunes),
			Sender:   sender.Name(),
			ChatURL:  fmt.Sprintf("/chat/%d", sender.UserID),
			SenderID: sender.UserID,
		})
	}
}

func (r *Router) handlePin(ctx context.Context, sess Session, cmd Command) {
	if !sess.Profile().IsAdmin {
		r.sendError(sess, "Admin access required")
		return
	}
	if cmd.MessageID == 0 {
		r.sendError(sess, "Message ID required")
		return
	}

	msg, err := r.messages.GetByID(ctx, cmd.MessageID)
	if err != nil {
		r.log.Error("load message for pin", "message_id", cmd.MessageID, "error", err)
		r.sendError(sess, "failed to pin message")
		return
	}
	if msg == nil || msg.IsPrivate {
		// Only public messages can be pinned.
		r.sendError(sess, "Message not found or is private")
		return
	}

	if err := r.messages.SetPinned(ctx, msg.ID, true); err != nil {
		r.log.Error("pin message", "message_id", msg.ID, "error", err)
		r.sendError(sess, "failed to pin message")
		return
	}

	r.rooms.BroadcastAll(event("update_pinned", map[string]any{"message_id": msg.ID}))
	r.sendSuccess(sess, "Message pinned successfully")
}

func (r *Router) handleUnpin(ctx context.Context, sess Session, cmd Command) {
	if !sess.Profile().IsAdmin {
		r.sendError(sess, "Admin access required")
		return
	}
	if cmd.MessageID == 0 {
		r.sendError(sess, "Message ID required")
		return
	}

	msg, err := r.messages.GetByID(ctx, cmd.MessageID)
	if err != nil {
		r.log.Error("load message for unpin", "message_id", cmd.MessageID, "error", err)
		r.sendError(sess, "failed to unpin message")
		return
	}
	if msg == nil {
		r.sendError(sess, "Message not found")
		return
	}

	if err := r.messages.SetPinned(ctx, msg.ID, false); err != nil {
		r.log.Error("unpin message", "message_id", msg.ID, "error", err)
		r.sendError(sess, "failed to unpin message")
		return
	}

	r.rooms.BroadcastAll(event("update_unpinned", map[string]any{"message_id": msg.ID}))
	r.sendSuccess(sess, "Message unpinned successfully")
}

// handleTyping routes ephemeral typing indicators. Nothing is persisted:
// private indicators go to the recipient's personal room, public ones to
// everyone but the sender.
func (r *Router) handleTyping(sess Session, cmd Command) {
	p := sess.Profile()
	chatType := cmd.ChatType
	if chatType == "" {
		chatType = "public"
	}

	payload := event("user_typing", map[string]any{
		"user_id":      p.UserID,
		"username":     p.Username,
		"display_name": p.DisplayName,
		"is_typing":    cmd.IsTyping,
		"chat_type":    chatType,
	})

	if chatType == "private" && cmd.RecipientID != 0 {
		r.rooms.Broadcast(PersonalRoomID(cmd.RecipientID), payload)
		return
	}
	r.rooms.BroadcastAllExcept(sess.ID(), payload)
}

func (r *Router) handleJoinPrivateRoom(sess Session, cmd Command) {
	if cmd.User1ID == 0 || cmd.User2ID == 0 {
		r.sendError(sess, "Missing user ids")
		return
	}
	r.rooms.Join(PairRoomID(cmd.User1ID, cmd.User2ID), sess)
}

func (r *Router) handleUserJoined(sess Session) {
	p := sess.Profile()
	r.rooms.BroadcastAll(event("receive_message", map[string]any{
		"system":       true,
		"text":         fmt.Sprintf("%s has joined the chat.", p.Name()),
		"message":      fmt.Sprintf("%s has joined the chat.", p.Name()),
		"timestamp":    r.now().Format(messageTimeLayout),
		"username":     "System",
		"display_name": "System",
		"profile_pic":  "/static/profile_pics/default.jpg",
	}))
}

func (r *Router) broadcastPresence() {
	r.rooms.BroadcastAll(event("online_users", map[string]any{
		"users": r.registry.Snapshot(),
	}))
}

func (r *Router) sendPresence(sess Session) {
	_ = sess.Send(event("online_users", map[string]any{
		"users": r.registry.Snapshot(),
	}))
}

func (r *Router) publicMessagePayload(msg *domain.Message, sender Profile) map[string]any {
	return event("receive_message", map[string]any{
		"id":           msg.ID,
		"sender_id":    sender.UserID,
		"username":     sender.Username,
		"display_name": sender.DisplayName,
		"text":         msg.Text,
		"message":      msg.Text, // older frontends read "message"
		"timestamp":    msg.CreatedAt.Format(messageTimeLayout),
		"is_private":   false,
		"profile_pic":  sender.AvatarURL(),
		"avatar":       sender.AvatarURL(),
	})
}

func (r *Router) privateMessagePayload(msg *domain.Message, sender Profile) map[string]any {
	return event("receive_private_message", map[string]any{
		"id":           msg.ID,
		"sender_id":    sender.UserID,
		"recipient_id": *msg.RecipientID,
		"username":     sender.Username,
		"display_name": sender.DisplayName,
		"text":         msg.Text,
		"message":      msg.Text,
		"timestamp":    msg.CreatedAt.Format(messageTimeLayout),
		"profile_pic":  sender.AvatarURL(),
		"avatar":       sender.AvatarURL(),
	})
}

func (r *Router) sendError(sess Session, msg string) {
	_ = sess.Send(event("error", map[string]any{"message": msg}))
}

func (r *Router) sendSuccess(sess Session, msg string) {
	_ = sess.Send(event("success", map[string]any{"message": msg}))
}
