package realtime_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chattrix/internal/domain"
	"chattrix/internal/push"
	"chattrix/internal/realtime"
)

type memUserRepo struct {
	mu    sync.Mutex
	users map[int64]*domain.User
}

func newMemUserRepo(users ...*domain.User) *memUserRepo {
	r := &memUserRepo{users: make(map[int64]*domain.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memUserRepo) Create(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u.ID = int64(len(r.users) + 1)
	r.users[u.ID] = u
	return nil
}

func (r *memUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id], nil
}

func (r *memUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) ListAll(ctx context.Context) ([]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]*domain.User, 0, len(r.users))
	for _, u := range r.users {
		res = append(res, u)
	}
	return res, nil
}

type memMessageRepo struct {
	mu         sync.Mutex
	messages   map[int64]*domain.Message
	nextID     int64
	failCreate bool
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{messages: make(map[int64]*domain.Message)}
}

func (r *memMessageRepo) Create(ctx context.Context, m *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate {
		return errors.New("disk full")
	}
	r.nextID++
	m.ID = r.nextID
	cp := *m
	r.messages[m.ID] = &cp
	return nil
}

func (r *memMessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages[id], nil
}

func (r *memMessageRepo) SetPinned(ctx context.Context, id int64, pinned bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[id]; ok {
		m.Pinned = pinned
	}
	return nil
}

func (r *memMessageRepo) ListPublic(ctx context.Context, limit int) ([]*domain.Message, error) {
	return nil, nil
}

func (r *memMessageRepo) ListPinned(ctx context.Context) ([]*domain.Message, error) {
	return nil, nil
}

func (r *memMessageRepo) ListBetween(ctx context.Context, userA, userB int64, limit int) ([]*domain.Message, error) {
	return nil, nil
}

func (r *memMessageRepo) MarkRead(ctx context.Context, senderID, recipientID int64) error {
	return nil
}

func (r *memMessageRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

type memConvRepo struct {
	mu           sync.Mutex
	convs        map[string]*domain.Conversation
	nextID       int64
	lastMessages map[int64]int64 // conversation id -> message id
}

func newMemConvRepo() *memConvRepo {
	return &memConvRepo{
		convs:        make(map[string]*domain.Conversation),
		lastMessages: make(map[int64]int64),
	}
}

func (r *memConvRepo) FindOrCreate(ctx context.Context, userA, userB int64) (*domain.Conversation, error) {
	if userA > userB {
		userA, userB = userB, userA
	}
	key := realtime.PairRoomID(userA, userB)

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.convs[key]; ok {
		return c, nil
	}
	r.nextID++
	c := &domain.Conversation{ID: r.nextID, User1ID: userA, User2ID: userB}
	r.convs[key] = c
	return c, nil
}

func (r *memConvRepo) SetLastMessage(ctx context.Context, conversationID, messageID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastMessages[conversationID] = messageID
	return nil
}

func (r *memConvRepo) ListForUser(ctx context.Context, userID int64) ([]*domain.Conversation, error) {
	return nil, nil
}

type memSubsRepo struct {
	mu   sync.Mutex
	subs map[int64]*domain.PushSubscription
}

func newMemSubsRepo() *memSubsRepo {
	return &memSubsRepo{subs: make(map[int64]*domain.PushSubscription)}
}

func (r *memSubsRepo) Create(ctx context.Context, s *domain.PushSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == 0 {
		s.ID = int64(len(r.subs) + 1)
	}
	r.subs[s.ID] = s
	return nil
}

func (r *memSubsRepo) ListForUser(ctx context.Context, userID int64) ([]*domain.PushSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*domain.PushSubscription
	for _, s := range r.subs {
		if s.UserID == userID {
			res = append(res, s)
		}
	}
	return res, nil
}

func (r *memSubsRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, id)
	return nil
}

func (r *memSubsRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

type routerEnv struct {
	registry  *realtime.ConnectionRegistry
	rooms     *realtime.RoomManager
	locations *realtime.LocationTracker
	users     *memUserRepo
	messages  *memMessageRepo
	convs     *memConvRepo
	router    *realtime.Router
}

func newRouterEnv(t *testing.T, users ...*domain.User) *routerEnv {
	t.Helper()
	log := discardLogger()

	registry := realtime.NewConnectionRegistry()
	rooms := realtime.NewRoomManager(registry, log)
	locations := realtime.NewLocationTracker()
	notifier := realtime.NewNotificationDispatcher(
		rooms, newMemSubsRepo(), push.NoopSender{}, 1, 16, log)
	t.Cleanup(notifier.Close)

	userRepo := newMemUserRepo(users...)
	msgRepo := newMemMessageRepo()
	convRepo := newMemConvRepo()

	return &routerEnv{
		registry:  registry,
		rooms:     rooms,
		locations: locations,
		users:     userRepo,
		messages:  msgRepo,
		convs:     convRepo,
		router: realtime.NewRouter(
			registry, rooms, locations, notifier, userRepo, msgRepo, convRepo, log),
	}
}

func (e *routerEnv) connect(t *testing.T, sess *fakeSession) {
	t.Helper()
	e.router.HandleConnect(context.Background(), sess)
	sess.reset()
}

func publicSend(text string) realtime.Command {
	return realtime.Command{Kind: realtime.CmdPublicMessage, Event: "send_message", Text: text}
}

func TestPublicMessageBroadcastAndNotification(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	alice := newFakeSession(1, "alice")
	bob := newFakeSession(2, "bob")
	carol := newFakeSession(3, "carol")
	dave := newFakeSession(4, "dave")
	for _, s := range []*fakeSession{alice, bob, carol, dave} {
		env.connect(t, s)
	}

	// bob is looking at the public chat, carol is in a private chat, dave
	// never reported a location.
	env.locations.Set(2, realtime.LocationPublic)
	env.locations.Set(3, realtime.PrivateLocation(1))

	env.router.Dispatch(ctx, alice, publicSend("hello everyone"))

	// Everyone, sender included, sees the live message.
	for _, s := range []*fakeSession{alice, bob, carol, dave} {
		frames := s.framesOfType("receive_message")
		require.Len(t, frames, 1, s.profile.Username)
		assert.Equal(t, "hello everyone", frames[0]["text"])
		assert.Equal(t, int64(1), frames[0]["sender_id"])
	}

	// Notifications go only to users looking away from the public chat.
	assert.Empty(t, alice.framesOfType("notification"), "sender is never notified")
	assert.Empty(t, bob.framesOfType("notification"), "viewer of the public chat is not notified")

	carolNotes := carol.framesOfType("notification")
	require.Len(t, carolNotes, 1)
	assert.Equal(t, "public_message", carolNotes[0]["notification_type"])
	assert.Equal(t, "alice: hello everyone", carolNotes[0]["message"])

	require.Len(t, dave.framesOfType("notification"), 1, "unknown location counts as looking away")

	assert.Equal(t, 1, env.messages.count())
}

func TestPublicMessagePreviewTruncation(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	alice := newFakeSession(1, "alice")
	bob := newFakeSession(2, "bob")
	env.connect(t, alice)
	env.connect(t, bob)

	long := strings.Repeat("x", 80)
	env.router.Dispatch(ctx, alice, publicSend(long))

	notes := bob.framesOfType("notification")
	require.Len(t, notes, 1)
	body, _ := notes[0]["message"].(string)
	assert.Equal(t, "alice: "+strings.Repeat("x", 50)+"...", body)
}

func TestPublicMessageEmptyIsDropped(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	alice := newFakeSession(1, "alice")
	bob := newFakeSession(2, "bob")
	env.connect(t, alice)
	env.connect(t, bob)

	env.router.Dispatch(ctx, alice, publicSend("   "))

	assert.Equal(t, 0, env.messages.count())
	assert.Empty(t, bob.framesOfType("receive_message"))
	assert.Empty(t, alice.framesOfType("error"))
}

func TestPublicMessagePersistFailure(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	alice := newFakeSession(1, "alice")
	bob := newFakeSession(2, "bob")
	env.connect(t, alice)
	env.connect(t, bob)

	env.messages.failCreate = true
	env.router.Dispatch(ctx, alice, publicSend("hello"))

	errs := alice.framesOfType("error")
	require.Len(t, errs, 1)
	assert.Equal(t, "failed to send message", errs[0]["message"])
	assert.Empty(t, bob.framesOfType("receive_message"), "failed persistence must not broadcast")
}

func TestPrivateMessageDelivery(t *testing.T) {
	bobUser := &domain.User{ID: 2, Username: "bob"}
	env := newRouterEnv(t, bobUser)
	ctx := context.Background()

	alice := newFakeSession(1, "alice")
	bob := newFakeSession(2, "bob")
	env.connect(t, alice)
	env.connect(t, bob)

	env.router.Dispatch(ctx, alice, realtime.Command{
		Kind:        realtime.CmdPrivateMessage,
		Event:       "send_private_message",
		Text:        "secret",
		RecipientID: 2,
	})

	aliceFrames := alice.framesOfType("receive_private_message")
	bobFrames := bob.framesOfType("receive_private_message")
	require.Len(t, aliceFrames, 1, "sender echo")
	require.Len(t, bobFrames, 1)
	assert.Equal(t, aliceFrames[0]["id"], bobFrames[0]["id"], "both sides see the same message id")
	assert.Equal(t, "secret", bobFrames[0]["text"])
	assert.Equal(t, int64(2), bobFrames[0]["recipient_id"])

	// bob was not viewing the chat with alice, so he is also notified.
	notes := bob.framesOfType("notification")
	require.Len(t, notes, 1)
	assert.Equal(t, "private_message", notes[0]["notification_type"])
	assert.Equal(t, int64(1), notes[0]["sender_id"])

	// Conversation bookkeeping ran.
	conv, err := env.convs.FindOrCreate(ctx, 1, 2)
	require.NoError(t, err)
	assert.NotZero(t, env.convs.lastMessages[conv.ID])
}

func TestPrivateMessageSuppressedWhenViewing(t *testing.T) {
	bobUser := &domain.User{ID: 2, Username: "bob"}
	env := newRouterEnv(t, bobUser)
	ctx := context.Background()

	alice := newFakeSession(1, "alice")
	bob := newFakeSession(2, "bob")
	env.connect(t, alice)
	env.connect(t, bob)

	// bob is already looking at his chat with alice.
	env.locations.Set(2, realtime.PrivateLocation(1))

	env.router.Dispatch(ctx, alice, realtime.Command{
		Kind:        realtime.CmdPrivateMessage,
		Text:        "secret",
		RecipientID: 2,
	})

	require.Len(t, bob.framesOfType("receive_private_message"), 1, "live delivery still happens")
	assert.Empty(t, bob.framesOfType("notification"))
}

func TestPrivateMessageValidation(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	alice := newFakeSession(1, "alice")
	env.connect(t, alice)

	env.router.Dispatch(ctx, alice, realtime.Command{
		Kind: realtime.CmdPrivateMessage,
		Text: "no recipient",
	})
	errs := alice.framesOfType("error")
	require.Len(t, errs, 1)
	assert.Equal(t, "Missing recipient or message", errs[0]["message"])

	alice.reset()
	env.router.Dispatch(ctx, alice, realtime.Command{
		Kind:        realtime.CmdPrivateMessage,
		Text:        "hello",
		RecipientID: 99,
	})
	errs = alice.framesOfType("error")
	require.Len(t, errs, 1)
	assert.Equal(t, "Recipient not found", errs[0]["message"])

	assert.Equal(t, 0, env.messages.count())
}

func TestPinRequiresAdmin(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	alice := newFakeSession(1, "alice")
	env.connect(t, alice)

	env.router.Dispatch(ctx, alice, realtime.Command{
		Kind:      realtime.CmdPinMessage,
		MessageID: 1,
	})
	errs := alice.framesOfType("error")
	require.Len(t, errs, 1)
	assert.Equal(t, "Admin access required", errs[0]["message"])
}

func TestPinMessage(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	admin := newFakeSession(1, "admin")
	admin.profile.IsAdmin = true
	viewer := newFakeSession(2, "bob")
	env.connect(t, admin)
	env.connect(t, viewer)

	env.router.Dispatch(ctx, admin, publicSend("pin me"))
	admin.reset()
	viewer.reset()

	t.Run("MissingID", func(t *testing.T) {
		env.router.Dispatch(ctx, admin, realtime.Command{Kind: realtime.CmdPinMessage})
		errs := admin.framesOfType("error")
		require.Len(t, errs, 1)
		assert.Equal(t, "Message ID required", errs[0]["message"])
		admin.reset()
	})

	t.Run("NotFound", func(t *testing.T) {
		env.router.Dispatch(ctx, admin, realtime.Command{Kind: realtime.CmdPinMessage, MessageID: 42})
		errs := admin.framesOfType("error")
		require.Len(t, errs, 1)
		assert.Equal(t, "Message not found or is private", errs[0]["message"])
		admin.reset()
	})

	t.Run("Success", func(t *testing.T) {
		env.router.Dispatch(ctx, admin, realtime.Command{Kind: realtime.CmdPinMessage, MessageID: 1})

		ok := admin.framesOfType("success")
		require.Len(t, ok, 1)
		assert.Equal(t, "Message pinned successfully", ok[0]["message"])

		pinned := viewer.framesOfType("update_pinned")
		require.Len(t, pinned, 1)
		assert.Equal(t, int64(1), pinned[0]["message_id"])

		msg, _ := env.messages.GetByID(ctx, 1)
		assert.True(t, msg.Pinned)
		admin.reset()
		viewer.reset()
	})

	t.Run("Unpin", func(t *testing.T) {
		env.router.Dispatch(ctx, admin, realtime.Command{Kind: realtime.CmdUnpinMessage, MessageID: 1})

		ok := admin.framesOfType("success")
		require.Len(t, ok, 1)
		assert.Equal(t, "Message unpinned successfully", ok[0]["message"])
		require.Len(t, viewer.framesOfType("update_unpinned"), 1)

		msg, _ := env.messages.GetByID(ctx, 1)
		assert.False(t, msg.Pinned)
	})
}

func TestPinPrivateMessageRejected(t *testing.T) {
	bobUser := &domain.User{ID: 2, Username: "bob"}
	env := newRouterEnv(t, bobUser)
	ctx := context.Background()

	admin := newFakeSession(1, "admin")
	admin.profile.IsAdmin = true
	env.connect(t, admin)

	env.router.Dispatch(ctx, admin, realtime.Command{
		Kind:        realtime.CmdPrivateMessage,
		Text:        "private",
		RecipientID: 2,
	})
	admin.reset()

	env.router.Dispatch(ctx, admin, realtime.Command{Kind: realtime.CmdPinMessage, MessageID: 1})
	errs := admin.framesOfType("error")
	require.Len(t, errs, 1)
	assert.Equal(t, "Message not found or is private", errs[0]["message"])
}

func TestTypingIndicators(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	alice := newFakeSession(1, "alice")
	bob := newFakeSession(2, "bob")
	carol := newFakeSession(3, "carol")
	for _, s := range []*fakeSession{alice, bob, carol} {
		env.connect(t, s)
	}

	// Public typing reaches everyone but the typist.
	env.router.Dispatch(ctx, alice, realtime.Command{Kind: realtime.CmdTyping, IsTyping: true})
	assert.Empty(t, alice.framesOfType("user_typing"))
	require.Len(t, bob.framesOfType("user_typing"), 1)
	require.Len(t, carol.framesOfType("user_typing"), 1)

	frame := bob.framesOfType("user_typing")[0]
	assert.Equal(t, true, frame["is_typing"])
	assert.Equal(t, "public", frame["chat_type"])

	bob.reset()
	carol.reset()

	// Private typing reaches only the recipient.
	env.router.Dispatch(ctx, alice, realtime.Command{
		Kind:        realtime.CmdTyping,
		ChatType:    "private",
		RecipientID: 2,
		IsTyping:    true,
	})
	require.Len(t, bob.framesOfType("user_typing"), 1)
	assert.Empty(t, carol.framesOfType("user_typing"))
}

func TestConnectReplacesPreviousSession(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	first := newFakeSession(1, "alice")
	env.connect(t, first)

	second := newFakeSession(1, "alice")
	second.id = "sess-alice-1-b"
	env.connect(t, second)

	assert.True(t, first.isClosed(), "superseded connection is closed explicitly")
	assert.Len(t, env.registry.Snapshot(), 1)

	// The stale disconnect arriving late must not evict the fresh session.
	env.router.HandleDisconnect(ctx, first)
	assert.Len(t, env.registry.Snapshot(), 1)

	env.router.HandleDisconnect(ctx, second)
	assert.Empty(t, env.registry.Snapshot())
	_, ok := env.locations.Get(1)
	assert.False(t, ok, "location cleared on real disconnect")
}

func TestPresenceEvents(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	alice := newFakeSession(1, "alice")
	env.connect(t, alice)

	bob := newFakeSession(2, "bob")
	env.router.HandleConnect(ctx, bob)

	// alice sees the refreshed roster when bob connects.
	frames := alice.framesOfType("online_users")
	require.NotEmpty(t, frames)
	users, ok := frames[len(frames)-1]["users"].([]realtime.Profile)
	require.True(t, ok)
	assert.Len(t, users, 2)

	alice.reset()
	env.router.Dispatch(ctx, alice, realtime.Command{Kind: realtime.CmdGetOnlineUsers})
	require.Len(t, alice.framesOfType("online_users"), 1)
}

func TestDispatchSurvivesDeadSender(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	alice := newFakeSession(1, "alice")
	env.connect(t, alice)

	// A sender whose socket dies mid-dispatch must not take down the
	// dispatcher; its session just gets closed.
	broken := newFakeSession(5, "mallory")
	env.connect(t, broken)
	broken.sendErr = errors.New("boom")

	assert.NotPanics(t, func() {
		env.router.Dispatch(ctx, broken, publicSend("hi"))
	})
	assert.True(t, broken.isClosed())
	require.Len(t, alice.framesOfType("receive_message"), 1)
}
