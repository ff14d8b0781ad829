package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chattrix/internal/domain"
	"chattrix/internal/store/sqlite"
)

type testRepos struct {
	Users         *sqlite.UserRepo
	Messages      *sqlite.MessageRepo
	Conversations *sqlite.ConversationRepo
	Subscriptions *sqlite.SubscriptionRepo
}

func openTestDB(t *testing.T) *testRepos {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	// An in-memory database exists per connection; pin the pool to one.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, sqlite.Migrate(db))

	return &testRepos{
		Users:         sqlite.NewUserRepo(db),
		Messages:      sqlite.NewMessageRepo(db),
		Conversations: sqlite.NewConversationRepo(db),
		Subscriptions: sqlite.NewSubscriptionRepo(db),
	}
}

func seedUser(t *testing.T, users domain.UserRepository, username string) *domain.User {
	t.Helper()
	u := &domain.User{Username: username, HashedPassword: "x"}
	require.NoError(t, users.Create(context.Background(), u))
	return u
}

func TestUserRepo(t *testing.T) {
	repos := openTestDB(t)
	ctx := context.Background()

	alice := seedUser(t, repos.Users, "alice")
	assert.NotZero(t, alice.ID)

	got, err := repos.Users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, alice.ID, got.ID)

	missing, err := repos.Users.GetByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing, "missing rows come back as nil, not an error")

	seedUser(t, repos.Users, "bob")
	all, err := repos.Users.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMessageRepoPublicAndPrivate(t *testing.T) {
	repos := openTestDB(t)
	ctx := context.Background()

	alice := seedUser(t, repos.Users, "alice")
	bob := seedUser(t, repos.Users, "bob")

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pub1 := &domain.Message{SenderID: alice.ID, Text: "public one", CreatedAt: base}
	pub2 := &domain.Message{SenderID: alice.ID, Text: "public two", CreatedAt: base.Add(time.Minute)}
	priv := &domain.Message{
		SenderID:    alice.ID,
		RecipientID: &bob.ID,
		Text:        "private",
		CreatedAt:   base.Add(2 * time.Minute),
		IsPrivate:   true,
	}
	for _, m := range []*domain.Message{pub1, pub2, priv} {
		require.NoError(t, repos.Messages.Create(ctx, m))
		assert.NotZero(t, m.ID)
	}

	public, err := repos.Messages.ListPublic(ctx, 10)
	require.NoError(t, err)
	require.Len(t, public, 2, "private messages never appear in the public feed")
	assert.Equal(t, "public two", public[0].Text, "newest first")

	between, err := repos.Messages.ListBetween(ctx, bob.ID, alice.ID, 10)
	require.NoError(t, err)
	require.Len(t, between, 1)
	assert.Equal(t, "private", between[0].Text)
	require.NotNil(t, between[0].RecipientID)
	assert.Equal(t, bob.ID, *between[0].RecipientID)
}

func TestMessageRepoMarkRead(t *testing.T) {
	repos := openTestDB(t)
	ctx := context.Background()

	alice := seedUser(t, repos.Users, "alice")
	bob := seedUser(t, repos.Users, "bob")

	toBob := &domain.Message{SenderID: alice.ID, RecipientID: &bob.ID, Text: "a->b", CreatedAt: time.Now(), IsPrivate: true}
	toAlice := &domain.Message{SenderID: bob.ID, RecipientID: &alice.ID, Text: "b->a", CreatedAt: time.Now(), IsPrivate: true}
	require.NoError(t, repos.Messages.Create(ctx, toBob))
	require.NoError(t, repos.Messages.Create(ctx, toAlice))

	// bob opens the thread: only alice's messages to bob become read.
	require.NoError(t, repos.Messages.MarkRead(ctx, alice.ID, bob.ID))

	got, err := repos.Messages.GetByID(ctx, toBob.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)

	got, err = repos.Messages.GetByID(ctx, toAlice.ID)
	require.NoError(t, err)
	assert.False(t, got.IsRead, "the other direction stays unread")
}

func TestMessageRepoPinning(t *testing.T) {
	repos := openTestDB(t)
	ctx := context.Background()

	alice := seedUser(t, repos.Users, "alice")
	msg := &domain.Message{SenderID: alice.ID, Text: "pin me", CreatedAt: time.Now()}
	require.NoError(t, repos.Messages.Create(ctx, msg))

	require.NoError(t, repos.Messages.SetPinned(ctx, msg.ID, true))
	pinned, err := repos.Messages.ListPinned(ctx)
	require.NoError(t, err)
	require.Len(t, pinned, 1)
	assert.Equal(t, msg.ID, pinned[0].ID)

	require.NoError(t, repos.Messages.SetPinned(ctx, msg.ID, false))
	pinned, err = repos.Messages.ListPinned(ctx)
	require.NoError(t, err)
	assert.Empty(t, pinned)

	missing, err := repos.Messages.GetByID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestConversationFindOrCreate(t *testing.T) {
	repos := openTestDB(t)
	ctx := context.Background()

	alice := seedUser(t, repos.Users, "alice")
	bob := seedUser(t, repos.Users, "bob")

	c1, err := repos.Conversations.FindOrCreate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.NotNil(t, c1)

	// Reversed operands resolve to the same row.
	c2, err := repos.Conversations.FindOrCreate(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)
	assert.Less(t, c1.User1ID, c1.User2ID, "pair is stored canonically")

	msg := &domain.Message{SenderID: alice.ID, RecipientID: &bob.ID, Text: "hi", CreatedAt: time.Now(), IsPrivate: true}
	require.NoError(t, repos.Messages.Create(ctx, msg))
	require.NoError(t, repos.Conversations.SetLastMessage(ctx, c1.ID, msg.ID, msg.CreatedAt))

	convs, err := repos.Conversations.ListForUser(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.NotNil(t, convs[0].LastMessageID)
	assert.Equal(t, msg.ID, *convs[0].LastMessageID)

	// A third party sees nothing.
	carol := seedUser(t, repos.Users, "carol")
	convs, err = repos.Conversations.ListForUser(ctx, carol.ID)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestSubscriptionRepo(t *testing.T) {
	repos := openTestDB(t)
	ctx := context.Background()

	alice := seedUser(t, repos.Users, "alice")

	sub := &domain.PushSubscription{
		UserID:    alice.ID,
		Endpoint:  "https://push.example/abc",
		P256dhKey: "p256dh",
		AuthKey:   "auth",
	}
	require.NoError(t, repos.Subscriptions.Create(ctx, sub))
	assert.NotZero(t, sub.ID)

	subs, err := repos.Subscriptions.ListForUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "https://push.example/abc", subs[0].Endpoint)

	require.NoError(t, repos.Subscriptions.Delete(ctx, sub.ID))
	subs, err = repos.Subscriptions.ListForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)
}
