package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognivyu/cognivyu/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func createUser(t *testing.T, repo Repository, name string) *domain.User {
	t.Helper()
	u := &domain.User{Username: name, Email: name + "@example.com", PasswordHash: "hash"}
	require.NoError(t, repo.CreateUser(context.Background(), u))
	return u
}

func TestSQLite_Users(t *testing.T) {
	testRepositoryUsers(t, newTestStore(t))
}

func testRepositoryUsers(t *testing.T, repo Repository) {
	ctx := context.Background()

	u := createUser(t, repo, "alice")
	assert.NotZero(t, u.ID)

	got, err := repo.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, "hash", got.PasswordHash)
	assert.False(t, got.IsVerified)

	byEmail, err := repo.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, u.ID, byEmail.ID)

	missing, err := repo.GetUserByID(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	ok, err := repo.MarkVerified(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err = repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.IsVerified)

	ok, err = repo.MarkVerified(ctx, 9999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLite_CreateUserConflict(t *testing.T) {
	testRepositoryCreateUserConflict(t, newTestStore(t))
}

func testRepositoryCreateUserConflict(t *testing.T, repo Repository) {
	createUser(t, repo, "alice")

	err := repo.CreateUser(context.Background(), &domain.User{Username: "alice", Email: "other@example.com"})
	assert.ErrorIs(t, err, ErrConflict)

	err = repo.CreateUser(context.Background(), &domain.User{Username: "bob", Email: "alice@example.com"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSQLite_TurnsAndHistory(t *testing.T) {
	testRepositoryTurnsAndHistory(t, newTestStore(t))
}

func testRepositoryTurnsAndHistory(t *testing.T, repo Repository) {
	ctx := context.Background()
	alice := createUser(t, repo, "alice")
	bob := createUser(t, repo, "bob")

	base := time.Now()
	for i := 0; i < 7; i++ {
		turn := &domain.Turn{
			ConversationID: "c1",
			UserID:         alice.ID,
			HumanMessage:   "q" + string(rune('1'+i)),
			BotMessage:     "a" + string(rune('1'+i)),
			Domain:         "Finance & Budgeting",
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, repo.AppendTurn(ctx, turn))
		assert.NotZero(t, turn.ID)
	}

	recent, err := repo.RecentTurns(ctx, alice.ID, "c1", 5)
	require.NoError(t, err)
	require.Len(t, recent, 5)
	assert.Equal(t, "q3", recent[0].HumanMessage)
	assert.Equal(t, "q7", recent[4].HumanMessage)

	all, err := repo.ConversationTurns(ctx, alice.ID, "c1")
	require.NoError(t, err)
	require.Len(t, all, 7)
	assert.Equal(t, "q1", all[0].HumanMessage)
	assert.Equal(t, "Finance & Budgeting", all[0].Domain)

	foreign, err := repo.ConversationTurns(ctx, bob.ID, "c1")
	require.NoError(t, err)
	assert.Empty(t, foreign)

	owned, err := repo.ConversationOwnedByOther(ctx, "c1", bob.ID)
	require.NoError(t, err)
	assert.True(t, owned)
	owned, err = repo.ConversationOwnedByOther(ctx, "c1", alice.ID)
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestSQLite_ListConversations(t *testing.T) {
	testRepositoryListConversations(t, newTestStore(t))
}

func testRepositoryListConversations(t *testing.T, repo Repository) {
	ctx := context.Background()
	alice := createUser(t, repo, "alice")
	bob := createUser(t, repo, "bob")

	base := time.Now()
	add := func(userID int64, conv, msg string, offset int) {
		require.NoError(t, repo.AppendTurn(ctx, &domain.Turn{
			ConversationID: conv, UserID: userID, HumanMessage: msg, BotMessage: "ok",
			CreatedAt: base.Add(time.Duration(offset) * time.Second),
		}))
	}
	add(alice.ID, "a", "budget help", 0)
	add(alice.ID, "b", "visa tips", 1)
	add(alice.ID, "a", "more budget", 2)
	add(bob.ID, "z", "bob's chat", 3)
	// same activity time as "a"; the later insert wins the tie
	add(alice.ID, "c", "garden shed", 2)

	convs, err := repo.ListConversations(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, convs, 3)
	assert.Equal(t, "c", convs[0].ID)
	assert.Equal(t, "garden shed", convs[0].Title)
	assert.Equal(t, "a", convs[1].ID)
	assert.Equal(t, "budget help", convs[1].Title)
	assert.Equal(t, "b", convs[2].ID)
	assert.Equal(t, "visa tips", convs[2].Title)

	none, err := repo.ListConversations(ctx, 9999)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLite_DeleteUnverifiedBefore(t *testing.T) {
	testRepositoryDeleteUnverifiedBefore(t, newTestStore(t))
}

func testRepositoryDeleteUnverifiedBefore(t *testing.T, repo Repository) {
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	stale := &domain.User{Username: "stale", Email: "stale@example.com", CreatedAt: old}
	require.NoError(t, repo.CreateUser(ctx, stale))
	verified := &domain.User{Username: "verified", Email: "v@example.com", IsVerified: true, CreatedAt: old}
	require.NoError(t, repo.CreateUser(ctx, verified))
	active := &domain.User{Username: "active", Email: "a@example.com", CreatedAt: old}
	require.NoError(t, repo.CreateUser(ctx, active))
	require.NoError(t, repo.AppendTurn(ctx, &domain.Turn{ConversationID: "c", UserID: active.ID, HumanMessage: "q", BotMessage: "a"}))
	fresh := createUser(t, repo, "fresh")

	n, err := repo.DeleteUnverifiedBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	gone, err := repo.GetUserByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	for _, id := range []int64{verified.ID, active.ID, fresh.ID} {
		u, err := repo.GetUserByID(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, u)
	}
}

func TestSQLite_Ping(t *testing.T) {
	testRepositoryPing(t, newTestStore(t))
}

func testRepositoryPing(t *testing.T, repo Repository) {
	assert.NoError(t, repo.Ping(context.Background()))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("mysql", "", "")
	assert.Error(t, err)
}
