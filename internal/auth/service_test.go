package auth

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognivyu/cognivyu/internal/domain"
	"github.com/cognivyu/cognivyu/internal/identity"
	"github.com/cognivyu/cognivyu/internal/mail"
	"github.com/cognivyu/cognivyu/internal/store"
)

type memUsers struct {
	mu     sync.Mutex
	nextID int64
	users  []*domain.User
}

func (m *memUsers) CreateUser(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.users {
		if e.Username == u.Username || e.Email == u.Email {
			return store.ErrConflict
		}
	}
	m.nextID++
	u.ID = m.nextID
	cp := *u
	m.users = append(m.users, &cp)
	return nil
}

func (m *memUsers) find(match func(*domain.User) bool) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp
		}
	}
	return nil
}

func (m *memUsers) GetUserByID(_ context.Context, id int64) (*domain.User, error) {
	return m.find(func(u *domain.User) bool { return u.ID == id }), nil
}

func (m *memUsers) GetUserByUsername(_ context.Context, name string) (*domain.User, error) {
	return m.find(func(u *domain.User) bool { return u.Username == name }), nil
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	return m.find(func(u *domain.User) bool { return u.Email == email }), nil
}

func (m *memUsers) MarkVerified(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			u.IsVerified = true
			return true, nil
		}
	}
	return false, nil
}

type memMailer struct {
	msgs []mail.Message
}

func (m *memMailer) Enqueue(msg mail.Message) error {
	m.msgs = append(m.msgs, msg)
	return nil
}

func newTestService() (*Service, *memUsers, *memMailer, *identity.Issuer) {
	users := &memUsers{}
	mailer := &memMailer{}
	iss := identity.NewIssuer("test-secret", time.Hour)
	return NewService(users, iss, mailer, "http://localhost:8000/"), users, mailer, iss
}

func verificationToken(t *testing.T, msg mail.Message) string {
	t.Helper()
	i := strings.Index(msg.HTML, "/verify?token=")
	require.GreaterOrEqual(t, i, 0)
	rest := msg.HTML[i+len("/verify?token="):]
	raw := rest[:strings.IndexByte(rest, '"')]
	tok, err := url.QueryUnescape(raw)
	require.NoError(t, err)
	return tok
}

func TestRegisterVerifyLogin(t *testing.T) {
	svc, users, mailer, iss := newTestService()
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "pw123"})
	require.NoError(t, err)
	assert.NotEqual(t, "pw123", u.PasswordHash)
	assert.False(t, u.IsVerified)

	require.Len(t, mailer.msgs, 1)
	assert.Equal(t, "alice@example.com", mailer.msgs[0].To)
	assert.Contains(t, mailer.msgs[0].HTML, "http://localhost:8000/verify?token=")

	_, err = svc.Login(ctx, "alice", "pw123")
	assert.ErrorIs(t, err, ErrEmailNotVerified)

	tok := verificationToken(t, mailer.msgs[0])
	outcome, err := svc.Verify(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, Verified, outcome)

	outcome, err = svc.Verify(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, AlreadyVerified, outcome)

	access, err := svc.Login(ctx, "alice", "pw123")
	require.NoError(t, err)
	name, err := iss.ParseAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	_, err = svc.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody", "pw123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.Len(t, users.users, 1)
}

func TestRegister_Duplicates(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "pw"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Username: "alice", Email: "new@example.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = svc.Register(ctx, RegisterInput{Username: "bob", Email: "alice@example.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegister_InvalidInput(t *testing.T) {
	svc, _, _, _ := newTestService()
	tests := []RegisterInput{
		{Username: "", Email: "a@example.com", Password: "pw"},
		{Username: "a", Email: "not-an-email", Password: "pw"},
		{Username: "a", Email: "a@example.com", Password: ""},
		{Username: "a", Email: "a@example.com", Password: strings.Repeat("x", 100)},
	}
	for _, in := range tests {
		_, err := svc.Register(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidInput, "%+v", in)
	}
}

func TestVerify_Errors(t *testing.T) {
	svc, _, _, iss := newTestService()
	ctx := context.Background()

	_, err := svc.Verify(ctx, "garbage")
	assert.ErrorIs(t, err, identity.ErrInvalidToken)

	tok, err := iss.IssueVerificationToken(999)
	require.NoError(t, err)
	_, err = svc.Verify(ctx, tok)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGoogleSignIn(t *testing.T) {
	svc, users, _, iss := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Username: "Alice Smith", Email: "other@example.com", Password: "pw"})
	require.NoError(t, err)

	tok, err := svc.GoogleSignIn(ctx, &GoogleUserInfo{Email: "alice@gmail.com", EmailVerified: true, Name: "Alice Smith"})
	require.NoError(t, err)
	name, err := iss.ParseAccessToken(tok)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "Alice Smith-"), name)

	created, _ := users.GetUserByEmail(ctx, "alice@gmail.com")
	require.NotNil(t, created)
	assert.True(t, created.IsVerified)
	assert.False(t, created.HasPassword())

	// second sign-in reuses the account
	tok2, err := svc.GoogleSignIn(ctx, &GoogleUserInfo{Email: "alice@gmail.com", EmailVerified: true, Name: "Alice Smith"})
	require.NoError(t, err)
	name2, err := iss.ParseAccessToken(tok2)
	require.NoError(t, err)
	assert.Equal(t, name, name2)

	// google accounts cannot use password login
	_, err = svc.Login(ctx, name, "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	tok3, err := svc.GoogleSignIn(ctx, &GoogleUserInfo{Email: "bob@gmail.com", EmailVerified: true})
	require.NoError(t, err)
	name3, err := iss.ParseAccessToken(tok3)
	require.NoError(t, err)
	assert.Equal(t, "bob", name3)
}

func TestGoogleSignIn_Refusals(t *testing.T) {
	svc, users, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.GoogleSignIn(ctx, &GoogleUserInfo{Email: "carol@gmail.com", Name: "Carol"})
	assert.ErrorIs(t, err, ErrEmailNotVerified)
	created, _ := users.GetUserByEmail(ctx, "carol@gmail.com")
	assert.Nil(t, created)

	// someone registered the victim's address with a password but never verified it
	_, err = svc.Register(ctx, RegisterInput{Username: "squatter", Email: "dave@gmail.com", Password: "pw"})
	require.NoError(t, err)

	_, err = svc.GoogleSignIn(ctx, &GoogleUserInfo{Email: "dave@gmail.com", EmailVerified: true, Name: "Dave"})
	assert.ErrorIs(t, err, ErrAccountPending)

	squatter, _ := users.GetUserByUsername(ctx, "squatter")
	require.NotNil(t, squatter)
	assert.False(t, squatter.IsVerified)
}

func TestGoogleSignIn_LinksVerifiedAccount(t *testing.T) {
	svc, users, _, iss := newTestService()
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{Username: "erin", Email: "erin@gmail.com", Password: "pw"})
	require.NoError(t, err)
	_, err = users.MarkVerified(ctx, u.ID)
	require.NoError(t, err)

	tok, err := svc.GoogleSignIn(ctx, &GoogleUserInfo{Email: "erin@gmail.com", EmailVerified: true})
	require.NoError(t, err)
	name, err := iss.ParseAccessToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "erin", name)
}
