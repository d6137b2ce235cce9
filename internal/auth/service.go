// Package auth implements account registration, email verification,
// password login and Google sign-in.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	netmail "net/mail"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cognivyu/cognivyu/internal/domain"
	"github.com/cognivyu/cognivyu/internal/identity"
	"github.com/cognivyu/cognivyu/internal/mail"
	"github.com/cognivyu/cognivyu/internal/store"
)

// Account errors. Handlers map these to client-facing messages.
var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidInput       = errors.New("invalid registration data")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrUserNotFound       = errors.New("user not found")
	// ErrAccountPending is returned when a Google sign-in matches an account
	// whose email was never verified.
	ErrAccountPending = errors.New("account awaiting email verification")
)

// VerifyOutcome is the result of a successful verification request.
type VerifyOutcome int

const (
	Verified VerifyOutcome = iota
	AlreadyVerified
)

// UserStore is the persistence the auth service needs.
type UserStore interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	MarkVerified(ctx context.Context, id int64) (bool, error)
}

// Mailer queues outbound mail.
type Mailer interface {
	Enqueue(msg mail.Message) error
}

// RegisterInput is the body of a registration request.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Service holds account operations.
type Service struct {
	users     UserStore
	issuer    *identity.Issuer
	mailer    Mailer
	publicURL string
}

// NewService creates an auth service. publicURL is the externally reachable
// base URL used in verification links.
func NewService(users UserStore, issuer *identity.Issuer, mailer Mailer, publicURL string) *Service {
	return &Service{
		users:     users,
		issuer:    issuer,
		mailer:    mailer,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// Register creates an unverified account and queues its verification email.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Password == "" {
		return nil, ErrInvalidInput
	}
	if _, err := netmail.ParseAddress(in.Email); err != nil {
		return nil, ErrInvalidInput
	}

	existing, err := s.users.GetUserByUsername(ctx, in.Username)
	if err != nil {
		return nil, fmt.Errorf("lookup username: %w", err)
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}
	existing, err = s.users.GetUserByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("lookup email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, ErrInvalidInput
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// lost a race with a concurrent registration
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.sendVerification(ctx, user)
	return user, nil
}

func (s *Service) sendVerification(ctx context.Context, user *domain.User) {
	token, err := s.issuer.IssueVerificationToken(user.ID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to issue verification token", "user_id", user.ID, "error", err)
		return
	}
	link := s.publicURL + "/verify?token=" + url.QueryEscape(token)
	msg, err := mail.VerificationEmail(user.Email, user.Username, link)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to render verification email", "user_id", user.ID, "error", err)
		return
	}
	if err := s.mailer.Enqueue(msg); err != nil {
		slog.WarnContext(ctx, "Failed to queue verification email", "user_id", user.ID, "error", err)
	}
}

// Verify marks the user named by a verification token as verified.
func (s *Service) Verify(ctx context.Context, token string) (VerifyOutcome, error) {
	userID, err := s.issuer.ParseVerificationToken(token)
	if err != nil {
		return 0, err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return 0, ErrUserNotFound
	}
	if user.IsVerified {
		return AlreadyVerified, nil
	}

	ok, err := s.users.MarkVerified(ctx, user.ID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrUserNotFound
	}
	return Verified, nil
}

// Login checks credentials and returns an access token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("lookup user: %w", err)
	}
	if user == nil || !user.HasPassword() {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	if !user.IsVerified {
		return "", ErrEmailNotVerified
	}
	return s.issuer.IssueAccessToken(user.Username)
}
