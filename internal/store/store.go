// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/cognivyu/cognivyu/internal/domain"
)

// ErrConflict is returned when an insert violates a uniqueness constraint.
var ErrConflict = errors.New("record already exists")

// Repository defines the interface for persisting users and conversation turns.
// Lookups return (nil, nil) when no row matches.
type Repository interface {
	// CreateUser inserts a user and sets its ID.
	CreateUser(ctx context.Context, user *domain.User) error

	// GetUserByID retrieves a user by numeric ID.
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// MarkVerified flags a user as verified. Returns false if no such user exists.
	MarkVerified(ctx context.Context, id int64) (bool, error)

	// DeleteUnverifiedBefore removes unverified users created before cutoff
	// that have no recorded turns.
	DeleteUnverifiedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// AppendTurn records one exchange and sets its ID.
	AppendTurn(ctx context.Context, turn *domain.Turn) error

	// RecentTurns returns at most limit of the newest turns for the user's
	// conversation, ordered oldest first.
	RecentTurns(ctx context.Context, userID int64, conversationID string, limit int) ([]domain.Turn, error)

	// ConversationTurns returns every turn of the user's conversation, oldest first.
	ConversationTurns(ctx context.Context, userID int64, conversationID string) ([]domain.Turn, error)

	// ListConversations returns the user's conversations, most recently active first.
	ListConversations(ctx context.Context, userID int64) ([]domain.ConversationSummary, error)

	// ConversationOwnedByOther reports whether any turn of the conversation
	// belongs to a different user.
	ConversationOwnedByOther(ctx context.Context, conversationID string, userID int64) (bool, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
