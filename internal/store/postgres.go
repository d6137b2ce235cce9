package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/cognivyu/cognivyu/internal/domain"
	"github.com/cognivyu/cognivyu/internal/shared"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// PostgresStore implements Repository using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres opens a PostgreSQL repository and applies pending migrations.
func NewPostgres(dataSourceName string) (Repository, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runPostgresMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &PostgresStore{db: db}, nil
}

func runPostgresMigrations(db *sql.DB) error {
	src, err := iofs.New(postgresMigrations, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateUser inserts a new user.
func (s *PostgresStore) CreateUser(ctx context.Context, user *domain.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (username, email, password_hash, is_verified, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		user.Username, user.Email, user.PasswordHash, user.IsVerified, user.CreatedAt.UnixNano(),
	).Scan(&user.ID)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return fmt.Errorf("create user: %w", ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by numeric ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetUserByUsername retrieves a user by username.
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

// GetUserByEmail retrieves a user by email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (s *PostgresStore) getUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.IsVerified, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	user.CreatedAt = time.Unix(0, createdAt)
	return &user, nil
}

// MarkVerified flags a user as verified.
func (s *PostgresStore) MarkVerified(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_verified = TRUE WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("mark verified: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// DeleteUnverifiedBefore removes stale unverified accounts with no turns.
func (s *PostgresStore) DeleteUnverifiedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM users
		WHERE is_verified = FALSE AND created_at < $1
		  AND NOT EXISTS (SELECT 1 FROM turns WHERE turns.user_id = users.id)`,
		cutoff.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete unverified users: %w", err)
	}
	return res.RowsAffected()
}

// AppendTurn records one exchange.
func (s *PostgresStore) AppendTurn(ctx context.Context, turn *domain.Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO turns (conversation_id, user_id, human_message, bot_message, domain, created_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		turn.ConversationID, turn.UserID, turn.HumanMessage, turn.BotMessage, turn.Domain, turn.CreatedAt.UnixNano(),
	).Scan(&turn.ID)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// RecentTurns returns the newest turns, oldest first.
func (s *PostgresStore) RecentTurns(ctx context.Context, userID int64, conversationID string, limit int) ([]domain.Turn, error) {
	turns, err := s.queryTurns(ctx, `
		SELECT `+turnColumns+` FROM turns
		WHERE user_id = $1 AND conversation_id = $2
		ORDER BY created_at DESC, id DESC LIMIT $3`,
		userID, conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	reverseTurns(turns)
	return turns, nil
}

// ConversationTurns returns all of the user's turns in a conversation, oldest first.
func (s *PostgresStore) ConversationTurns(ctx context.Context, userID int64, conversationID string) ([]domain.Turn, error) {
	return s.queryTurns(ctx, `
		SELECT `+turnColumns+` FROM turns
		WHERE user_id = $1 AND conversation_id = $2
		ORDER BY created_at ASC, id ASC`,
		userID, conversationID,
	)
}

func (s *PostgresStore) queryTurns(ctx context.Context, query string, args ...any) ([]domain.Turn, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close turn rows", "error", closeErr)
		}
	}()

	turns := []domain.Turn{}
	for rows.Next() {
		var t domain.Turn
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.UserID, &t.HumanMessage, &t.BotMessage, &t.Domain, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.CreatedAt = time.Unix(0, createdAt)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return turns, nil
}

// ListConversations returns the user's conversations, most recently active first.
func (s *PostgresStore) ListConversations(ctx context.Context, userID int64) ([]domain.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.conversation_id, MAX(t.created_at) AS updated_at,
		       (SELECT f.human_message FROM turns f
		        WHERE f.user_id = $1 AND f.conversation_id = t.conversation_id
		        ORDER BY f.created_at ASC, f.id ASC LIMIT 1) AS title
		FROM turns t
		WHERE t.user_id = $1
		GROUP BY t.conversation_id
		ORDER BY updated_at DESC, MAX(t.id) DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close conversation rows", "error", closeErr)
		}
	}()

	convs := []domain.ConversationSummary{}
	for rows.Next() {
		var c domain.ConversationSummary
		var updatedAt int64
		if err := rows.Scan(&c.ID, &updatedAt, &c.Title); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		c.UpdatedAt = time.Unix(0, updatedAt)
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return convs, nil
}

// ConversationOwnedByOther reports whether another user has turns in the conversation.
func (s *PostgresStore) ConversationOwnedByOther(ctx context.Context, conversationID string, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM turns WHERE conversation_id = $1 AND user_id <> $2)`,
		conversationID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check conversation owner: %w", err)
	}
	return exists, nil
}
