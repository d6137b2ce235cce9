package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cognivyu/cognivyu/internal/domain"
	"github.com/cognivyu/cognivyu/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL DEFAULT '',
		is_verified INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_unverified ON users(created_at) WHERE is_verified = 0;

	CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		human_message TEXT NOT NULL,
		bot_message TEXT NOT NULL,
		domain TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_turns_user ON turns(user_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// execWithRetry runs a write, retrying SQLITE_BUSY errors with exponential backoff.
func (s *SQLiteStore) execWithRetry(ctx context.Context, op string, query string, args ...any) (sql.Result, error) {
	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			break
		}
		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("SQLite write busy, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

const userColumns = `id, username, email, password_hash, is_verified, created_at`

// CreateUser inserts a new user.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	res, err := s.execWithRetry(ctx, "create_user",
		`INSERT INTO users (username, email, password_hash, is_verified, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.Username, user.Email, user.PasswordHash, user.IsVerified, user.CreatedAt.UnixNano(),
	)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return fmt.Errorf("create user: %w", ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get user id: %w", err)
	}
	user.ID = id
	return nil
}

// GetUserByID retrieves a user by numeric ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (s *SQLiteStore) getUser(ctx context.Context, query string, arg any) (*domain.User, error) {
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
func (s *SQLiteStore) MarkVerified(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, "mark_verified", `UPDATE users SET is_verified = 1 WHERE id = ?`, id)
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
func (s *SQLiteStore) DeleteUnverifiedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, "delete_unverified", `
		DELETE FROM users
		WHERE is_verified = 0 AND created_at < ?
		  AND NOT EXISTS (SELECT 1 FROM turns WHERE turns.user_id = users.id)`,
		cutoff.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete unverified users: %w", err)
	}
	return res.RowsAffected()
}

// AppendTurn records one exchange.
func (s *SQLiteStore) AppendTurn(ctx context.Context, turn *domain.Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	res, err := s.execWithRetry(ctx, "append_turn", `
		INSERT INTO turns (conversation_id, user_id, human_message, bot_message, domain, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		turn.ConversationID, turn.UserID, turn.HumanMessage, turn.BotMessage, turn.Domain, turn.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get turn id: %w", err)
	}
	turn.ID = id
	return nil
}

const turnColumns = `id, conversation_id, user_id, human_message, bot_message, domain, created_at`

// RecentTurns returns the newest turns, oldest first.
func (s *SQLiteStore) RecentTurns(ctx context.Context, userID int64, conversationID string, limit int) ([]domain.Turn, error) {
	turns, err := s.queryTurns(ctx, `
		SELECT `+turnColumns+` FROM turns
		WHERE user_id = ? AND conversation_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	reverseTurns(turns)
	return turns, nil
}

// ConversationTurns returns all of the user's turns in a conversation, oldest first.
func (s *SQLiteStore) ConversationTurns(ctx context.Context, userID int64, conversationID string) ([]domain.Turn, error) {
	return s.queryTurns(ctx, `
		SELECT `+turnColumns+` FROM turns
		WHERE user_id = ? AND conversation_id = ?
		ORDER BY created_at ASC, id ASC`,
		userID, conversationID,
	)
}

func (s *SQLiteStore) queryTurns(ctx context.Context, query string, args ...any) ([]domain.Turn, error) {
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

// ListConversations returns the user's conversations titled by their first
// human message, most recently active first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID int64) ([]domain.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.conversation_id, MAX(t.created_at) AS updated_at,
		       (SELECT f.human_message FROM turns f
		        WHERE f.user_id = ? AND f.conversation_id = t.conversation_id
		        ORDER BY f.created_at ASC, f.id ASC LIMIT 1) AS title
		FROM turns t
		WHERE t.user_id = ?
		GROUP BY t.conversation_id
		ORDER BY updated_at DESC, MAX(t.id) DESC`,
		userID, userID,
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
func (s *SQLiteStore) ConversationOwnedByOther(ctx context.Context, conversationID string, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM turns WHERE conversation_id = ? AND user_id != ?)`,
		conversationID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check conversation owner: %w", err)
	}
	return exists, nil
}

func reverseTurns(turns []domain.Turn) {
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
}
