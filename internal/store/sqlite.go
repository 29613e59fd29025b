package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/chatrelay.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/chatrelay.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// A single writer keeps receipt batches serialized.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		is_agent INTEGER NOT NULL DEFAULT 0,
		last_seen DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		last_message_id TEXT,
		last_message_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS conversation_participants (
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		PRIMARY KEY (conversation_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id TEXT NOT NULL,
		content TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'sent',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS receipts (
		message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		event TEXT NOT NULL,
		at DATETIME NOT NULL,
		PRIMARY KEY (message_id, user_id, event)
	);

	CREATE INDEX IF NOT EXISTS idx_participants_user ON conversation_participants(user_id);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates or renames a user. An empty id gets a random UUID.
func (s *SQLiteStore) CreateUser(ctx context.Context, id, name string, isAgent bool) (*models.User, error) {
	if id == "" {
		id = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, is_agent, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, is_agent = excluded.is_agent
	`, id, name, isAgent, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	return s.GetUser(ctx, id)
}

// GetUser retrieves a user by ID. Returns nil if not found.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	user := &models.User{}
	var lastSeen sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, is_agent, last_seen, created_at FROM users WHERE id = ?
	`, id).Scan(&user.ID, &user.Name, &user.IsAgent, &lastSeen, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		user.LastSeen = &lastSeen.Time
	}
	return user, nil
}

// TouchLastSeen sets a user's last_seen. Unknown users are ignored.
func (s *SQLiteStore) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_seen = ? WHERE id = ?`, at.UTC(), id)
	return err
}

// CreateConversation creates a conversation with its participant list.
func (s *SQLiteStore) CreateConversation(ctx context.Context, id string, participants []string) (*models.Conversation, error) {
	if id == "" {
		id = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, created_at) VALUES (?, ?)
	`, id, time.Now().UTC()); err != nil {
		return nil, err
	}
	for _, p := range participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO conversation_participants (conversation_id, user_id) VALUES (?, ?)
		`, id, p); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetConversation(ctx, id)
}

// GetConversation retrieves a conversation. Returns nil if not found.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv := &models.Conversation{}
	var lastID sql.NullString
	var lastAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, last_message_id, last_message_at, created_at FROM conversations WHERE id = ?
	`, id).Scan(&conv.ID, &lastID, &lastAt, &conv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	conv.LastMessageID = lastID.String
	if lastAt.Valid {
		conv.LastMessageAt = &lastAt.Time
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM conversation_participants WHERE conversation_id = ? ORDER BY user_id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		conv.Participants = append(conv.Participants, p)
	}
	return conv, rows.Err()
}

// Participants lists a conversation's participants with their profiles.
// Identities without a user row come back with only their ID set.
func (s *SQLiteStore) Participants(ctx context.Context, conversationID string) ([]models.User, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, conversationID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.user_id, COALESCE(u.name, ''), COALESCE(u.is_agent, 0)
		FROM conversation_participants p
		LEFT JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id = ?
		ORDER BY p.user_id
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.IsAgent); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateMessage persists a message, assigning its permanent ULID and timestamp.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	msg.ID = ulid.Make().String()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.Status = models.StatusSent

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.Status, msg.CreatedAt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET last_message_id = ?, last_message_at = ? WHERE id = ?
	`, msg.ID, msg.CreatedAt, msg.ConversationID); err != nil {
		return err
	}
	return tx.Commit()
}

// ListMessages returns the most recent messages of a conversation, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, content, status, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY id DESC LIMIT ?
	`, conversationID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// MessageSenders maps each id that belongs to the conversation to its sender.
// Unknown ids are absent from the result.
func (s *SQLiteStore) MessageSenders(ctx context.Context, conversationID string, ids []string) (map[string]string, error) {
	senders := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return senders, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, conversationID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id FROM messages
		WHERE conversation_id = ? AND id IN (`+placeholders(len(ids))+`)
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, sender string
		if err := rows.Scan(&id, &sender); err != nil {
			return nil, err
		}
		senders[id] = sender
	}
	return senders, rows.Err()
}

// UnreadCount counts messages addressed to userID that userID has not seen.
func (s *SQLiteStore) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages m
		JOIN conversation_participants p ON p.conversation_id = m.conversation_id AND p.user_id = ?
		WHERE m.sender_id <> ?
		AND NOT EXISTS (
			SELECT 1 FROM receipts r WHERE r.message_id = m.id AND r.user_id = ? AND r.event = 'seen'
		)
	`, userID, userID, userID).Scan(&count)
	return count, err
}

// Receipts returns every receipt recorded for the given messages.
func (s *SQLiteStore) Receipts(ctx context.Context, ids []string) ([]models.Receipt, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, user_id, event, at FROM receipts
		WHERE message_id IN (`+placeholders(len(ids))+`)
		ORDER BY at
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []models.Receipt
	for rows.Next() {
		var r models.Receipt
		if err := rows.Scan(&r.MessageID, &r.UserID, &r.Event, &r.At); err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

// ApplyReceipts appends receipts and advances message statuses in one
// transaction. Duplicate receipts are ignored and statuses never move back.
func (s *SQLiteStore) ApplyReceipts(ctx context.Context, batch models.ReceiptBatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range batch.Receipts {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO receipts (message_id, user_id, event, at) VALUES (?, ?, ?, ?)
		`, r.MessageID, r.UserID, r.Event, r.At.UTC()); err != nil {
			return err
		}
	}
	for id, status := range batch.Statuses {
		if _, err := tx.ExecContext(ctx, `
			UPDATE messages SET status = ? WHERE id = ? AND `+statusRankSQL+` < ?
		`, status, id, status.Rank()); err != nil {
			return err
		}
	}

	return tx.Commit()
}
