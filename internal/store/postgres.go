package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		is_agent BOOLEAN NOT NULL DEFAULT FALSE,
		last_seen TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		last_message_id TEXT,
		last_message_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS receipts (
		message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		event TEXT NOT NULL,
		at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (message_id, user_id, event)
	);

	CREATE INDEX IF NOT EXISTS idx_participants_user ON conversation_participants(user_id);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);
	`)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates or renames a user. An empty id gets a random UUID.
func (s *PostgresStore) CreateUser(ctx context.Context, id, name string, isAgent bool) (*models.User, error) {
	if id == "" {
		id = uuid.New().String()
	}

	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, name, is_agent) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, is_agent = EXCLUDED.is_agent
		RETURNING id, name, is_agent, last_seen, created_at
	`, id, name, isAgent).Scan(&user.ID, &user.Name, &user.IsAgent, &user.LastSeen, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a user by ID. Returns nil if not found.
func (s *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, is_agent, last_seen, created_at FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Name, &user.IsAgent, &user.LastSeen, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// TouchLastSeen sets a user's last_seen. Unknown users are ignored.
func (s *PostgresStore) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET last_seen = $1 WHERE id = $2`, at, id)
	return err
}

// CreateConversation creates a conversation with its participant list.
func (s *PostgresStore) CreateConversation(ctx context.Context, id string, participants []string) (*models.Conversation, error) {
	if id == "" {
		id = uuid.New().String()
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO conversations (id) VALUES ($1)`, id); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id)
			SELECT $1, unnest($2::text[])
			ON CONFLICT DO NOTHING
		`, id, participants)
		return err
	})
	if err != nil {
		return nil, err
	}

	return s.GetConversation(ctx, id)
}

// GetConversation retrieves a conversation. Returns nil if not found.
func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv := &models.Conversation{}
	var lastID *string
	err := s.pool.QueryRow(ctx, `
		SELECT c.id, c.last_message_id, c.last_message_at, c.created_at,
			COALESCE(ARRAY(SELECT user_id FROM conversation_participants p WHERE p.conversation_id = c.id ORDER BY user_id), '{}')
		FROM conversations c WHERE c.id = $1
	`, id).Scan(&conv.ID, &lastID, &conv.LastMessageAt, &conv.CreatedAt, &conv.Participants)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastID != nil {
		conv.LastMessageID = *lastID
	}
	return conv, nil
}

// Participants lists a conversation's participants with their profiles.
func (s *PostgresStore) Participants(ctx context.Context, conversationID string) ([]models.User, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)
	`, conversationID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT p.user_id, COALESCE(u.name, ''), COALESCE(u.is_agent, FALSE)
		FROM conversation_participants p
		LEFT JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id = $1
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
func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	msg.ID = ulid.Make().String()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.Status = models.StatusSent

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO messages (id, conversation_id, sender_id, content, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, msg.ID, msg.ConversationID, msg.SenderID, msg.Content, string(msg.Status), msg.CreatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE conversations SET last_message_id = $1, last_message_at = $2 WHERE id = $3
		`, msg.ID, msg.CreatedAt, msg.ConversationID)
		return err
	})
}

// ListMessages returns the most recent messages of a conversation, oldest first.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, content, status, created_at
		FROM messages WHERE conversation_id = $1
		ORDER BY id DESC LIMIT $2
	`, conversationID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var status string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &status, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Status = models.Status(status)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// MessageSenders maps each id that belongs to the conversation to its sender.
func (s *PostgresStore) MessageSenders(ctx context.Context, conversationID string, ids []string) (map[string]string, error) {
	senders := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return senders, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, sender_id FROM messages WHERE conversation_id = $1 AND id = ANY($2)
	`, conversationID, ids)
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
func (s *PostgresStore) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages m
		JOIN conversation_participants p ON p.conversation_id = m.conversation_id AND p.user_id = $1
		WHERE m.sender_id <> $1
		AND NOT EXISTS (
			SELECT 1 FROM receipts r WHERE r.message_id = m.id AND r.user_id = $1 AND r.event = 'seen'
		)
	`, userID).Scan(&count)
	return count, err
}

// Receipts returns every receipt recorded for the given messages.
func (s *PostgresStore) Receipts(ctx context.Context, ids []string) ([]models.Receipt, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT message_id, user_id, event, at FROM receipts WHERE message_id = ANY($1) ORDER BY at
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []models.Receipt
	for rows.Next() {
		var r models.Receipt
		var event string
		if err := rows.Scan(&r.MessageID, &r.UserID, &event, &r.At); err != nil {
			return nil, err
		}
		r.Event = models.Status(event)
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

// ApplyReceipts appends receipts and advances message statuses in one
// transaction. Duplicate receipts are ignored and statuses never move back.
func (s *PostgresStore) ApplyReceipts(ctx context.Context, batch models.ReceiptBatch) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, r := range batch.Receipts {
			b.Queue(`
				INSERT INTO receipts (message_id, user_id, event, at) VALUES ($1, $2, $3, $4)
				ON CONFLICT DO NOTHING
			`, r.MessageID, r.UserID, string(r.Event), r.At)
		}
		for id, status := range batch.Statuses {
			b.Queue(`
				UPDATE messages SET status = $1 WHERE id = $2 AND `+statusRankSQL+` < $3
			`, string(status), id, status.Rank())
		}
		if b.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, b).Close()
	})
}
