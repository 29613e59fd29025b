package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

// ErrNotFound is returned when a conversation referenced by a relay
// operation does not exist.
var ErrNotFound = errors.New("not found")

// DataStore defines persistent storage for users, conversations, messages
// and receipts. Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, id, name string, isAgent bool) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	TouchLastSeen(ctx context.Context, id string, at time.Time) error

	// Conversation operations
	CreateConversation(ctx context.Context, id string, participants []string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	Participants(ctx context.Context, conversationID string) ([]models.User, error)

	// Message operations
	CreateMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	MessageSenders(ctx context.Context, conversationID string, ids []string) (map[string]string, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)

	// Receipt operations
	Receipts(ctx context.Context, ids []string) ([]models.Receipt, error)
	ApplyReceipts(ctx context.Context, batch models.ReceiptBatch) error
}

// LastSeenRecorder writes departures to the users table so lastSeen
// survives restarts without Redis. Online state is never persisted.
type LastSeenRecorder struct {
	DB DataStore
}

// MarkOnline is a no-op.
func (LastSeenRecorder) MarkOnline(context.Context, string, time.Time) error { return nil }

// MarkOffline stores lastSeen on the user row, if there is one.
func (l LastSeenRecorder) MarkOffline(ctx context.Context, userID string, lastSeen time.Time) error {
	return l.DB.TouchLastSeen(ctx, userID, lastSeen)
}

// statusRankSQL mirrors models.Status.Rank so status updates can be made
// forward-only inside the database.
const statusRankSQL = `CASE status WHEN 'sending' THEN 1 WHEN 'sent' THEN 2 WHEN 'delivered' THEN 3 WHEN 'seen' THEN 4 ELSE 0 END`

const defaultMessageLimit = 100

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultMessageLimit
	}
	return limit
}

// placeholders returns "?, ?, ?" for n parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

