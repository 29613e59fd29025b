package models

import "time"

// Message represents a persisted chat message.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Receipt records that a recipient reached a delivery event for a message.
// Receipts are append-only and unique per (MessageID, UserID, Event).
type Receipt struct {
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	Event     Status    `json:"event"`
	At        time.Time `json:"at"`
}

// Key identifies the receipt for deduplication.
func (r Receipt) Key() string {
	return r.MessageID + "|" + r.UserID + "|" + string(r.Event)
}

// ReceiptBatch is a set of new receipts together with the aggregate
// statuses they produce. Stores apply a batch atomically.
type ReceiptBatch struct {
	Receipts []Receipt
	Statuses map[string]Status
}
