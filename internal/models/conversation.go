package models

import "time"

// Conversation is a set of participants sharing a message stream.
type Conversation struct {
	ID            string     `json:"id"`
	Participants  []string   `json:"participants"`
	LastMessageID string     `json:"lastMessageId,omitempty"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// HasParticipant reports whether userID takes part in the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
