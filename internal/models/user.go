package models

import "time"

// User is a chat identity. Scripted participants have IsAgent set.
type User struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	IsAgent   bool       `json:"isAgent"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Presence is the online state of an identity.
type Presence struct {
	UserID   string     `json:"userId"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}
