package crypto

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewConnectionID returns a time-ordered id for a transport connection.
func NewConnectionID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewTempID returns a client-side placeholder id for an unconfirmed message.
// The millisecond prefix keeps ids readable in logs; the suffix keeps them
// unique across devices.
func NewTempID() string {
	return fmt.Sprintf("temp-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
