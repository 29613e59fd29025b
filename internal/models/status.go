package models

// Status is the sender-side progress of a message.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusSeen      Status = "seen"
)

// Rank orders statuses along the delivery ladder. Unknown values rank lowest.
func (s Status) Rank() int {
	switch s {
	case StatusSending:
		return 1
	case StatusSent:
		return 2
	case StatusDelivered:
		return 3
	case StatusSeen:
		return 4
	default:
		return 0
	}
}

// Advances reports whether moving from s to next is a strictly forward step.
func (s Status) Advances(next Status) bool {
	return next.Rank() > s.Rank()
}

// IsReceipt reports whether s is an event a recipient can report.
func (s Status) IsReceipt() bool {
	return s == StatusDelivered || s == StatusSeen
}

// Max returns the further of two statuses.
func Max(a, b Status) Status {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Min returns the lesser of two statuses.
func Min(a, b Status) Status {
	if b.Rank() < a.Rank() {
		return b
	}
	return a
}
