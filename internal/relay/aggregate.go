package relay

import "github.com/eldtechnologies/chatrelay/internal/models"

// Aggregate computes a message's sender-facing status from its receipts:
// the least progress any non-sender participant has made. A seen receipt
// counts as delivered too. With no recipients the message stays sent.
func Aggregate(senderID string, participants []string, receipts []models.Receipt) models.Status {
	progress := make(map[string]models.Status, len(participants))
	for _, r := range receipts {
		if r.Event.IsReceipt() {
			progress[r.UserID] = models.Max(progress[r.UserID], r.Event)
		}
	}

	agg := models.StatusSeen
	recipients := 0
	for _, p := range participants {
		if p == senderID {
			continue
		}
		recipients++
		st, ok := progress[p]
		if !ok {
			return models.StatusSent
		}
		agg = models.Min(agg, st)
	}
	if recipients == 0 {
		return models.StatusSent
	}
	return agg
}
