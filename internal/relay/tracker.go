package relay

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/eldtechnologies/chatrelay/internal/metrics"
	"github.com/eldtechnologies/chatrelay/internal/models"
	"github.com/eldtechnologies/chatrelay/internal/protocol"
)

// Tracker records delivered/seen receipts and announces aggregate status changes.
type Tracker struct {
	registry      *Registry
	rooms         *Rooms
	store         MessageStore
	conversations Conversations
	log           zerolog.Logger
	timeout       time.Duration
	now           func() time.Time
	locks         keyedMutex
}

// Report records a receipt report sent by connID on behalf of its identity.
func (t *Tracker) Report(ctx context.Context, connID string, rep protocol.ReceiptReport) error {
	identity, ok := t.registry.Identity(connID)
	if !ok {
		return ErrNotAnnounced
	}
	if identity != rep.UserID {
		return ErrIdentityMismatch
	}
	return t.Record(ctx, rep, connID)
}

// Record applies a receipt report. Ids the reporter sent, and ids outside
// the conversation, are skipped. Receipts already on file are not
// recorded again, so a repeated report changes nothing and broadcasts
// nothing. The status event goes to the room minus originConn.
func (t *Tracker) Record(ctx context.Context, rep protocol.ReceiptReport, originConn string) error {
	if !rep.Event.IsReceipt() {
		return fmt.Errorf("%w: receipt event %q", protocol.ErrInvalid, rep.Event)
	}
	ids := lo.Uniq(rep.MessageIDs)

	unlock := t.locks.Lock(rep.ConversationID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	senders, err := t.store.MessageSenders(ctx, rep.ConversationID, ids)
	if err != nil {
		return fmt.Errorf("load senders: %w", err)
	}
	eligible := lo.Filter(ids, func(id string, _ int) bool {
		sender, ok := senders[id]
		return ok && sender != rep.UserID
	})
	if len(eligible) == 0 {
		return nil
	}

	participants, err := t.conversations.Participants(ctx, rep.ConversationID)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	members := lo.Map(participants, func(u models.User, _ int) string { return u.ID })
	if !lo.Contains(members, rep.UserID) {
		return ErrNotParticipant
	}

	existing, err := t.store.Receipts(ctx, eligible)
	if err != nil {
		return fmt.Errorf("load receipts: %w", err)
	}
	onFile := lo.SliceToMap(existing, func(r models.Receipt) (string, struct{}) { return r.Key(), struct{}{} })

	now := t.now()
	fresh := make([]models.Receipt, 0, len(eligible))
	for _, id := range eligible {
		r := models.Receipt{MessageID: id, UserID: rep.UserID, Event: rep.Event, At: now}
		if _, dup := onFile[r.Key()]; !dup {
			fresh = append(fresh, r)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	before := lo.GroupBy(existing, func(r models.Receipt) string { return r.MessageID })
	statuses := make(map[string]models.Status)
	advanced := make(map[models.Status][]string)
	for _, r := range fresh {
		prev := Aggregate(senders[r.MessageID], members, before[r.MessageID])
		next := Aggregate(senders[r.MessageID], members, append(slices.Clip(before[r.MessageID]), r))
		if prev.Advances(next) && next.IsReceipt() {
			statuses[r.MessageID] = next
			advanced[next] = append(advanced[next], r.MessageID)
		}
	}

	start := time.Now()
	err = t.store.ApplyReceipts(ctx, models.ReceiptBatch{Receipts: fresh, Statuses: statuses})
	metrics.PersistLatency.WithLabelValues("apply_receipts").Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("apply receipts: %w", err)
	}
	metrics.ReceiptsRecorded.WithLabelValues(string(rep.Event)).Add(float64(len(fresh)))

	peers := t.registry.Peers(t.rooms.MembersExcept(rep.ConversationID, originConn))
	for _, status := range []models.Status{models.StatusDelivered, models.StatusSeen} {
		if len(advanced[status]) == 0 {
			continue
		}
		broadcast(t.log, peers, protocol.MessageStatus{
			MessageIDs: advanced[status],
			UserID:     rep.UserID,
			Status:     status,
			Timestamp:  now,
		})
	}

	t.log.Debug().
		Str("conversation_id", rep.ConversationID).
		Str("user_id", rep.UserID).
		Str("event", string(rep.Event)).
		Int("recorded", len(fresh)).
		Int("advanced", len(statuses)).
		Msg("receipts recorded")
	return nil
}
