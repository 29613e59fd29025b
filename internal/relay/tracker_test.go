package relay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/chatrelay/internal/models"
	"github.com/eldtechnologies/chatrelay/internal/protocol"
)

func seen(conversationID, user string, ids ...string) protocol.ReceiptReport {
	return protocol.ReceiptReport{ConversationID: conversationID, MessageIDs: ids, UserID: user, Event: models.StatusSeen}
}

func delivered(conversationID, user string, ids ...string) protocol.ReceiptReport {
	return protocol.ReceiptReport{ConversationID: conversationID, MessageIDs: ids, UserID: user, Event: models.StatusDelivered}
}

func TestTracker_SeenReportReachesSender(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.store.addConversation("c1", "alice", "bob")
	a1 := h.online("a1", "alice", "c1")
	b1 := h.online("b1", "bob", "c1")
	h.send("a1", sendMsg("c1", "alice", "temp-1", "hi"))
	h.resetAll()

	// when bob reports seen
	h.send("b1", seen("c1", "bob", "m1"))

	// then alice is told and the stored status is seen
	statuses := a1.named(t, protocol.EventMessageStatusSeen)
	req.Len(statuses, 1)
	req.Equal(protocol.MessageStatus{
		MessageIDs: []string{"m1"},
		UserID:     "bob",
		Status:     models.StatusSeen,
		Timestamp:  testNow,
	}, statuses[0])
	req.Equal(models.StatusSeen, h.store.status("m1"))

	// the reporter's own connection is not echoed
	req.Empty(b1.events(t))
}

func TestTracker_BatchSkipsSelfAuthoredMessages(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.store.addConversation("c1", "alice", "bob")
	m1 := h.store.seedMessage("c1", "alice")
	m2 := h.store.seedMessage("c1", "bob")
	m3 := h.store.seedMessage("c1", "alice")
	a1 := h.online("a1", "alice", "c1")
	h.online("b1", "bob", "c1")
	h.resetAll()

	// when bob marks the whole conversation seen
	h.send("b1", seen("c1", "bob", m1, m2, m3))

	// then only alice's messages change
	req.Equal(models.StatusSeen, h.store.status(m1))
	req.Equal(models.StatusSent, h.store.status(m2))
	req.Equal(models.StatusSeen, h.store.status(m3))
	req.Equal(2, h.store.receiptCount())

	statuses := a1.named(t, protocol.EventMessageStatusSeen)
	req.Len(statuses, 1)
	req.Equal([]string{m1, m3}, statuses[0].(protocol.MessageStatus).MessageIDs)
}

func TestTracker_RepeatedReportIsNoOp(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.store.addConversation("c1", "alice", "bob")
	m1 := h.store.seedMessage("c1", "alice")
	a1 := h.online("a1", "alice", "c1")
	h.online("b1", "bob", "c1")

	h.send("b1", delivered("c1", "bob", m1))
	h.resetAll()
	calls := h.store.applyCalls

	h.send("b1", delivered("c1", "bob", m1, m1))

	req.Equal(calls, h.store.applyCalls)
	req.Equal(1, h.store.receiptCount())
	req.Empty(a1.events(t))
}

func TestTracker_StatusNeverRegresses(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.store.addConversation("c1", "alice", "bob")
	m1 := h.store.seedMessage("c1", "alice")
	a1 := h.online("a1", "alice", "c1")
	h.online("b1", "bob", "c1")

	// given bob saw the message before reporting delivery
	h.send("b1", seen("c1", "bob", m1))
	h.resetAll()

	// when the late delivered report arrives
	h.send("b1", delivered("c1", "bob", m1))

	// then it is recorded but announces nothing and changes nothing
	req.Equal(2, h.store.receiptCount())
	req.Equal(models.StatusSeen, h.store.status(m1))
	req.Empty(a1.events(t))
}

func TestTracker_GroupStatusWaitsForEveryRecipient(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.store.addConversation("g1", "alice", "bob", "carol")
	m1 := h.store.seedMessage("g1", "alice")
	a1 := h.online("a1", "alice", "g1")
	h.online("b1", "bob", "g1")
	h.online("c1", "carol", "g1")
	h.resetAll()

	// bob alone seeing it is not enough
	h.send("b1", seen("g1", "bob", m1))
	req.Empty(a1.events(t))
	req.Equal(models.StatusSent, h.store.status(m1))

	// carol's delivery completes delivered
	h.send("c1", delivered("g1", "carol", m1))
	req.Len(a1.named(t, protocol.EventMessageStatusDelivered), 1)
	req.Equal(models.StatusDelivered, h.store.status(m1))

	// carol's seen completes seen
	a1.reset()
	h.send("c1", seen("g1", "carol", m1))
	statuses := a1.named(t, protocol.EventMessageStatusSeen)
	req.Len(statuses, 1)
	req.Equal("carol", statuses[0].(protocol.MessageStatus).UserID)
	req.Equal(models.StatusSeen, h.store.status(m1))
}

func TestTracker_IgnoresForeignAndUnknownIDs(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.store.addConversation("c1", "alice", "bob")
	h.store.addConversation("c2", "alice", "carol")
	other := h.store.seedMessage("c2", "alice")
	h.online("b1", "bob", "c1")

	h.send("b1", seen("c1", "bob", other, "ghost"))

	req.Equal(0, h.store.receiptCount())
	req.Equal(models.StatusSent, h.store.status(other))
}

func TestTracker_RejectsSpoofedReporter(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.store.addConversation("c1", "alice", "bob")
	m1 := h.store.seedMessage("c1", "alice")
	h.online("b1", "bob", "c1")

	err := h.hub.Tracker().Report(context.Background(), "b1", seen("c1", "carol", m1))
	req.ErrorIs(err, ErrIdentityMismatch)

	err = h.hub.Tracker().Report(context.Background(), "nobody", seen("c1", "bob", m1))
	req.ErrorIs(err, ErrNotAnnounced)
	req.Equal(0, h.store.receiptCount())
}

func TestTracker_RecordOnBehalfOfServerParticipant(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.store.addConversation("c1", "alice", "luna")
	a1 := h.online("a1", "alice", "c1")
	h.send("a1", sendMsg("c1", "alice", "t1", "hello"))
	h.resetAll()

	err := h.hub.Tracker().Record(context.Background(), delivered("c1", "luna", "m1"), "")
	req.NoError(err)

	req.Len(a1.named(t, protocol.EventMessageStatusDelivered), 1)
}
