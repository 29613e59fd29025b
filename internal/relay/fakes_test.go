package relay

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/chatrelay/internal/models"
	"github.com/eldtechnologies/chatrelay/internal/protocol"
)

var testNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

type fakeStore struct {
	mu         sync.Mutex
	convs      map[string][]models.User
	messages   map[string]models.Message
	created    []string
	receipts   []models.Receipt
	seq        int
	failCreate error
	applyCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		convs:    make(map[string][]models.User),
		messages: make(map[string]models.Message),
	}
}

func (s *fakeStore) addConversation(id string, participants ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]models.User, 0, len(participants))
	for _, p := range participants {
		users = append(users, models.User{ID: p, Name: p})
	}
	s.convs[id] = users
}

func (s *fakeStore) Participants(_ context.Context, conversationID string) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users, ok := s.convs[conversationID]
	if !ok {
		return nil, fmt.Errorf("conversation %s: not found", conversationID)
	}
	return users, nil
}

func (s *fakeStore) CreateMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return s.failCreate
	}
	s.seq++
	msg.ID = fmt.Sprintf("m%d", s.seq)
	msg.Status = models.StatusSent
	msg.CreatedAt = testNow
	s.messages[msg.ID] = *msg
	s.created = append(s.created, msg.ID)
	return nil
}

// createdIDs returns message ids in the order the store assigned them.
func (s *fakeStore) createdIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.created...)
}

func (s *fakeStore) MessageSenders(_ context.Context, conversationID string, ids []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	for _, id := range ids {
		if m, ok := s.messages[id]; ok && m.ConversationID == conversationID {
			out[id] = m.SenderID
		}
	}
	return out, nil
}

func (s *fakeStore) Receipts(_ context.Context, ids []string) ([]models.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Receipt
	for _, r := range s.receipts {
		for _, id := range ids {
			if r.MessageID == id {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (s *fakeStore) ApplyReceipts(_ context.Context, batch models.ReceiptBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyCalls++
	s.receipts = append(s.receipts, batch.Receipts...)
	for id, st := range batch.Statuses {
		m := s.messages[id]
		if m.Status.Advances(st) {
			m.Status = st
			s.messages[id] = m
		}
	}
	return nil
}

func (s *fakeStore) status(id string) models.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[id].Status
}

func (s *fakeStore) receiptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.receipts)
}

// seedMessage stores a message directly, bypassing the relay.
func (s *fakeStore) seedMessage(conversationID, senderID string) string {
	msg := &models.Message{ConversationID: conversationID, SenderID: senderID, Content: "seed"}
	_ = s.CreateMessage(context.Background(), msg)
	return msg.ID
}

type recordingPeer struct {
	mu     sync.Mutex
	frames [][]byte
	full   bool
}

func (p *recordingPeer) Send(frame []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.full {
		return false
	}
	p.frames = append(p.frames, frame)
	return true
}

func (p *recordingPeer) events(t *testing.T) []protocol.Outbound {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]protocol.Outbound, 0, len(p.frames))
	for _, f := range p.frames {
		ev, err := protocol.DecodeOutbound(f)
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func (p *recordingPeer) named(t *testing.T, name string) []protocol.Outbound {
	t.Helper()
	var out []protocol.Outbound
	for _, ev := range p.events(t) {
		if ev.EventName() == name {
			out = append(out, ev)
		}
	}
	return out
}

func (p *recordingPeer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = nil
}

type harness struct {
	t     *testing.T
	hub   *Hub
	store *fakeStore
	peers map[string]*recordingPeer
}

func newHarness(t *testing.T) *harness {
	store := newFakeStore()
	hub := NewHub(Options{
		Store:         store,
		Conversations: store,
		Logger:        zerolog.Nop(),
		Now:           func() time.Time { return testNow },
	})
	return &harness{t: t, hub: hub, store: store, peers: make(map[string]*recordingPeer)}
}

func (h *harness) connect(connID string) *recordingPeer {
	p := &recordingPeer{}
	h.peers[connID] = p
	h.hub.Connect(connID, p, "")
	return p
}

// online connects connID, announces identity and joins the given rooms.
func (h *harness) online(connID, identity string, rooms ...string) *recordingPeer {
	p := h.connect(connID)
	h.send(connID, protocol.UserOnline{UserID: identity})
	for _, room := range rooms {
		h.send(connID, protocol.ConversationJoin{ConversationID: room})
	}
	return p
}

func (h *harness) send(connID string, ev protocol.Event) {
	h.t.Helper()
	frame, err := protocol.Encode(ev)
	require.NoError(h.t, err)
	h.hub.Handle(context.Background(), connID, frame)
}

func (h *harness) resetAll() {
	for _, p := range h.peers {
		p.reset()
	}
}

func sendMsg(conversationID, sender, tempID, content string) protocol.MessageSend {
	return protocol.MessageSend{
		ConversationID: conversationID,
		Message:        protocol.MessageBody{Content: content},
		SenderID:       sender,
		TempID:         tempID,
	}
}
