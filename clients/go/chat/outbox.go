package chat

import (
	"sync"
	"time"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

// DefaultStatusBuffer bounds status events held for ids not yet confirmed.
const DefaultStatusBuffer = 256

// Entry is the client's view of one outgoing or observed message.
// Status is StatusSending until the relay confirms it.
type Entry struct {
	TempID         string
	ID             string
	ConversationID string
	Content        string
	Status         models.Status
	CreatedAt      time.Time
}

type earlyStatus struct {
	id     string
	status models.Status
}

// Outbox tracks optimistic sends and merges confirmations and status
// events into them. A temp id resolves to exactly one permanent id or
// fails; merges only ever move a status forward.
type Outbox struct {
	mu     sync.Mutex
	byTemp map[string]*Entry
	byID   map[string]*Entry
	early  []earlyStatus
	limit  int
}

// NewOutbox creates an outbox holding at most limit early status events.
// A limit of 0 drops them.
func NewOutbox(limit int) *Outbox {
	if limit < 0 {
		limit = 0
	}
	return &Outbox{
		byTemp: make(map[string]*Entry),
		byID:   make(map[string]*Entry),
		limit:  limit,
	}
}

// Add records a local send before the relay has seen it.
func (o *Outbox) Add(conversationID, tempID, content string, at time.Time) Entry {
	o.mu.Lock()
	defer o.mu.Unlock()

	e := &Entry{
		TempID:         tempID,
		ConversationID: conversationID,
		Content:        content,
		Status:         models.StatusSending,
		CreatedAt:      at,
	}
	o.byTemp[tempID] = e
	return *e
}

// Track records a message that already has a permanent id, such as one
// loaded from history.
func (o *Outbox) Track(msg models.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if e, ok := o.byID[msg.ID]; ok {
		e.Status = models.Max(e.Status, msg.Status)
		return
	}
	e := &Entry{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Content:        msg.Content,
		Status:         msg.Status,
		CreatedAt:      msg.CreatedAt,
	}
	o.byID[msg.ID] = e
	o.drain(e)
}

// Confirm binds tempID to its permanent id. It reports false when tempID
// is unknown or already bound.
func (o *Outbox) Confirm(tempID, id string, status models.Status) (Entry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.byTemp[tempID]
	if !ok || e.ID != "" {
		return Entry{}, false
	}
	e.ID = id
	e.Status = models.Max(e.Status, status)
	if e.Status == models.StatusSending {
		e.Status = models.StatusSent
	}
	o.byID[id] = e
	o.drain(e)
	return *e, true
}

// Fail drops a send the relay rejected. A confirmed send cannot fail.
func (o *Outbox) Fail(tempID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.byTemp[tempID]
	if !ok || e.ID != "" {
		return false
	}
	delete(o.byTemp, tempID)
	return true
}

// Apply merges a status event. It reports whether a tracked entry moved
// forward; events for unknown ids are held until the id is confirmed.
func (o *Outbox) Apply(id string, status models.Status) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.byID[id]
	if !ok {
		o.hold(id, status)
		return false
	}
	if !e.Status.Advances(status) {
		return false
	}
	e.Status = status
	return true
}

// Get returns the entry for a permanent id.
func (o *Outbox) Get(id string) (Entry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.byID[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Pending returns the entry for a temp id, confirmed or not.
func (o *Outbox) Pending(tempID string) (Entry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.byTemp[tempID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Held returns how many early status events are buffered.
func (o *Outbox) Held() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.early)
}

func (o *Outbox) hold(id string, status models.Status) {
	if o.limit == 0 {
		return
	}
	if len(o.early) >= o.limit {
		o.early = o.early[1:]
	}
	o.early = append(o.early, earlyStatus{id: id, status: status})
}

// drain applies and removes held events for e. Callers hold o.mu.
func (o *Outbox) drain(e *Entry) {
	kept := o.early[:0]
	for _, s := range o.early {
		if s.id != e.ID {
			kept = append(kept, s)
			continue
		}
		e.Status = models.Max(e.Status, s.status)
	}
	clear(o.early[len(kept):])
	o.early = kept
}
