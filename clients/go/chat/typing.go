package chat

import (
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/eldtechnologies/chatrelay/internal/protocol"
)

// DefaultTypingIdle is how long after the last keystroke typing stops.
const DefaultTypingIdle = 2 * time.Second

// Debouncer turns keystrokes into typing start and stop signals. The first
// keystroke starts; later ones only re-arm the idle timer.
type Debouncer struct {
	mu     sync.Mutex
	idle   time.Duration
	start  func()
	stop   func()
	active bool
	gen    uint64
	timer  *time.Timer
	closed bool
}

// NewDebouncer creates a debouncer. idle <= 0 uses DefaultTypingIdle.
func NewDebouncer(idle time.Duration, start, stop func()) *Debouncer {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &Debouncer{idle: idle, start: start, stop: stop}
}

// Keystroke records input activity.
func (d *Debouncer) Keystroke() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	first := !d.active
	d.active = true
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.idle, func() { d.expire(gen) })
	d.mu.Unlock()

	if first {
		d.start()
	}
}

// Stop ends typing immediately, as on send.
func (d *Debouncer) Stop() {
	if d.halt() {
		d.stop()
	}
}

// Close stops typing and ignores later keystrokes.
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.Stop()
}

// Active reports whether a start has been emitted without a stop.
func (d *Debouncer) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *Debouncer) halt() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return false
	}
	d.active = false
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
	}
	return true
}

func (d *Debouncer) expire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.active {
		d.mu.Unlock()
		return
	}
	d.active = false
	d.mu.Unlock()
	d.stop()
}

// TypingView keeps the last typing state per conversation and user. An
// entry stays until a stop arrives; there is no expiry.
type TypingView struct {
	mu     sync.RWMutex
	typing map[string]map[string]string
}

// NewTypingView creates an empty view.
func NewTypingView() *TypingView {
	return &TypingView{typing: make(map[string]map[string]string)}
}

// Apply merges a typing:user event.
func (v *TypingView) Apply(ev protocol.TypingUser) {
	v.mu.Lock()
	defer v.mu.Unlock()

	users := v.typing[ev.ConversationID]
	if !ev.IsTyping {
		delete(users, ev.UserID)
		if len(users) == 0 {
			delete(v.typing, ev.ConversationID)
		}
		return
	}
	if users == nil {
		users = make(map[string]string)
		v.typing[ev.ConversationID] = users
	}
	users[ev.UserID] = ev.UserName
}

// IsTyping reports whether userID is shown typing in conversationID.
func (v *TypingView) IsTyping(conversationID, userID string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.typing[conversationID][userID]
	return ok
}

// Typing lists the users shown typing in conversationID, sorted.
func (v *TypingView) Typing(conversationID string) []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	users := lo.Keys(v.typing[conversationID])
	slices.Sort(users)
	return users
}
