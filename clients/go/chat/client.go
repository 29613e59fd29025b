// Package chat is a client for the chat relay. It keeps an optimistic
// outbox and a typing view in step with the server's events.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrelay/internal/crypto"
	"github.com/eldtechnologies/chatrelay/internal/models"
	"github.com/eldtechnologies/chatrelay/internal/protocol"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("chat: client closed")

const writeWait = 10 * time.Second

// Options configures a Client.
type Options struct {
	URL          string // WebSocket endpoint, e.g. ws://localhost:8080/ws
	Token        string // signed identity; empty against a development server
	UserID       string
	UserName     string
	AutoAck      bool // report delivered then seen for every incoming message
	StatusBuffer int  // early status events held; negative uses DefaultStatusBuffer
	TypingIdle   time.Duration
	EventBuffer  int
	Logger       zerolog.Logger
}

// Client is one relay connection for one identity.
type Client struct {
	opts   Options
	ws     *websocket.Conn
	log    zerolog.Logger
	outbox *Outbox
	typing *TypingView
	events chan protocol.Outbound
	done   chan struct{}

	writeMu sync.Mutex
	closed  bool

	debounceMu sync.Mutex
	debouncers map[string]*Debouncer
}

// Dial connects and announces opts.UserID.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.UserID == "" {
		return nil, errors.New("chat: user id is required")
	}
	if opts.StatusBuffer < 0 {
		opts.StatusBuffer = DefaultStatusBuffer
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}

	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("chat: parse url: %w", err)
	}
	q := u.Query()
	if opts.Token != "" {
		q.Set("token", opts.Token)
	} else {
		q.Set("user", opts.UserID)
	}
	u.RawQuery = q.Encode()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("chat: dial: %w", err)
	}

	c := &Client{
		opts:       opts,
		ws:         ws,
		log:        opts.Logger.With().Str("user_id", opts.UserID).Logger(),
		outbox:     NewOutbox(opts.StatusBuffer),
		typing:     NewTypingView(),
		events:     make(chan protocol.Outbound, opts.EventBuffer),
		done:       make(chan struct{}),
		debouncers: make(map[string]*Debouncer),
	}
	go c.readLoop()

	if err := c.write(protocol.UserOnline{UserID: opts.UserID}); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Outbox returns the client's outbox.
func (c *Client) Outbox() *Outbox { return c.outbox }

// Typing returns the client's typing view.
func (c *Client) Typing() *TypingView { return c.typing }

// Events delivers every decoded server event after it has been applied.
// Events are dropped when the channel is full. It is closed when the
// connection ends.
func (c *Client) Events() <-chan protocol.Outbound { return c.events }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Join subscribes to a conversation's room.
func (c *Client) Join(conversationID string) error {
	return c.write(protocol.ConversationJoin{ConversationID: conversationID})
}

// Send queues content optimistically and sends it. A failed write marks
// the entry failed and removes it.
func (c *Client) Send(conversationID, content string, recipients ...string) (Entry, error) {
	tempID := crypto.NewTempID()
	entry := c.outbox.Add(conversationID, tempID, content, time.Now())
	c.StopTyping(conversationID)

	err := c.write(protocol.MessageSend{
		ConversationID: conversationID,
		Message:        protocol.MessageBody{Content: content},
		SenderID:       c.opts.UserID,
		TempID:         tempID,
		RecipientIDs:   recipients,
	})
	if err != nil {
		c.outbox.Fail(tempID)
		return Entry{}, err
	}
	return entry, nil
}

// MarkDelivered reports ids as delivered to this client.
func (c *Client) MarkDelivered(conversationID string, ids ...string) error {
	return c.report(conversationID, models.StatusDelivered, ids)
}

// MarkSeen reports ids as seen by this client.
func (c *Client) MarkSeen(conversationID string, ids ...string) error {
	return c.report(conversationID, models.StatusSeen, ids)
}

func (c *Client) report(conversationID string, event models.Status, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.write(protocol.ReceiptReport{
		ConversationID: conversationID,
		MessageIDs:     ids,
		UserID:         c.opts.UserID,
		Event:          event,
	})
}

// Keystroke signals typing activity in a conversation.
func (c *Client) Keystroke(conversationID string) {
	c.debouncer(conversationID).Keystroke()
}

// StopTyping ends typing in a conversation at once.
func (c *Client) StopTyping(conversationID string) {
	c.debounceMu.Lock()
	d, ok := c.debouncers[conversationID]
	c.debounceMu.Unlock()
	if ok {
		d.Stop()
	}
}

func (c *Client) debouncer(conversationID string) *Debouncer {
	c.debounceMu.Lock()
	defer c.debounceMu.Unlock()

	if d, ok := c.debouncers[conversationID]; ok {
		return d
	}
	d := NewDebouncer(c.opts.TypingIdle,
		func() {
			c.logWrite(c.write(protocol.TypingStart{
				ConversationID: conversationID,
				UserID:         c.opts.UserID,
				UserName:       c.opts.UserName,
			}))
		},
		func() {
			c.logWrite(c.write(protocol.TypingStop{ConversationID: conversationID, UserID: c.opts.UserID}))
		},
	)
	c.debouncers[conversationID] = d
	return d
}

func (c *Client) logWrite(err error) {
	if err != nil && !errors.Is(err, ErrClosed) {
		c.log.Warn().Err(err).Msg("typing signal not sent")
	}
}

// Close stops typing everywhere and closes the connection.
func (c *Client) Close() error {
	c.debounceMu.Lock()
	for _, d := range c.debouncers {
		d.Close()
	}
	c.debounceMu.Unlock()

	c.writeMu.Lock()
	if c.closed {
		c.writeMu.Unlock()
		return nil
	}
	c.closed = true
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := c.ws.Close()
	<-c.done
	return err
}

func (c *Client) write(ev protocol.Event) error {
	frame, err := protocol.Encode(ev)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.events)

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Msg("read loop ended")
			}
			return
		}

		ev, err := protocol.DecodeOutbound(frame)
		if err != nil {
			c.log.Warn().Err(err).Msg("undecodable server frame")
			continue
		}
		c.apply(ev)

		select {
		case c.events <- ev:
		default:
			c.log.Debug().Str("event", ev.EventName()).Msg("event channel full")
		}
	}
}

func (c *Client) apply(ev protocol.Outbound) {
	switch e := ev.(type) {
	case protocol.MessageSent:
		if _, ok := c.outbox.Confirm(e.TempID, e.MessageID, e.Status); !ok {
			c.log.Debug().Str("temp_id", e.TempID).Msg("confirmation for unknown send")
		}
	case protocol.MessageFailed:
		c.outbox.Fail(e.TempID)
		c.log.Warn().Str("temp_id", e.TempID).Str("error", e.Error).Msg("send failed")
	case protocol.MessageNew:
		c.outbox.Track(e.Message)
		if c.opts.AutoAck && e.SenderID != c.opts.UserID {
			c.logWrite(c.MarkDelivered(e.ConversationID, e.Message.ID))
			c.logWrite(c.MarkSeen(e.ConversationID, e.Message.ID))
		}
	case protocol.MessageStatus:
		for _, id := range e.MessageIDs {
			c.outbox.Apply(id, e.Status)
		}
	case protocol.TypingUser:
		c.typing.Apply(e)
	case protocol.NotificationNew, protocol.UserStatus:
		// surfaced through Events only
	}
}
