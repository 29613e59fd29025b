package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/chatrelay/internal/models"
	"github.com/eldtechnologies/chatrelay/internal/protocol"
	"github.com/eldtechnologies/chatrelay/internal/relay"
	"github.com/eldtechnologies/chatrelay/internal/store"
	"github.com/eldtechnologies/chatrelay/internal/transport"
)

func startRelay(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	db, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	_, err = db.CreateConversation(ctx, "c1", []string{"alice", "bob"})
	require.NoError(t, err)

	hub := relay.NewHub(relay.Options{Store: db, Conversations: db, Logger: zerolog.Nop()})
	ws := transport.NewServer(hub, transport.Options{}, zerolog.Nop())
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.Serve(w, r, "")
	}))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url, user string, autoAck bool) *Client {
	t.Helper()
	c, err := Dial(context.Background(), Options{URL: url, UserID: user, AutoAck: autoAck, StatusBuffer: -1, EventBuffer: 256})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.Join("c1"))
	return c
}

// joined waits until a typing signal from one client reaches the other,
// which proves the receiver's room join has been processed.
func joined(t *testing.T, from, to *Client) {
	t.Helper()
	require.Eventually(t, func() bool {
		from.Keystroke("c1")
		from.StopTyping("c1")
		for {
			select {
			case ev := <-to.Events():
				if tu, ok := ev.(protocol.TypingUser); ok && tu.UserID == from.opts.UserID {
					return true
				}
			case <-time.After(20 * time.Millisecond):
				return false
			}
		}
	}, 3*time.Second, 10*time.Millisecond)
}

func TestClientSendIsConfirmedAndSeen(t *testing.T) {
	// given
	url := startRelay(t)
	alice := dial(t, url, "alice", false)
	bob := dial(t, url, "bob", true)
	joined(t, alice, bob)
	joined(t, bob, alice)

	// when
	entry, err := alice.Send("c1", "hello bob")
	require.NoError(t, err)

	// then
	var id string
	require.Eventually(t, func() bool {
		e, ok := alice.Outbox().Pending(entry.TempID)
		id = e.ID
		return ok && e.ID != ""
	}, 3*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		e, ok := alice.Outbox().Get(id)
		return ok && e.Status == models.StatusSeen
	}, 3*time.Second, 10*time.Millisecond)

	got, ok := bob.Outbox().Get(id)
	require.True(t, ok)
	require.Equal(t, "hello bob", got.Content)
}

func TestClientSendToUnknownConversationFails(t *testing.T) {
	// given
	url := startRelay(t)
	alice := dial(t, url, "alice", false)

	// when
	entry, err := alice.Send("nope", "anyone?")

	// then
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := alice.Outbox().Pending(entry.TempID)
		return !ok
	}, 3*time.Second, 10*time.Millisecond)
}

func TestClientWritesFailAfterClose(t *testing.T) {
	url := startRelay(t)
	c, err := Dial(context.Background(), Options{URL: url, UserID: "alice"})
	require.NoError(t, err)

	require.NoError(t, c.Close())

	_, err = c.Send("c1", "late")
	require.ErrorIs(t, err, ErrClosed)
	<-c.Done()
}
