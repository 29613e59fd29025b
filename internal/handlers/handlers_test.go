package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/chatrelay/internal/api/middleware"
	"github.com/eldtechnologies/chatrelay/internal/models"
	"github.com/eldtechnologies/chatrelay/internal/protocol"
	"github.com/eldtechnologies/chatrelay/internal/relay"
	"github.com/eldtechnologies/chatrelay/internal/store"
)

type fakeLive struct {
	online map[string]bool
	seen   map[string]time.Time
}

func (f *fakeLive) Presence(id string) models.Presence {
	p := models.Presence{UserID: id, Online: f.online[id]}
	if ts, ok := f.seen[id]; ok {
		p.LastSeen = &ts
	}
	return p
}

func (f *fakeLive) Stats() relay.Stats { return relay.Stats{Connections: 3, Online: 2, Rooms: 1} }

type fakeSocket struct{ verified []string }

func (f *fakeSocket) Serve(w http.ResponseWriter, _ *http.Request, verified string) {
	f.verified = append(f.verified, verified)
	w.WriteHeader(http.StatusSwitchingProtocols)
}

type fixture struct {
	db     *store.SQLiteStore
	live   *fakeLive
	socket *fakeSocket
	router chi.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)

	f := &fixture{db: db, live: &fakeLive{online: map[string]bool{}, seen: map[string]time.Time{}}, socket: &fakeSocket{}}
	h := NewHandler(db, nil, f.live, f.socket, zerolog.Nop())

	r := chi.NewRouter()
	r.Use(middleware.Identity(nil, zerolog.Nop()))
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Get("/presence/{id}", h.Presence)
	r.Get("/ws", h.Socket)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireIdentity)
		r.Get("/unread", h.Unread)
		r.Post("/users", h.Register)
		r.Post("/conversations", h.CreateConversation)
		r.Get("/conversations/{id}/messages", h.ConversationMessages)
	})
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthWithoutRedis(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[HealthResponse](t, rec)
	require.Equal(t, "healthy", resp.Status)
	require.Equal(t, "pass", resp.Checks["database"].Status)
	require.Equal(t, "skip", resp.Checks["redis"].Status)
}

func TestStats(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/stats", "")

	require.Equal(t, StatsResponse{Connections: 3, Online: 2, Rooms: 1}, decodeBody[StatsResponse](t, rec))
}

func TestPresence(t *testing.T) {
	// given
	f := newFixture(t)
	f.live.online["alice"] = true
	left := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f.live.seen["bob"] = left
	_, err := f.db.CreateUser(context.Background(), "carol", "Carol", false)
	require.NoError(t, err)

	// when / then
	alice := decodeBody[models.Presence](t, f.do(t, http.MethodGet, "/presence/alice", ""))
	require.True(t, alice.Online)

	bob := decodeBody[models.Presence](t, f.do(t, http.MethodGet, "/presence/bob", ""))
	require.False(t, bob.Online)
	require.NotNil(t, bob.LastSeen)
	require.True(t, left.Equal(*bob.LastSeen))

	carol := f.do(t, http.MethodGet, "/presence/carol", "")
	require.Equal(t, http.StatusOK, carol.Code)
	require.False(t, decodeBody[models.Presence](t, carol).Online)

	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/presence/nobody", "").Code)
}

func TestRegisterAndCreateConversation(t *testing.T) {
	// given
	f := newFixture(t)

	// when
	reg := f.do(t, http.MethodPost, "/users?user=alice", `{"name":"  Alice\n"}`)
	conv := f.do(t, http.MethodPost, "/conversations?user=alice", `{"id":"c1","participants":["luna","alice"]}`)
	again := f.do(t, http.MethodPost, "/conversations?user=alice", `{"id":"c1","participants":["luna"]}`)

	// then
	require.Equal(t, http.StatusOK, reg.Code)
	require.Equal(t, "Alice", decodeBody[models.User](t, reg).Name)
	require.Equal(t, http.StatusCreated, conv.Code)
	require.ElementsMatch(t, []string{"alice", "luna"}, decodeBody[models.Conversation](t, conv).Participants)
	require.Equal(t, http.StatusConflict, again.Code)
}

func TestRegisterRejectsInvalidBody(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/users?user=alice", `{"name":""}`).Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/conversations?user=alice", `{"participants":[]}`).Code)
	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/users", `{"name":"x"}`).Code)
}

func TestConversationMessagesAndUnread(t *testing.T) {
	// given
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.db.CreateConversation(ctx, "c1", []string{"alice", "bob"})
	require.NoError(t, err)
	require.NoError(t, f.db.CreateMessage(ctx, &models.Message{ConversationID: "c1", SenderID: "alice", Content: "hi"}))
	require.NoError(t, f.db.CreateMessage(ctx, &models.Message{ConversationID: "c1", SenderID: "alice", Content: "there"}))

	// when
	history := f.do(t, http.MethodGet, "/conversations/c1/messages?user=bob", "")
	outsider := f.do(t, http.MethodGet, "/conversations/c1/messages?user=eve", "")
	missing := f.do(t, http.MethodGet, "/conversations/nope/messages?user=bob", "")
	unread := f.do(t, http.MethodGet, "/unread?user=bob", "")

	// then
	require.Equal(t, http.StatusOK, history.Code)
	resp := decodeBody[ConversationResponse](t, history)
	require.Len(t, resp.Messages, 2)
	require.Equal(t, "hi", resp.Messages[0].Content)
	require.Equal(t, http.StatusForbidden, outsider.Code)
	require.Equal(t, http.StatusNotFound, missing.Code)
	require.Equal(t, int64(2), decodeBody[UnreadResponse](t, unread).Unread)
}

func TestSocketPassesOnlyVerifiedIdentity(t *testing.T) {
	// given
	f := newFixture(t)

	// when
	f.do(t, http.MethodGet, "/ws?user=mallory", "")
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req = req.WithContext(middleware.WithIdentity(req.Context(), "alice"))
	NewHandler(f.db, nil, f.live, f.socket, zerolog.Nop()).Socket(httptest.NewRecorder(), req)

	// then
	require.Equal(t, []string{"", "alice"}, f.socket.verified)
}

func TestPresenceFallsBackToRedis(t *testing.T) {
	// given
	f := newFixture(t)
	mr := miniredis.RunT(t)
	shared := store.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	left := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	require.NoError(t, shared.MarkOffline(context.Background(), "dave", left))

	h := NewHandler(f.db, shared, f.live, f.socket, zerolog.Nop())
	r := chi.NewRouter()
	r.Get("/presence/{id}", h.Presence)

	// when
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/presence/dave", nil))

	// then
	require.Equal(t, http.StatusOK, rec.Code)
	p := decodeBody[models.Presence](t, rec)
	require.False(t, p.Online)
	require.NotNil(t, p.LastSeen)
	require.True(t, left.Equal(*p.LastSeen))
}

type discardPeer struct{}

func (discardPeer) Send([]byte) bool { return true }

func TestPresenceLastSeenSurvivesRestartWithoutRedis(t *testing.T) {
	// given erin connected and left through a hub that records departures
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.db.CreateUser(ctx, "erin", "Erin", false)
	require.NoError(t, err)
	left := time.Date(2026, 8, 9, 10, 11, 12, 0, time.UTC)
	hub := relay.NewHub(relay.Options{
		Store:         f.db,
		Conversations: f.db,
		Presence:      relay.PresenceStores{store.LastSeenRecorder{DB: f.db}},
		Logger:        zerolog.Nop(),
		Now:           func() time.Time { return left },
	})
	frame, err := protocol.Encode(protocol.UserOnline{UserID: "erin"})
	require.NoError(t, err)
	hub.Connect("e1", discardPeer{}, "")
	hub.Handle(ctx, "e1", frame)
	hub.Disconnect(ctx, "e1")

	// when a fresh process without Redis is asked
	rec := f.do(t, http.MethodGet, "/presence/erin", "")

	// then lastSeen comes from the user row
	require.Equal(t, http.StatusOK, rec.Code)
	p := decodeBody[models.Presence](t, rec)
	require.False(t, p.Online)
	require.NotNil(t, p.LastSeen)
	require.True(t, left.Equal(*p.LastSeen))
}
