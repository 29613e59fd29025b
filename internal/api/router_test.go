package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/chatrelay/internal/config"
	"github.com/eldtechnologies/chatrelay/internal/crypto"
	"github.com/eldtechnologies/chatrelay/internal/handlers"
	"github.com/eldtechnologies/chatrelay/internal/relay"
	"github.com/eldtechnologies/chatrelay/internal/store"
	"github.com/eldtechnologies/chatrelay/internal/transport"
)

func newTestRouter(t *testing.T, secret string) http.Handler {
	t.Helper()
	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)

	hub := relay.NewHub(relay.Options{Store: db, Conversations: db, Logger: zerolog.Nop()})
	sockets := transport.NewServer(hub, transport.Options{}, zerolog.Nop())
	h := handlers.NewHandler(db, nil, hub, sockets, zerolog.Nop())
	cfg := &config.Config{JWTSecret: secret, AllowedOrigins: []string{"*"}}
	return NewRouter(zerolog.Nop(), cfg, h, nil)
}

func TestRouterPublicRoutes(t *testing.T) {
	r := newTestRouter(t, "")

	for path, code := range map[string]int{
		"/health":       http.StatusOK,
		"/stats":        http.StatusOK,
		"/metrics":      http.StatusOK,
		"/nope":         http.StatusNotFound,
		"/presence/a/b": http.StatusNotFound,
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, code, rec.Code, path)
	}
}

func TestRouterSecurityHeaders(t *testing.T) {
	r := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "default-src 'none'", rec.Header().Get("Content-Security-Policy"))
}

func TestRouterRequiresTokenWhenSecretSet(t *testing.T) {
	// given
	r := newTestRouter(t, "s3cret")
	token, err := crypto.IssueToken([]byte("s3cret"), "alice", time.Hour)
	require.NoError(t, err)

	// when
	anon := httptest.NewRecorder()
	r.ServeHTTP(anon, httptest.NewRequest(http.MethodGet, "/unread?user=alice", nil))
	authed := httptest.NewRecorder()
	r.ServeHTTP(authed, httptest.NewRequest(http.MethodGet, "/unread?token="+token, nil))

	// then
	require.Equal(t, http.StatusUnauthorized, anon.Code)
	require.Equal(t, http.StatusOK, authed.Code)
	require.JSONEq(t, `{"userId":"alice","unread":0}`, authed.Body.String())
}

func TestRouterUpgradesThroughMiddleware(t *testing.T) {
	// given
	ts := httptest.NewServer(newTestRouter(t, ""))
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?user=alice"

	// when
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)

	// then
	require.NoError(t, err)
	defer ws.Close()
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"event":"user:online","data":"alice"}`)))
}
