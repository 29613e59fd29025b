package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Logger returns a request logging middleware using zerolog. The request
// logger rides in the context so Identity can tag it with the caller
// before the completion line is written.
func Logger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			ctx := logger.With().
				Str("request_id", middleware.GetReqID(r.Context())).
				Logger().
				WithContext(r.Context())
			reqLog := zerolog.Ctx(ctx)
			upgrade := websocket.IsWebSocketUpgrade(r)

			defer func() {
				ev := reqLog.Info()
				if ww.Status() >= http.StatusInternalServerError {
					ev = reqLog.Error()
				}
				msg := "request completed"
				if upgrade {
					msg = "socket handshake completed"
				}
				ev.
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Str("remote_addr", r.RemoteAddr).
					Msg(msg)
			}()

			next.ServeHTTP(ww, r.WithContext(ctx))
		})
	}
}

// tagCaller adds the caller's identity to the request logger, if any.
func tagCaller(ctx context.Context, id string, verified bool) {
	zerolog.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("user_id", id).Bool("verified", verified)
	})
}
