// Package transport carries relay frames over WebSocket connections.
package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrelay/internal/crypto"
	"github.com/eldtechnologies/chatrelay/internal/relay"
)

// Hub is the relay side of a connection's lifecycle.
type Hub interface {
	Connect(connID string, peer relay.Peer, verified string)
	Handle(ctx context.Context, connID string, frame []byte)
	Disconnect(ctx context.Context, connID string)
}

// Options tunes the WebSocket server.
type Options struct {
	SendBuffer     int
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	AllowedOrigins []string
}

func (o *Options) defaults() {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
}

// Server upgrades HTTP requests and pumps frames between sockets and the hub.
type Server struct {
	hub      Hub
	opts     Options
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu    sync.Mutex
	conns map[string]*conn
}

// NewServer creates a WebSocket server bound to hub.
func NewServer(hub Hub, opts Options, logger zerolog.Logger) *Server {
	opts.defaults()
	s := &Server{
		hub:   hub,
		opts:  opts,
		log:   logger.With().Str("component", "ws").Logger(),
		conns: make(map[string]*conn),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(s.opts.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(s.opts.AllowedOrigins, origin)
}

// Serve upgrades the request and blocks until the connection closes.
// verified is the identity proven by the handshake, if any.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, verified string) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		s.log.Debug().Err(err).Msg("upgrade failed")
		return
	}

	c := &conn{
		id:   crypto.NewConnectionID(),
		ws:   ws,
		send: make(chan []byte, s.opts.SendBuffer),
	}
	s.track(c)
	defer s.untrack(c)

	ctx := context.WithoutCancel(r.Context())
	s.hub.Connect(c.id, c, verified)

	written := make(chan struct{})
	go func() {
		defer close(written)
		s.writePump(c)
	}()

	s.readPump(ctx, c)

	s.hub.Disconnect(ctx, c.id)
	c.shut()
	<-written
	ws.Close()
}

// Shutdown closes every open connection.
func (s *Server) Shutdown() {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.ws.Close()
	}
}

// Open returns the number of live sockets.
func (s *Server) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) track(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c.id] = c
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c.id)
}

func (s *Server) readPump(ctx context.Context, c *conn) {
	c.ws.SetReadLimit(s.opts.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			s.logReadError(c.id, err)
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		s.hub.Handle(ctx, c.id, data)
	}
}

func (s *Server) logReadError(connID string, err error) {
	var ne net.Error
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		s.log.Debug().Str("conn_id", connID).Msg("peer closed")
	case errors.As(err, &ne) && ne.Timeout():
		s.log.Info().Str("conn_id", connID).Msg("keep-alive timeout")
	default:
		s.log.Debug().Err(err).Str("conn_id", connID).Msg("read failed")
	}
}

func (s *Server) writePump(c *conn) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.Debug().Err(err).Str("conn_id", c.id).Msg("write failed")
				// unblock the reader so the connection is torn down
				c.ws.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteWait)); err != nil {
				c.ws.Close()
				return
			}
		}
	}
}

// conn is one socket. Its send queue is bounded; Send never blocks.
type conn struct {
	id   string
	ws   *websocket.Conn
	mu   sync.Mutex
	send chan []byte
	done bool
}

// Send queues a frame, dropping it when the queue is full or closed.
func (c *conn) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *conn) shut() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.done {
		c.done = true
		close(c.send)
	}
}
