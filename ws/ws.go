package ws

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Subscriber feeds a session from a broker when events for it may be
// published by other instances.
type Subscriber interface {
	Subscribe(handle string, deliver func([]byte)) (stop func(), err error)
}

// Binder records which channel handle a user's session is on.
type Binder interface {
	BindChannel(ctx context.Context, userID, handle string) error
	UnbindChannel(ctx context.Context, userID, handle string) error
}

type Server struct {
	log        *slog.Logger
	hub        *Hub
	binder     Binder
	poster     Poster
	subscriber Subscriber
}

// NewServer builds the socket endpoint. subscriber may be nil, in which case
// sessions are only fed by the hub.
func NewServer(log *slog.Logger, hub *Hub, binder Binder, poster Poster, subscriber Subscriber) *Server {
	return &Server{log: log, hub: hub, binder: binder, poster: poster, subscriber: subscriber}
}

// Serve upgrades the request and runs the session of userID until the
// connection closes.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Upgrade failed", "error", err)
		return
	}
	c := &Client{
		log:    s.log,
		conn:   conn,
		handle: uuid.NewString(),
		userID: userID,
		poster: s.poster,
		send:   make(chan []byte, 256),
	}

	var stop func()
	if s.subscriber != nil {
		stop, err = s.subscriber.Subscribe(c.handle, func(b []byte) {
			if err := s.hub.Push(context.Background(), c.handle, b); err != nil {
				s.log.Debug("Dropped brokered event", "channel", c.handle, "error", err)
			}
		})
		if err != nil {
			s.log.Error("Subscribe failed", "user_id", userID, "error", err)
			conn.Close()
			return
		}
	}

	s.hub.Register(c)
	ctx := context.WithoutCancel(r.Context())
	if err := s.binder.BindChannel(ctx, userID, c.handle); err != nil {
		s.log.Error("Bind channel failed", "user_id", userID, "error", err)
	}
	s.log.Info("Session opened", "user_id", userID, "channel", c.handle)

	go c.writePump()
	go func() {
		c.readPump(ctx)
		s.hub.Unregister(c)
		if stop != nil {
			stop()
		}
		if err := s.binder.UnbindChannel(ctx, userID, c.handle); err != nil {
			s.log.Error("Unbind channel failed", "user_id", userID, "error", err)
		}
		s.log.Info("Session closed", "user_id", userID, "channel", c.handle)
	}()
}
