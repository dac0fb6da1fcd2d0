package socket

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/puoklam/groupchat/middleware"
	"github.com/puoklam/groupchat/ws"
)

type Handlers struct {
	logger *slog.Logger
	server *ws.Server
}

func (h *Handlers) connect(w http.ResponseWriter, r *http.Request) {
	u := middleware.User(r.Context())
	h.server.Serve(w, r, u.ID)
}

// SetupRoutes registers the socket endpoint on r, which is already behind
// the authenticator.
func (h *Handlers) SetupRoutes(r chi.Router) {
	r.Get("/socket", h.connect)
}

func NewHandlers(logger *slog.Logger, server *ws.Server) *Handlers {
	return &Handlers{logger: logger, server: server}
}
