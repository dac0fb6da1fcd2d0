package user

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/puoklam/groupchat/api"
	"github.com/puoklam/groupchat/middleware"
)

type Directory interface {
	SetPushToken(ctx context.Context, userID, token string) error
}

type OutUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	NickName string `json:"nickName"`
	Online   bool   `json:"online"`
}

type Handlers struct {
	logger *slog.Logger
	dir    Directory
}

func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	u := middleware.User(r.Context())
	api.WriteJSON(w, http.StatusOK, &OutUser{
		ID:       u.ID,
		Email:    u.Email,
		NickName: u.Nickname,
		Online:   u.CurrentChannel != "",
	})
}

func (h *Handlers) setPushToken(w http.ResponseWriter, r *http.Request) {
	u := middleware.User(r.Context())
	if err := h.dir.SetPushToken(r.Context(), u.ID, middleware.ExpoPushToken(r.Context())); err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) clearPushToken(w http.ResponseWriter, r *http.Request) {
	u := middleware.User(r.Context())
	if err := h.dir.SetPushToken(r.Context(), u.ID, ""); err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetupRoutes registers the user routes on r, which is already mounted at
// /users behind the authenticator.
func (h *Handlers) SetupRoutes(r chi.Router) {
	r.Get("/me", h.me)
	r.With(middleware.WithExpoPushToken).Post("/me/push-token", h.setPushToken)
	r.Delete("/me/push-token", h.clearPushToken)
}

func NewHandlers(l *slog.Logger, dir Directory) *Handlers {
	return &Handlers{logger: l, dir: dir}
}
