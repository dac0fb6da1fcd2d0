package membership

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/puoklam/groupchat/api"
	"github.com/puoklam/groupchat/conversation"
	"github.com/puoklam/groupchat/middleware"
)

// Service is the part of conversation.Coordinator the membership routes use.
type Service interface {
	JoinGroup(ctx context.Context, name, userID, password string) error
	LeaveGroup(ctx context.Context, name, userID string) error
	SetMuted(ctx context.Context, name, userID string, muted bool) error
	MarkRead(ctx context.Context, name, userID string) error
	Members(ctx context.Context, name, userID string) ([]conversation.Member, error)
}

type InJoin struct {
	GroupName    string `json:"groupName" validate:"required"`
	JoinPassword string `json:"joinPassword"`
}

type InGroupName struct {
	GroupName string `json:"groupName" validate:"required"`
}

type InMute struct {
	GroupName string `json:"groupName" validate:"required"`
	SetMuted  *bool  `json:"setMuted" validate:"required"`
}

type OutMember struct {
	ID       string    `json:"id"`
	Email    string    `json:"email"`
	NickName string    `json:"nickName"`
	Muted    bool      `json:"muted"`
	JoinedAt time.Time `json:"joinedAt"`
}

type Handlers struct {
	logger *slog.Logger
	svc    Service
}

func (h *Handlers) join(w http.ResponseWriter, r *http.Request) {
	u := middleware.User(r.Context())
	var body InJoin
	if err := api.Decode(r, &body); err != nil {
		api.BadRequest(w, err.Error())
		return
	}
	if err := h.svc.JoinGroup(r.Context(), body.GroupName, u.ID, body.JoinPassword); err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) leave(w http.ResponseWriter, r *http.Request) {
	h.byName(w, r, h.svc.LeaveGroup)
}

func (h *Handlers) read(w http.ResponseWriter, r *http.Request) {
	h.byName(w, r, h.svc.MarkRead)
}

func (h *Handlers) byName(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, name, userID string) error) {
	u := middleware.User(r.Context())
	var body InGroupName
	if err := api.Decode(r, &body); err != nil {
		api.BadRequest(w, err.Error())
		return
	}
	if err := op(r.Context(), body.GroupName, u.ID); err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) mute(w http.ResponseWriter, r *http.Request) {
	u := middleware.User(r.Context())
	var body InMute
	if err := api.Decode(r, &body); err != nil {
		api.BadRequest(w, err.Error())
		return
	}
	if err := h.svc.SetMuted(r.Context(), body.GroupName, u.ID, *body.SetMuted); err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) members(w http.ResponseWriter, r *http.Request) {
	u := middleware.User(r.Context())
	name := r.URL.Query().Get("name")
	if name == "" {
		api.BadRequest(w, "missing query: name")
		return
	}
	members, err := h.svc.Members(r.Context(), name, u.ID)
	if err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	out := make([]OutMember, 0, len(members))
	for _, m := range members {
		out = append(out, OutMember{
			ID:       m.UserID,
			Email:    m.User.Email,
			NickName: m.User.Nickname,
			Muted:    m.Muted,
			JoinedAt: m.JoinedAt,
		})
	}
	api.WriteJSON(w, http.StatusOK, out)
}

// SetupRoutes registers the membership routes on r, which is already
// mounted at /groups behind the authenticator.
func (h *Handlers) SetupRoutes(r chi.Router) {
	r.Post("/join", h.join)
	r.Post("/leave", h.leave)
	r.Post("/mute", h.mute)
	r.Post("/read", h.read)
	r.Get("/members", h.members)
}

func NewHandlers(l *slog.Logger, svc Service) *Handlers {
	return &Handlers{logger: l, svc: svc}
}
