package group

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/puoklam/groupchat/api"
	"github.com/puoklam/groupchat/conversation"
	"github.com/puoklam/groupchat/middleware"
)

// Service is the part of conversation.Coordinator the group routes use.
type Service interface {
	CreateGroup(ctx context.Context, name, ownerID, password string) (string, error)
	GroupSummary(ctx context.Context, groupID string) (*conversation.Summary, error)
	KickMember(ctx context.Context, name, ownerID, targetID string) error
	TransferOwnership(ctx context.Context, name, ownerID, targetID string) error
	DissolveGroup(ctx context.Context, name, ownerID string) error
	UpdateInfo(ctx context.Context, name, ownerID, newName, newAvatar string) error
	UpdatePassword(ctx context.Context, name, ownerID, password string) error
	PostMessage(ctx context.Context, groupID, senderID, content string) error
}

type Handlers struct {
	logger *slog.Logger
	svc    Service
}

func (h *Handlers) createGroup(w http.ResponseWriter, r *http.Request) {
	u := middleware.User(r.Context())
	var body InCreateGroup
	if err := api.Decode(r, &body); err != nil {
		api.BadRequest(w, err.Error())
		return
	}
	id, err := h.svc.CreateGroup(r.Context(), body.Name, u.ID, body.JoinPassword)
	if err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, &OutCreateGroup{ID: id, Name: body.Name})
}

func (h *Handlers) getGroup(w http.ResponseWriter, r *http.Request) {
	g := middleware.Group(r.Context())
	api.WriteJSON(w, http.StatusOK, &OutGetGroup{
		ID:          g.ID,
		Name:        g.Name,
		Avatar:      g.Avatar,
		OwnerID:     g.OwnerID,
		HasPassword: g.HasPassword,
		CreatedAt:   g.CreatedAt,
		MemberCount: g.MemberCount,
	})
}

func (h *Handlers) kick(w http.ResponseWriter, r *http.Request) {
	h.target(w, r, h.svc.KickMember)
}

func (h *Handlers) transfer(w http.ResponseWriter, r *http.Request) {
	h.target(w, r, h.svc.TransferOwnership)
}

func (h *Handlers) target(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, name, ownerID, targetID string) error) {
	u := middleware.User(r.Context())
	var body InTarget
	if err := api.Decode(r, &body); err != nil {
		api.BadRequest(w, err.Error())
		return
	}
	if err := op(r.Context(), body.GroupName, u.ID, body.TargetUserID); err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) dissolve(w http.ResponseWriter, r *http.Request) {
	u := middleware.User(r.Context())
	var body InGroupName
	if err := api.Decode(r, &body); err != nil {
		api.BadRequest(w, err.Error())
		return
	}
	if err := h.svc.DissolveGroup(r.Context(), body.GroupName, u.ID); err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) updateInfo(w http.ResponseWriter, r *http.Request) {
	u := middleware.User(r.Context())
	var body InUpdateInfo
	if err := api.Decode(r, &body); err != nil {
		api.BadRequest(w, err.Error())
		return
	}
	if err := h.svc.UpdateInfo(r.Context(), body.GroupName, u.ID, body.NewName, body.NewAvatar); err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) updatePassword(w http.ResponseWriter, r *http.Request) {
	u := middleware.User(r.Context())
	var body InUpdatePassword
	if err := api.Decode(r, &body); err != nil {
		api.BadRequest(w, err.Error())
		return
	}
	if err := h.svc.UpdatePassword(r.Context(), body.GroupName, u.ID, body.NewPassword); err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) createMsg(w http.ResponseWriter, r *http.Request) {
	u := middleware.User(r.Context())
	var body InCreateMsg
	if err := api.Decode(r, &body); err != nil {
		api.BadRequest(w, err.Error())
		return
	}
	if err := h.svc.PostMessage(r.Context(), chi.URLParam(r, "groupID"), u.ID, body.Message); err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// SetupRoutes registers the group routes on r, which is already mounted at
// /groups behind the authenticator.
func (h *Handlers) SetupRoutes(r chi.Router) {
	r.Post("/", h.createGroup)
	r.Post("/kick", h.kick)
	r.Post("/transfer", h.transfer)
	r.Post("/dissolve", h.dissolve)
	r.Post("/info", h.updateInfo)
	r.Post("/password", h.updatePassword)
	r.With(middleware.WithGroup(h.logger, h.svc)).Get("/{groupID}", h.getGroup)
	r.Post("/{groupID}/messages", h.createMsg)
}

func NewHandlers(l *slog.Logger, svc Service) *Handlers {
	return &Handlers{logger: l, svc: svc}
}
