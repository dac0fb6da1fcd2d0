package db

import (
	"database/sql"

	"github.com/puoklam/groupchat/conversation"
	"github.com/puoklam/groupchat/db/model"
)

func toGroup(g *model.Group) *conversation.Group {
	return &conversation.Group{
		ID:            g.ID,
		Name:          g.Name,
		NameKey:       g.NameKey,
		HasPassword:   g.HasPassword,
		JoinPassword:  g.JoinPassword,
		OwnerID:       g.OwnerID,
		Avatar:        g.Avatar,
		EncryptionKey: g.EncryptionKey,
		CreatedAt:     g.CreatedAt,
	}
}

func fromGroup(g *conversation.Group) *model.Group {
	return &model.Group{
		Base:          model.Base{CreatedAt: g.CreatedAt},
		ID:            g.ID,
		Name:          g.Name,
		NameKey:       g.NameKey,
		HasPassword:   g.HasPassword,
		JoinPassword:  g.JoinPassword,
		OwnerID:       g.OwnerID,
		Avatar:        g.Avatar,
		EncryptionKey: g.EncryptionKey,
	}
}

func toMembership(m *model.Membership) *conversation.Membership {
	out := &conversation.Membership{
		GroupID:  m.GroupID,
		UserID:   m.UserID,
		Muted:    m.Muted,
		JoinedAt: m.CreatedAt,
	}
	if m.ReadAt.Valid {
		out.ReadAt = m.ReadAt.Time
	}
	return out
}

func fromMembership(m *conversation.Membership) *model.Membership {
	return &model.Membership{
		CreatedAt: m.JoinedAt,
		GroupID:   m.GroupID,
		UserID:    m.UserID,
		Muted:     m.Muted,
		ReadAt:    sql.NullTime{Time: m.ReadAt, Valid: !m.ReadAt.IsZero()},
	}
}
