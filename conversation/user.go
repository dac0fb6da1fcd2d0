package conversation

import (
	"context"
	"strings"
)

// Directory keeps the user records fan-out reads: identity, the live channel
// of the current session and the mobile push token.
type Directory struct {
	store Store
}

func NewDirectory(store Store) *Directory {
	return &Directory{store: store}
}

// Ensure creates the user or refreshes its identity fields. The channel and
// push token are left as they are.
func (d *Directory) Ensure(ctx context.Context, id, email, nickname string) (*User, error) {
	var out User
	err := d.store.Update(ctx, func(tx Tx) error {
		u, err := tx.User(id)
		if err != nil {
			return err
		}
		if u == nil {
			u = &User{ID: id}
		}
		if email != "" {
			u.Email = email
		}
		if nickname != "" {
			u.Nickname = nickname
		} else if u.Nickname == "" {
			u.Nickname, _, _ = strings.Cut(u.Email, "@")
		}
		out = *u
		return tx.SaveUser(u)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *Directory) Find(ctx context.Context, id string) (*User, error) {
	var out *User
	err := d.store.View(ctx, func(tx Tx) error {
		u, err := tx.User(id)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrNotFound.Withf("user %s not found", id)
		}
		out = u
		return nil
	})
	return out, err
}

// BindChannel records handle as the user's live channel.
func (d *Directory) BindChannel(ctx context.Context, userID, handle string) error {
	return d.modify(ctx, userID, func(u *User) { u.CurrentChannel = handle })
}

// UnbindChannel clears the live channel if it is still handle. A newer
// session that already replaced it is left alone.
func (d *Directory) UnbindChannel(ctx context.Context, userID, handle string) error {
	return d.modify(ctx, userID, func(u *User) {
		if u.CurrentChannel == handle {
			u.CurrentChannel = ""
		}
	})
}

func (d *Directory) SetPushToken(ctx context.Context, userID, token string) error {
	return d.modify(ctx, userID, func(u *User) { u.PushToken = token })
}

func (d *Directory) modify(ctx context.Context, userID string, fn func(u *User)) error {
	return d.store.Update(ctx, func(tx Tx) error {
		u, err := tx.User(userID)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrNotFound.Withf("user %s not found", userID)
		}
		fn(u)
		return tx.SaveUser(u)
	})
}
