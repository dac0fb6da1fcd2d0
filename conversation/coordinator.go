package conversation

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/puoklam/groupchat/notify"
)

// maxResolveAttempts bounds how often a name is re-resolved when the group
// behind it changes between lookup and lock.
const maxResolveAttempts = 3

// Coordinator runs every operation that changes or reads group membership.
// Each mutation holds the per-group lock for its whole read-validate-write
// sequence, commits in one transaction, and only then hands the change to
// the notifier.
type Coordinator struct {
	log      *slog.Logger
	store    Store
	locker   Locker
	notifier Notifier
	quota    *QuotaGuard
	reaper   *Reaper
	hashCost int
	now      func() time.Time
}

type Option func(*Coordinator)

// WithHashCost sets the bcrypt cost of join passwords.
func WithHashCost(cost int) Option {
	return func(c *Coordinator) { c.hashCost = cost }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(log *slog.Logger, store Store, locker Locker, notifier Notifier, quota *QuotaGuard, reaper *Reaper, opts ...Option) *Coordinator {
	c := &Coordinator{
		log:      log,
		store:    store,
		locker:   locker,
		notifier: notifier,
		quota:    quota,
		reaper:   reaper,
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateGroup creates a group owned by ownerID, who becomes its first member.
func (c *Coordinator) CreateGroup(ctx context.Context, name, ownerID, password string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidArgument.Withf("group name is empty")
	}
	key := NameKey(name)
	hash, err := c.hashPassword(password)
	if err != nil {
		return "", err
	}
	encKey, err := newEncryptionKey()
	if err != nil {
		return "", err
	}

	unlock, err := c.locker.Lock(ctx, nameLockKey(key), ownerLockKey(ownerID))
	if err != nil {
		return "", fmt.Errorf("lock: %w", err)
	}
	defer unlock()

	now := c.now()
	g := &Group{
		ID:            uuid.NewString(),
		Name:          name,
		NameKey:       key,
		HasPassword:   hash != "",
		JoinPassword:  hash,
		OwnerID:       ownerID,
		EncryptionKey: encKey,
		CreatedAt:     now,
	}
	err = c.store.Update(ctx, func(tx Tx) error {
		existing, err := tx.GroupByName(key)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyExists.Withf("group %q already exists", name)
		}
		if err := c.quota.Check(tx, ownerID, now); err != nil {
			return err
		}
		if err := tx.CreateGroup(g); err != nil {
			if errors.Is(err, ErrNameTaken) {
				return ErrAlreadyExists.Wrap(err)
			}
			return err
		}
		return tx.CreateMembership(&Membership{GroupID: g.ID, UserID: ownerID, JoinedAt: now})
	})
	if err != nil {
		return "", err
	}
	c.log.Info("Group created", "group_id", g.ID, "name", name, "owner_id", ownerID)
	return g.ID, nil
}

// JoinGroup adds userID to the named group. A password-protected group
// requires the join password; space around the supplied value is ignored,
// the stored value is compared as set.
func (c *Coordinator) JoinGroup(ctx context.Context, name, userID, password string) error {
	var (
		joiner  User
		members []Member
		groupID string
	)
	err := c.withGroup(ctx, name, nil, func(tx Tx, g *Group) error {
		if g.HasPassword {
			supplied := []byte(strings.TrimSpace(password))
			if err := bcrypt.CompareHashAndPassword([]byte(g.JoinPassword), supplied); err != nil {
				return ErrWrongCredential
			}
		}
		m, err := tx.Membership(g.ID, userID)
		if err != nil {
			return err
		}
		if m != nil {
			return ErrAlreadyMember
		}
		members, err = tx.Members(g.ID)
		if err != nil {
			return err
		}
		if err := tx.CreateMembership(&Membership{GroupID: g.ID, UserID: userID, JoinedAt: c.now()}); err != nil {
			if errors.Is(err, ErrDuplicateMembership) {
				return ErrAlreadyMember.Wrap(err)
			}
			return err
		}
		joiner, err = userOrStub(tx, userID)
		groupID = g.ID
		return err
	})
	if err != nil {
		return err
	}
	c.log.Info("Member joined", "group_id", groupID, "user_id", userID)
	c.notifier.Broadcast(notify.NewMember(groupID, joiner.summary()), joiner.Email, recipients(members), userID)
	return nil
}

// LeaveGroup removes userID from the named group. The owner cannot leave;
// ownership has to be transferred or the group dissolved first.
func (c *Coordinator) LeaveGroup(ctx context.Context, name, userID string) error {
	var (
		leaver    User
		remaining []Member
		groupID   string
		reaped    bool
	)
	err := c.withGroup(ctx, name, nil, func(tx Tx, g *Group) error {
		m, err := tx.Membership(g.ID, userID)
		if err != nil {
			return err
		}
		if m == nil {
			return ErrNotMember
		}
		if g.OwnerID == userID {
			return ErrOwnerCannotLeave
		}
		if leaver, err = userOrStub(tx, userID); err != nil {
			return err
		}
		if err := tx.DeleteMembership(g.ID, userID); err != nil {
			return err
		}
		if reaped, err = c.reaper.Reap(tx, g.ID); err != nil {
			return err
		}
		remaining, err = tx.Members(g.ID)
		groupID = g.ID
		return err
	})
	if err != nil {
		return err
	}
	c.log.Info("Member left", "group_id", groupID, "user_id", userID, "reaped", reaped)
	c.notifier.Broadcast(notify.SomeoneLeft(groupID, leaver.summary()), leaver.Email, recipients(remaining), userID)
	return nil
}

// KickMember lets the owner remove another member. The kicked user is
// notified along with everyone else still in the group.
func (c *Coordinator) KickMember(ctx context.Context, name, ownerID, targetID string) error {
	var (
		owner, kicked User
		snapshot      []Member
		groupID       string
	)
	err := c.withOwnedGroup(ctx, name, ownerID, nil, func(tx Tx, g *Group) error {
		if targetID == ownerID {
			return ErrOwnerCannotLeave
		}
		m, err := tx.Membership(g.ID, targetID)
		if err != nil {
			return err
		}
		if m == nil {
			return ErrNotFound.Withf("user %s is not in group %q", targetID, g.Name)
		}
		if snapshot, err = tx.Members(g.ID); err != nil {
			return err
		}
		if owner, err = userOrStub(tx, ownerID); err != nil {
			return err
		}
		if kicked, err = userOrStub(tx, targetID); err != nil {
			return err
		}
		if err := tx.DeleteMembership(g.ID, targetID); err != nil {
			return err
		}
		_, err = c.reaper.Reap(tx, g.ID)
		groupID = g.ID
		return err
	})
	if err != nil {
		return err
	}
	c.log.Info("Member kicked", "group_id", groupID, "user_id", targetID, "by", ownerID)
	c.notifier.Broadcast(notify.SomeoneLeft(groupID, kicked.summary()), owner.Email, recipients(snapshot), ownerID)
	return nil
}

// TransferOwnership hands the group to another member.
func (c *Coordinator) TransferOwnership(ctx context.Context, name, ownerID, targetID string) error {
	var groupID string
	err := c.withOwnedGroup(ctx, name, ownerID, nil, func(tx Tx, g *Group) error {
		m, err := tx.Membership(g.ID, targetID)
		if err != nil {
			return err
		}
		if m == nil {
			return ErrNotFound.Withf("user %s is not in group %q", targetID, g.Name)
		}
		if g.OwnerID == targetID {
			return ErrAlreadyOwner
		}
		g.OwnerID = targetID
		groupID = g.ID
		return tx.SaveGroup(g)
	})
	if err != nil {
		return err
	}
	c.log.Info("Ownership transferred", "group_id", groupID, "from", ownerID, "to", targetID)
	return nil
}

// DissolveGroup deletes the group and all its memberships. Every member,
// owner included, is told.
func (c *Coordinator) DissolveGroup(ctx context.Context, name, ownerID string) error {
	var (
		owner    User
		snapshot []Member
		groupID  string
	)
	err := c.withOwnedGroup(ctx, name, ownerID, nil, func(tx Tx, g *Group) error {
		var err error
		if snapshot, err = tx.Members(g.ID); err != nil {
			return err
		}
		if owner, err = userOrStub(tx, ownerID); err != nil {
			return err
		}
		groupID = g.ID
		return tx.DeleteGroup(g.ID)
	})
	if err != nil {
		return err
	}
	c.log.Info("Group dissolved", "group_id", groupID, "members", len(snapshot))
	c.notifier.Broadcast(notify.Dissolve(groupID), owner.Email, recipients(snapshot), "")
	return nil
}

// SetMuted changes the caller's mute flag. Setting the current value fails
// with ErrNoOp.
func (c *Coordinator) SetMuted(ctx context.Context, name, userID string, muted bool) error {
	return c.withGroup(ctx, name, nil, func(tx Tx, g *Group) error {
		m, err := tx.Membership(g.ID, userID)
		if err != nil {
			return err
		}
		if m == nil {
			return ErrNotMember
		}
		if m.Muted == muted {
			return ErrNoOp.Withf("muted is already %t", muted)
		}
		m.Muted = muted
		return tx.SaveMembership(m)
	})
}

// UpdateInfo renames the group and/or changes its avatar. Empty values are
// left untouched.
func (c *Coordinator) UpdateInfo(ctx context.Context, name, ownerID, newName, newAvatar string) error {
	newName = strings.TrimSpace(newName)
	var extra []string
	if newName != "" {
		extra = append(extra, nameLockKey(NameKey(newName)))
	}
	return c.withOwnedGroup(ctx, name, ownerID, extra, func(tx Tx, g *Group) error {
		if newName != "" && newName != g.Name {
			key := NameKey(newName)
			if key != g.NameKey {
				other, err := tx.GroupByName(key)
				if err != nil {
					return err
				}
				if other != nil {
					return ErrAlreadyExists.Withf("group %q already exists", newName)
				}
			}
			g.Name, g.NameKey = newName, key
		}
		if newAvatar != "" {
			g.Avatar = newAvatar
		}
		if err := tx.SaveGroup(g); err != nil {
			if errors.Is(err, ErrNameTaken) {
				return ErrAlreadyExists.Wrap(err)
			}
			return err
		}
		return nil
	})
}

// UpdatePassword sets or, with an empty password, clears the join password.
func (c *Coordinator) UpdatePassword(ctx context.Context, name, ownerID, password string) error {
	hash, err := c.hashPassword(password)
	if err != nil {
		return err
	}
	return c.withOwnedGroup(ctx, name, ownerID, nil, func(tx Tx, g *Group) error {
		g.HasPassword = hash != ""
		g.JoinPassword = hash
		return tx.SaveGroup(g)
	})
}

// GroupSummary returns the public view of a group by id.
func (c *Coordinator) GroupSummary(ctx context.Context, groupID string) (*Summary, error) {
	var s *Summary
	err := c.store.View(ctx, func(tx Tx) error {
		g, err := tx.GroupByID(groupID)
		if err != nil {
			return err
		}
		if g == nil {
			return ErrNotFound.Withf("group %s not found", groupID)
		}
		n, err := tx.CountMemberships(groupID)
		if err != nil {
			return err
		}
		s = &Summary{
			ID:          g.ID,
			Name:        g.Name,
			Avatar:      g.Avatar,
			OwnerID:     g.OwnerID,
			HasPassword: g.HasPassword,
			CreatedAt:   g.CreatedAt,
			MemberCount: n,
		}
		return nil
	})
	return s, err
}

// Members lists the members of the named group. Only members may list.
func (c *Coordinator) Members(ctx context.Context, name, userID string) ([]Member, error) {
	var members []Member
	err := c.store.View(ctx, func(tx Tx) error {
		g, err := tx.GroupByName(NameKey(name))
		if err != nil {
			return err
		}
		if g == nil {
			return groupNotFound(name)
		}
		m, err := tx.Membership(g.ID, userID)
		if err != nil {
			return err
		}
		if m == nil {
			return ErrNotMember
		}
		members, err = tx.Members(g.ID)
		return err
	})
	return members, err
}

// MarkRead records that userID has read the named group up to now.
func (c *Coordinator) MarkRead(ctx context.Context, name, userID string) error {
	return c.withGroup(ctx, name, nil, func(tx Tx, g *Group) error {
		m, err := tx.Membership(g.ID, userID)
		if err != nil {
			return err
		}
		if m == nil {
			return ErrNotMember
		}
		m.ReadAt = c.now()
		return tx.SaveMembership(m)
	})
}

// PostMessage fans a message out to every member of the group. Sending
// counts as reading for the sender.
func (c *Coordinator) PostMessage(ctx context.Context, groupID, senderID, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrInvalidArgument.Withf("message is empty")
	}
	unlock, err := c.locker.Lock(ctx, groupLockKey(groupID))
	if err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	defer unlock()

	var (
		g       *Group
		sender  User
		members []Member
	)
	err = c.store.Update(ctx, func(tx Tx) error {
		var err error
		if g, err = tx.GroupByID(groupID); err != nil {
			return err
		}
		if g == nil {
			return ErrNotFound.Withf("group %s not found", groupID)
		}
		m, err := tx.Membership(groupID, senderID)
		if err != nil {
			return err
		}
		if m == nil {
			return ErrNotMember
		}
		m.ReadAt = c.now()
		if err := tx.SaveMembership(m); err != nil {
			return err
		}
		if sender, err = userOrStub(tx, senderID); err != nil {
			return err
		}
		members, err = tx.Members(groupID)
		return err
	})
	if err != nil {
		return err
	}
	c.notifier.NewMessage(notify.Message{
		ConversationID: g.ID,
		EncryptionKey:  g.EncryptionKey,
		Sender:         sender.summary(),
		Content:        content,
	}, recipients(members))
	return nil
}

// withGroup resolves name to a group id, locks that id plus extra, then runs
// fn in one transaction against the re-read group. If the name moved to a
// different group in between, resolution starts over.
func (c *Coordinator) withGroup(ctx context.Context, name string, extra []string, fn func(tx Tx, g *Group) error) error {
	return c.locked(ctx, name, extra, findGroup, fn)
}

// withOwnedGroup is withGroup for operations only the owner may run.
func (c *Coordinator) withOwnedGroup(ctx context.Context, name, ownerID string, extra []string, fn func(tx Tx, g *Group) error) error {
	find := func(tx Tx, key, id string) (*Group, error) {
		return findOwnedGroup(tx, key, id, ownerID)
	}
	return c.locked(ctx, name, extra, find, fn)
}

func (c *Coordinator) locked(ctx context.Context, name string, extra []string, find func(tx Tx, key, id string) (*Group, error), fn func(tx Tx, g *Group) error) error {
	key := NameKey(name)
	for attempt := 0; ; attempt++ {
		id, err := c.resolve(ctx, name, key)
		if err != nil {
			return err
		}
		unlock, err := c.locker.Lock(ctx, append([]string{groupLockKey(id)}, extra...)...)
		if err != nil {
			return fmt.Errorf("lock: %w", err)
		}
		moved := false
		err = c.store.Update(ctx, func(tx Tx) error {
			moved = false
			g, err := find(tx, key, id)
			if err != nil {
				moved = KindOf(err) == KindNotFound
				return err
			}
			return fn(tx, g)
		})
		unlock()
		if moved {
			if attempt+1 < maxResolveAttempts {
				continue
			}
			return groupNotFound(name)
		}
		return err
	}
}

func (c *Coordinator) resolve(ctx context.Context, name, key string) (string, error) {
	var id string
	err := c.store.View(ctx, func(tx Tx) error {
		g, err := tx.GroupByName(key)
		if err != nil {
			return err
		}
		if g == nil {
			return groupNotFound(name)
		}
		id = g.ID
		return nil
	})
	return id, err
}

// hashPassword hashes the join password as given. Empty means none.
func (c *Coordinator) hashPassword(password string) (string, error) {
	if password == "" {
		return "", nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), c.hashCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrInvalidArgument.Wrap(err)
		}
		return "", fmt.Errorf("hash join password: %w", err)
	}
	return string(hash), nil
}

func userOrStub(tx Tx, id string) (User, error) {
	u, err := tx.User(id)
	if err != nil {
		return User{}, err
	}
	if u == nil {
		return User{ID: id}, nil
	}
	return *u, nil
}

func newEncryptionKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate encryption key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
