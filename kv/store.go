// Package kv stores groups, memberships and users in Badger. Uniqueness of
// group names and memberships rides on Badger's optimistic transactions: two
// writers touching the same index key conflict at commit and one of them is
// retried against the winner's state.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/puoklam/groupchat/conversation"
)

const maxConflictRetries = 5

const (
	groupPrefix      = "group:"
	namePrefix       = "group_name:"
	ownedPrefix      = "owned:"
	membershipPrefix = "member:"
	userPrefix       = "user:"
)

func groupKey(id string) []byte        { return []byte(groupPrefix + id) }
func nameKey(key string) []byte        { return []byte(namePrefix + key) }
func ownedKey(owner, id string) []byte { return []byte(ownedPrefix + owner + ":" + id) }
func ownedScan(owner string) []byte    { return []byte(ownedPrefix + owner + ":") }
func memberKey(gid, uid string) []byte { return []byte(membershipPrefix + gid + ":" + uid) }
func memberScan(gid string) []byte     { return []byte(membershipPrefix + gid + ":") }
func userKey(id string) []byte         { return []byte(userPrefix + id) }

type Store struct {
	db  *badger.DB
	log *slog.Logger
}

func NewStore(log *slog.Logger, db *badger.DB) *Store {
	return &Store{db: db, log: log}
}

// Open opens a Badger database at path, in memory when path is empty.
func Open(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}

func (s *Store) View(ctx context.Context, fn func(tx conversation.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&tx{txn: txn})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return s.View(ctx, func(conversation.Tx) error { return nil })
}

// Update retries fn when the commit loses a conflict to a concurrent writer.
func (s *Store) Update(ctx context.Context, fn func(tx conversation.Tx) error) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			return fn(&tx{txn: txn})
		})
		if !errors.Is(err, badger.ErrConflict) || attempt == maxConflictRetries {
			return err
		}
		s.log.Debug("Transaction conflict, retrying", "attempt", attempt)
	}
}

type tx struct {
	txn *badger.Txn
}

func (t *tx) get(key []byte, v any) (bool, error) {
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func (t *tx) set(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return t.txn.Set(key, data)
}

func (t *tx) exists(key []byte) (bool, error) {
	_, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// keys lists every key under prefix without reading values.
func (t *tx) keys(prefix []byte) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	var out [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		out = append(out, it.Item().KeyCopy(nil))
	}
	return out, nil
}

func (t *tx) GroupByID(id string) (*conversation.Group, error) {
	var g conversation.Group
	ok, err := t.get(groupKey(id), &g)
	if err != nil || !ok {
		return nil, err
	}
	return &g, nil
}

func (t *tx) GroupByName(key string) (*conversation.Group, error) {
	item, err := t.txn.Get(nameKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return t.GroupByID(string(id))
}

func (t *tx) CreateGroup(g *conversation.Group) error {
	taken, err := t.exists(nameKey(g.NameKey))
	if err != nil {
		return err
	}
	if taken {
		return conversation.ErrNameTaken
	}
	if err := t.txn.Set(nameKey(g.NameKey), []byte(g.ID)); err != nil {
		return err
	}
	if err := t.setOwned(g); err != nil {
		return err
	}
	return t.set(groupKey(g.ID), g)
}

func (t *tx) SaveGroup(g *conversation.Group) error {
	prev, err := t.GroupByID(g.ID)
	if err != nil {
		return err
	}
	if prev == nil {
		return fmt.Errorf("group %s does not exist", g.ID)
	}
	if prev.NameKey != g.NameKey {
		taken, err := t.exists(nameKey(g.NameKey))
		if err != nil {
			return err
		}
		if taken {
			return conversation.ErrNameTaken
		}
		if err := t.txn.Delete(nameKey(prev.NameKey)); err != nil {
			return err
		}
		if err := t.txn.Set(nameKey(g.NameKey), []byte(g.ID)); err != nil {
			return err
		}
	}
	if prev.OwnerID != g.OwnerID {
		if err := t.txn.Delete(ownedKey(prev.OwnerID, g.ID)); err != nil {
			return err
		}
		if err := t.setOwned(g); err != nil {
			return err
		}
	}
	return t.set(groupKey(g.ID), g)
}

func (t *tx) setOwned(g *conversation.Group) error {
	stamp, err := g.CreatedAt.MarshalBinary()
	if err != nil {
		return err
	}
	return t.txn.Set(ownedKey(g.OwnerID, g.ID), stamp)
}

func (t *tx) DeleteGroup(id string) error {
	g, err := t.GroupByID(id)
	if err != nil || g == nil {
		return err
	}
	members, err := t.keys(memberScan(id))
	if err != nil {
		return err
	}
	for _, k := range members {
		if err := t.txn.Delete(k); err != nil {
			return err
		}
	}
	if err := t.txn.Delete(nameKey(g.NameKey)); err != nil {
		return err
	}
	if err := t.txn.Delete(ownedKey(g.OwnerID, id)); err != nil {
		return err
	}
	return t.txn.Delete(groupKey(id))
}

func (t *tx) GroupIDs() ([]string, error) {
	keys, err := t.keys([]byte(groupPrefix))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(string(k), groupPrefix))
	}
	return ids, nil
}

func (t *tx) CountOwnedSince(ownerID string, since time.Time) (int, error) {
	prefix := ownedScan(ownerID)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var created time.Time
		err := it.Item().Value(func(val []byte) error {
			return created.UnmarshalBinary(val)
		})
		if err != nil {
			return 0, err
		}
		if created.After(since) {
			n++
		}
	}
	return n, nil
}

func (t *tx) Membership(groupID, userID string) (*conversation.Membership, error) {
	var m conversation.Membership
	ok, err := t.get(memberKey(groupID, userID), &m)
	if err != nil || !ok {
		return nil, err
	}
	return &m, nil
}

func (t *tx) CreateMembership(m *conversation.Membership) error {
	dup, err := t.exists(memberKey(m.GroupID, m.UserID))
	if err != nil {
		return err
	}
	if dup {
		return conversation.ErrDuplicateMembership
	}
	return t.set(memberKey(m.GroupID, m.UserID), m)
}

func (t *tx) SaveMembership(m *conversation.Membership) error {
	return t.set(memberKey(m.GroupID, m.UserID), m)
}

func (t *tx) DeleteMembership(groupID, userID string) error {
	return t.txn.Delete(memberKey(groupID, userID))
}

func (t *tx) CountMemberships(groupID string) (int, error) {
	keys, err := t.keys(memberScan(groupID))
	return len(keys), err
}

func (t *tx) Members(groupID string) ([]conversation.Member, error) {
	prefix := memberScan(groupID)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)

	var memberships []conversation.Membership
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var m conversation.Membership
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &m)
		}); err != nil {
			it.Close()
			return nil, err
		}
		memberships = append(memberships, m)
	}
	it.Close()

	out := make([]conversation.Member, 0, len(memberships))
	for _, m := range memberships {
		u, err := t.User(m.UserID)
		if err != nil {
			return nil, err
		}
		if u == nil {
			u = &conversation.User{ID: m.UserID}
		}
		out = append(out, conversation.Member{Membership: m, User: *u})
	}
	return out, nil
}

func (t *tx) User(id string) (*conversation.User, error) {
	var u conversation.User
	ok, err := t.get(userKey(id), &u)
	if err != nil || !ok {
		return nil, err
	}
	return &u, nil
}

func (t *tx) SaveUser(u *conversation.User) error {
	return t.set(userKey(u.ID), u)
}
