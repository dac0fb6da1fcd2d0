package kv

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/puoklam/groupchat/conversation"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(logs.GetLoggerFromLevel(slog.LevelDebug), db)
}

func group(id, name, owner string, at time.Time) *conversation.Group {
	return &conversation.Group{ID: id, Name: name, NameKey: conversation.NameKey(name), OwnerID: owner, CreatedAt: at}
}

func TestStore_GroupNameIndex(t *testing.T) {
	req := require.New(t)
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	req.NoError(s.Update(ctx, func(tx conversation.Tx) error {
		return tx.CreateGroup(group("g1", "Team", "alice", now))
	}))

	err := s.Update(ctx, func(tx conversation.Tx) error {
		return tx.CreateGroup(group("g2", "team", "bob", now))
	})
	req.ErrorIs(err, conversation.ErrNameTaken)

	req.NoError(s.View(ctx, func(tx conversation.Tx) error {
		g, err := tx.GroupByName("team")
		req.NoError(err)
		req.Equal("g1", g.ID)
		req.Equal("Team", g.Name)
		missing, err := tx.GroupByID("g2")
		req.NoError(err)
		req.Nil(missing)
		return nil
	}))
}

func TestStore_SaveGroupMovesIndexes(t *testing.T) {
	req := require.New(t)
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	req.NoError(s.Update(ctx, func(tx conversation.Tx) error {
		if err := tx.CreateGroup(group("g1", "Team", "alice", now)); err != nil {
			return err
		}
		return tx.CreateGroup(group("g2", "Other", "alice", now))
	}))

	// Given a rename onto a taken name
	err := s.Update(ctx, func(tx conversation.Tx) error {
		return tx.SaveGroup(group("g1", "other", "alice", now))
	})
	req.ErrorIs(err, conversation.ErrNameTaken)

	req.NoError(s.Update(ctx, func(tx conversation.Tx) error {
		return tx.SaveGroup(group("g1", "Crew", "bob", now))
	}))

	req.NoError(s.View(ctx, func(tx conversation.Tx) error {
		old, err := tx.GroupByName("team")
		req.NoError(err)
		req.Nil(old)
		g, err := tx.GroupByName("crew")
		req.NoError(err)
		req.Equal("g1", g.ID)

		n, err := tx.CountOwnedSince("alice", now.Add(-time.Hour))
		req.NoError(err)
		req.Equal(1, n)
		n, err = tx.CountOwnedSince("bob", now.Add(-time.Hour))
		req.NoError(err)
		req.Equal(1, n)
		return nil
	}))
}

func TestStore_CountOwnedSince(t *testing.T) {
	req := require.New(t)
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	req.NoError(s.Update(ctx, func(tx conversation.Tx) error {
		for i, age := range []time.Duration{time.Hour, 2 * time.Hour, 30 * time.Hour} {
			g := group(string(rune('a'+i)), string(rune('A'+i)), "alice", now.Add(-age))
			if err := tx.CreateGroup(g); err != nil {
				return err
			}
		}
		return tx.CreateGroup(group("z", "Z", "alicea", now))
	}))

	req.NoError(s.View(ctx, func(tx conversation.Tx) error {
		n, err := tx.CountOwnedSince("alice", now.Add(-24*time.Hour))
		req.NoError(err)
		req.Equal(2, n)
		return nil
	}))
}

func TestStore_Memberships(t *testing.T) {
	req := require.New(t)
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	req.NoError(s.Update(ctx, func(tx conversation.Tx) error {
		if err := tx.SaveUser(&conversation.User{ID: "alice", Email: "alice@example.com", CurrentChannel: "h"}); err != nil {
			return err
		}
		if err := tx.CreateGroup(group("g1", "Team", "alice", now)); err != nil {
			return err
		}
		if err := tx.CreateMembership(&conversation.Membership{GroupID: "g1", UserID: "alice", JoinedAt: now}); err != nil {
			return err
		}
		return tx.CreateMembership(&conversation.Membership{GroupID: "g1", UserID: "ghost", JoinedAt: now})
	}))

	err := s.Update(ctx, func(tx conversation.Tx) error {
		return tx.CreateMembership(&conversation.Membership{GroupID: "g1", UserID: "alice"})
	})
	req.ErrorIs(err, conversation.ErrDuplicateMembership)

	req.NoError(s.Update(ctx, func(tx conversation.Tx) error {
		m, err := tx.Membership("g1", "alice")
		if err != nil {
			return err
		}
		m.Muted = true
		return tx.SaveMembership(m)
	}))

	req.NoError(s.View(ctx, func(tx conversation.Tx) error {
		members, err := tx.Members("g1")
		req.NoError(err)
		req.Len(members, 2)
		byID := map[string]conversation.Member{}
		for _, m := range members {
			byID[m.UserID] = m
		}
		req.True(byID["alice"].Muted)
		req.Equal("h", byID["alice"].User.CurrentChannel)
		req.Equal("ghost", byID["ghost"].User.ID)
		req.Empty(byID["ghost"].User.Email)
		return nil
	}))
}

func TestStore_DeleteGroupCascades(t *testing.T) {
	req := require.New(t)
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	req.NoError(s.Update(ctx, func(tx conversation.Tx) error {
		if err := tx.CreateGroup(group("g1", "Team", "alice", now)); err != nil {
			return err
		}
		if err := tx.CreateGroup(group("g10", "Team 10", "alice", now)); err != nil {
			return err
		}
		if err := tx.CreateMembership(&conversation.Membership{GroupID: "g1", UserID: "alice"}); err != nil {
			return err
		}
		return tx.CreateMembership(&conversation.Membership{GroupID: "g10", UserID: "alice"})
	}))

	req.NoError(s.Update(ctx, func(tx conversation.Tx) error {
		return tx.DeleteGroup("g1")
	}))

	req.NoError(s.View(ctx, func(tx conversation.Tx) error {
		n, err := tx.CountMemberships("g1")
		req.NoError(err)
		req.Zero(n)
		n, err = tx.CountMemberships("g10")
		req.NoError(err)
		req.Equal(1, n)
		g, err := tx.GroupByName("team")
		req.NoError(err)
		req.Nil(g)
		ids, err := tx.GroupIDs()
		req.NoError(err)
		req.Equal([]string{"g10"}, ids)
		owned, err := tx.CountOwnedSince("alice", now.Add(-time.Hour))
		req.NoError(err)
		req.Equal(1, owned)
		return nil
	}))
}

func TestStore_UpdateRollsBack(t *testing.T) {
	req := require.New(t)
	s := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Update(ctx, func(tx conversation.Tx) error {
		if err := tx.CreateGroup(group("g1", "Team", "alice", time.Now())); err != nil {
			return err
		}
		return boom
	})
	req.ErrorIs(err, boom)

	req.NoError(s.View(ctx, func(tx conversation.Tx) error {
		g, err := tx.GroupByID("g1")
		req.NoError(err)
		req.Nil(g)
		return nil
	}))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	req.ErrorIs(s.Ping(cancelled), context.Canceled)
	req.NoError(s.Ping(ctx))
}

// raceUpdates runs every fn in its own Update. First attempts wait for each
// other after running, so all of them commit against the same snapshot.
func raceUpdates(s *Store, fns ...func(tx conversation.Tx) error) []error {
	var ready, done sync.WaitGroup
	ready.Add(len(fns))
	errs := make([]error, len(fns))
	for i, fn := range fns {
		done.Add(1)
		go func() {
			defer done.Done()
			first := true
			errs[i] = s.Update(context.Background(), func(tx conversation.Tx) error {
				err := fn(tx)
				if first {
					first = false
					ready.Done()
					ready.Wait()
				}
				return err
			})
		}()
	}
	done.Wait()
	return errs
}

func TestStore_UnlockedCreatesConflictAtCommit(t *testing.T) {
	req := require.New(t)
	s := newStore(t)
	now := time.Now().UTC()

	errs := raceUpdates(s,
		func(tx conversation.Tx) error { return tx.CreateGroup(group("g1", "X", "alice", now)) },
		func(tx conversation.Tx) error { return tx.CreateGroup(group("g2", " x", "bob", now)) },
	)

	req.Equal(1, lo.CountBy(errs, func(err error) bool { return err == nil }))
	req.Equal(1, lo.CountBy(errs, func(err error) bool { return errors.Is(err, conversation.ErrNameTaken) }))
	req.NoError(s.View(context.Background(), func(tx conversation.Tx) error {
		ids, err := tx.GroupIDs()
		req.NoError(err)
		req.Len(ids, 1)
		return nil
	}))
}

func TestStore_UnlockedJoinsConflictAtCommit(t *testing.T) {
	req := require.New(t)
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	req.NoError(s.Update(ctx, func(tx conversation.Tx) error {
		return tx.CreateGroup(group("g1", "Team", "alice", now))
	}))
	join := func(tx conversation.Tx) error {
		return tx.CreateMembership(&conversation.Membership{GroupID: "g1", UserID: "bob", JoinedAt: now})
	}

	errs := raceUpdates(s, join, join)

	req.Equal(1, lo.CountBy(errs, func(err error) bool { return err == nil }))
	req.Equal(1, lo.CountBy(errs, func(err error) bool { return errors.Is(err, conversation.ErrDuplicateMembership) }))
	req.NoError(s.View(ctx, func(tx conversation.Tx) error {
		n, err := tx.CountMemberships("g1")
		req.NoError(err)
		req.Equal(1, n)
		return nil
	}))
}
