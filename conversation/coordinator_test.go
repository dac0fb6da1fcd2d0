package conversation_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"github.com/puoklam/groupchat/conversation"
	"github.com/puoklam/groupchat/kv"
	"github.com/puoklam/groupchat/mocks"
	"github.com/puoklam/groupchat/notify"
)

type fixture struct {
	coord    *conversation.Coordinator
	users    *conversation.Directory
	notifier *mocks.MockNotifier
	store    *kv.Store
}

func setup(t *testing.T, opts ...conversation.Option) *fixture {
	t.Helper()
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	db, err := kv.Open("")
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	store := kv.NewStore(log, db)
	locker := conversation.NewKeyedMutex()
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	quota := conversation.NewQuotaGuard(conversation.DefaultQuotaLimit, conversation.DefaultQuotaWindow)
	reaper := conversation.NewReaper(log, store, locker)
	opts = append([]conversation.Option{conversation.WithHashCost(bcrypt.MinCost)}, opts...)

	f := &fixture{
		coord:    conversation.NewCoordinator(log, store, locker, notifier, quota, reaper, opts...),
		users:    conversation.NewDirectory(store),
		notifier: notifier,
		store:    store,
	}
	for _, u := range []string{"alice", "bob", "carol"} {
		_, err := f.users.Ensure(context.Background(), u, u+"@example.com", u)
		req.NoError(err)
	}
	return f
}

func recipientIDs(rs []notify.Recipient) []string {
	return lo.Map(rs, func(r notify.Recipient, _ int) string { return r.ID })
}

func (f *fixture) memberIDs(t *testing.T, name, asUser string) []string {
	t.Helper()
	members, err := f.coord.Members(context.Background(), name, asUser)
	require.NoError(t, err)
	return lo.Map(members, func(m conversation.Member, _ int) string { return m.UserID })
}

func TestCoordinator_TeamScenario(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()

	groupID, err := f.coord.CreateGroup(ctx, "Team", "alice", "")
	req.NoError(err)
	req.NotEmpty(groupID)

	// Given bob joins, only alice hears about it
	f.notifier.EXPECT().
		Broadcast(gomock.Any(), "bob@example.com", gomock.Any(), "bob").
		Do(func(evt notify.Event, _ string, rs []notify.Recipient, _ string) {
			req.Equal(notify.EventNewMember, evt.Kind())
			req.Equal("bob", evt.(notify.NewMemberEvent).NewMember.ID)
			req.Equal([]string{"alice"}, recipientIDs(rs))
		})
	req.NoError(f.coord.JoinGroup(ctx, "Team", "bob", ""))

	// When the owner tries to leave a populated group
	err = f.coord.LeaveGroup(ctx, "Team", "alice")
	req.ErrorIs(err, conversation.ErrOwnerCannotLeave)

	req.NoError(f.coord.TransferOwnership(ctx, "Team", "alice", "bob"))

	f.notifier.EXPECT().
		Broadcast(gomock.Any(), "alice@example.com", gomock.Any(), "alice").
		Do(func(evt notify.Event, _ string, rs []notify.Recipient, _ string) {
			req.Equal(notify.EventSomeoneLeft, evt.Kind())
			req.Equal([]string{"bob"}, recipientIDs(rs))
		})
	req.NoError(f.coord.LeaveGroup(ctx, "Team", "alice"))
	req.Equal([]string{"bob"}, f.memberIDs(t, "Team", "bob"))

	// The new owner cannot leave either, only dissolve
	err = f.coord.LeaveGroup(ctx, "Team", "bob")
	req.ErrorIs(err, conversation.ErrOwnerCannotLeave)
	f.notifier.EXPECT().Broadcast(gomock.Any(), "bob@example.com", gomock.Len(1), "")
	req.NoError(f.coord.DissolveGroup(ctx, "Team", "bob"))

	_, err = f.coord.GroupSummary(ctx, groupID)
	req.ErrorIs(err, conversation.ErrNotFound)
	err = f.coord.JoinGroup(ctx, "Team", "carol", "")
	req.ErrorIs(err, conversation.ErrNotFound)

	// and the name is free again
	_, err = f.coord.CreateGroup(ctx, "team", "carol", "")
	req.NoError(err)
}

func TestCoordinator_CreateGroup(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()

	_, err := f.coord.CreateGroup(ctx, "   ", "alice", "")
	req.ErrorIs(err, conversation.ErrInvalidArgument)

	id, err := f.coord.CreateGroup(ctx, "  Team ", "alice", "")
	req.NoError(err)

	_, err = f.coord.CreateGroup(ctx, "TEAM", "bob", "")
	req.ErrorIs(err, conversation.ErrAlreadyExists)

	s, err := f.coord.GroupSummary(ctx, id)
	req.NoError(err)
	req.Equal("Team", s.Name)
	req.Equal("alice", s.OwnerID)
	req.Equal(1, s.MemberCount)
	req.False(s.HasPassword)
	req.Equal([]string{"alice"}, f.memberIDs(t, "team", "alice"))
}

func TestCoordinator_ConcurrentCreateSameName(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()
	owners := []string{"alice", "bob", "carol", "dave", "erin", "frank"}

	errs := make([]error, len(owners))
	var wg sync.WaitGroup
	for i, owner := range owners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := "X"
			if i%2 == 1 {
				name = " x "
			}
			_, errs[i] = f.coord.CreateGroup(ctx, name, owner, "")
		}()
	}
	wg.Wait()

	succeeded := lo.CountBy(errs, func(err error) bool { return err == nil })
	req.Equal(1, succeeded)
	for _, err := range errs {
		if err != nil {
			req.ErrorIs(err, conversation.ErrAlreadyExists)
		}
	}
}

func TestCoordinator_ConcurrentDuplicateJoin(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()

	_, err := f.coord.CreateGroup(ctx, "Team", "alice", "")
	req.NoError(err)
	f.notifier.EXPECT().Broadcast(gomock.Any(), gomock.Any(), gomock.Any(), "bob").Times(1)

	const n = 10
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = f.coord.JoinGroup(ctx, "Team", "bob", "")
		}()
	}
	wg.Wait()

	req.Equal(1, lo.CountBy(errs, func(err error) bool { return err == nil }))
	for _, err := range errs {
		if err != nil {
			req.ErrorIs(err, conversation.ErrAlreadyMember)
		}
	}
	req.ElementsMatch([]string{"alice", "bob"}, f.memberIDs(t, "Team", "alice"))
}

func TestCoordinator_JoinWithPassword(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()

	id, err := f.coord.CreateGroup(ctx, "Secret", "alice", "hunter2")
	req.NoError(err)
	s, err := f.coord.GroupSummary(ctx, id)
	req.NoError(err)
	req.True(s.HasPassword)

	// Given a wrong password, nothing changes and nobody is told
	err = f.coord.JoinGroup(ctx, "Secret", "bob", "wrong")
	req.ErrorIs(err, conversation.ErrWrongCredential)
	err = f.coord.JoinGroup(ctx, "Secret", "bob", "")
	req.ErrorIs(err, conversation.ErrWrongCredential)
	req.Equal([]string{"alice"}, f.memberIDs(t, "Secret", "alice"))

	f.notifier.EXPECT().Broadcast(gomock.Any(), gomock.Any(), gomock.Any(), "bob")
	req.NoError(f.coord.JoinGroup(ctx, "secret", "bob", "  hunter2 "))

	err = f.coord.JoinGroup(ctx, "Secret", "bob", "hunter2")
	req.ErrorIs(err, conversation.ErrAlreadyMember)

	// The password is checked before membership
	err = f.coord.JoinGroup(ctx, "Secret", "alice", "wrong")
	req.ErrorIs(err, conversation.ErrWrongCredential)
}

func TestCoordinator_StoredPasswordIsNotTrimmed(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()

	id, err := f.coord.CreateGroup(ctx, "Secret", "alice", " pw ")
	req.NoError(err)
	s, err := f.coord.GroupSummary(ctx, id)
	req.NoError(err)
	req.True(s.HasPassword)

	// The supplied value trims to "pw", which is not " pw "
	err = f.coord.JoinGroup(ctx, "Secret", "bob", " pw ")
	req.ErrorIs(err, conversation.ErrWrongCredential)
	err = f.coord.JoinGroup(ctx, "Secret", "bob", "pw")
	req.ErrorIs(err, conversation.ErrWrongCredential)
	req.Equal([]string{"alice"}, f.memberIDs(t, "Secret", "alice"))
}

func TestCoordinator_UpdatePassword(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()

	id, err := f.coord.CreateGroup(ctx, "Team", "alice", "")
	req.NoError(err)

	err = f.coord.UpdatePassword(ctx, "Team", "bob", "pw")
	req.ErrorIs(err, conversation.ErrNotOwner)

	req.NoError(f.coord.UpdatePassword(ctx, "Team", "alice", "pw"))
	err = f.coord.JoinGroup(ctx, "Team", "bob", "")
	req.ErrorIs(err, conversation.ErrWrongCredential)

	// A blank password is still a password
	req.NoError(f.coord.UpdatePassword(ctx, "Team", "alice", "  "))
	s, err := f.coord.GroupSummary(ctx, id)
	req.NoError(err)
	req.True(s.HasPassword)
	err = f.coord.JoinGroup(ctx, "Team", "bob", "  ")
	req.ErrorIs(err, conversation.ErrWrongCredential)

	req.NoError(f.coord.UpdatePassword(ctx, "Team", "alice", ""))
	s, err = f.coord.GroupSummary(ctx, id)
	req.NoError(err)
	req.False(s.HasPassword)

	f.notifier.EXPECT().Broadcast(gomock.Any(), gomock.Any(), gomock.Any(), "bob")
	req.NoError(f.coord.JoinGroup(ctx, "Team", "bob", ""))
}

func TestCoordinator_LeaveGroup(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()

	_, err := f.coord.CreateGroup(ctx, "Team", "alice", "")
	req.NoError(err)

	err = f.coord.LeaveGroup(ctx, "Team", "bob")
	req.ErrorIs(err, conversation.ErrNotMember)

	err = f.coord.LeaveGroup(ctx, "Nowhere", "bob")
	req.ErrorIs(err, conversation.ErrNotFound)
	req.Contains(err.Error(), `"Nowhere"`)
}

func TestCoordinator_SoleOwnerCannotLeave(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()

	id, err := f.coord.CreateGroup(ctx, "Solo", "alice", "")
	req.NoError(err)

	err = f.coord.LeaveGroup(ctx, "Solo", "alice")
	req.ErrorIs(err, conversation.ErrOwnerCannotLeave)

	s, err := f.coord.GroupSummary(ctx, id)
	req.NoError(err)
	req.Equal(1, s.MemberCount)
	req.Equal([]string{"alice"}, f.memberIDs(t, "Solo", "alice"))
}

func TestCoordinator_LeaveReapsEmptiedGroup(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()

	id, err := f.coord.CreateGroup(ctx, "Team", "alice", "")
	req.NoError(err)
	f.notifier.EXPECT().Broadcast(gomock.Any(), gomock.Any(), gomock.Any(), "bob")
	req.NoError(f.coord.JoinGroup(ctx, "Team", "bob", ""))

	// Given the owner's membership was removed out of band
	req.NoError(f.store.Update(ctx, func(tx conversation.Tx) error {
		return tx.DeleteMembership(id, "alice")
	}))

	// Then the last leave removes the group
	f.notifier.EXPECT().Broadcast(gomock.Any(), "bob@example.com", gomock.Len(0), "bob")
	req.NoError(f.coord.LeaveGroup(ctx, "Team", "bob"))

	_, err = f.coord.GroupSummary(ctx, id)
	req.ErrorIs(err, conversation.ErrNotFound)
	err = f.coord.JoinGroup(ctx, "team", "carol", "")
	req.ErrorIs(err, conversation.ErrNotFound)
	req.Contains(err.Error(), `"team"`)
}

func TestCoordinator_SetMuted(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()

	_, err := f.coord.CreateGroup(ctx, "Team", "alice", "")
	req.NoError(err)

	req.NoError(f.coord.SetMuted(ctx, "Team", "alice", true))

	// When the same flag is set again
	err = f.coord.SetMuted(ctx, "Team", "alice", true)
	req.ErrorIs(err, conversation.ErrNoOp)

	members, err := f.coord.Members(ctx, "Team", "alice")
	req.NoError(err)
	req.Len(members, 1)
	req.True(members[0].Muted)

	req.NoError(f.coord.SetMuted(ctx, "Team", "alice", false))
	err = f.coord.SetMuted(ctx, "Team", "bob", true)
	req.ErrorIs(err, conversation.ErrNotMember)
}

func TestCoordinator_NonOwnerIsRejected(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()

	id, err := f.coord.CreateGroup(ctx, "Team", "alice", "")
	req.NoError(err)
	f.notifier.EXPECT().Broadcast(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(2)
	req.NoError(f.coord.JoinGroup(ctx, "Team", "bob", ""))
	req.NoError(f.coord.JoinGroup(ctx, "Team", "carol", ""))

	req.ErrorIs(f.coord.KickMember(ctx, "Team", "bob", "carol"), conversation.ErrNotOwner)
	req.ErrorIs(f.coord.DissolveGroup(ctx, "Team", "bob"), conversation.ErrNotOwner)
	req.ErrorIs(f.coord.TransferOwnership(ctx, "Team", "bob", "bob"), conversation.ErrNotOwner)
	req.ErrorIs(f.coord.UpdateInfo(ctx, "Team", "bob", "Renamed", ""), conversation.ErrNotOwner)

	s, err := f.coord.GroupSummary(ctx, id)
	req.NoError(err)
	req.Equal("alice", s.OwnerID)
	req.Equal("Team", s.Name)
	req.Equal(3, s.MemberCount)
}

func TestCoordinator_KickMember(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()

	_, err := f.coord.CreateGroup(ctx, "Team", "alice", "")
	req.NoError(err)
	f.notifier.EXPECT().Broadcast(gomock.Any(), gomock.Any(), gomock.Any(), "bob")
	req.NoError(f.coord.JoinGroup(ctx, "Team", "bob", ""))

	req.ErrorIs(f.coord.KickMember(ctx, "Team", "alice", "alice"), conversation.ErrOwnerCannotLeave)
	req.ErrorIs(f.coord.KickMember(ctx, "Team", "alice", "carol"), conversation.ErrNotFound)

	// Then the kicked user is told too
	f.notifier.EXPECT().
		Broadcast(gomock.Any(), "alice@example.com", gomock.Any(), "alice").
		Do(func(evt notify.Event, _ string, rs []notify.Recipient, _ string) {
			req.Equal(notify.EventSomeoneLeft, evt.Kind())
			req.Equal("bob", evt.(notify.SomeoneLeftEvent).LeftUser.ID)
			req.ElementsMatch([]string{"alice", "bob"}, recipientIDs(rs))
		})
	req.NoError(f.coord.KickMember(ctx, "Team", "alice", "bob"))
	req.Equal([]string{"alice"}, f.memberIDs(t, "Team", "alice"))
}

func TestCoordinator_TransferOwnership(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()

	id, err := f.coord.CreateGroup(ctx, "Team", "alice", "")
	req.NoError(err)

	req.ErrorIs(f.coord.TransferOwnership(ctx, "Team", "alice", "bob"), conversation.ErrNotFound)
	req.ErrorIs(f.coord.TransferOwnership(ctx, "Team", "alice", "alice"), conversation.ErrAlreadyOwner)

	f.notifier.EXPECT().Broadcast(gomock.Any(), gomock.Any(), gomock.Any(), "bob")
	req.NoError(f.coord.JoinGroup(ctx, "Team", "bob", ""))
	req.NoError(f.coord.TransferOwnership(ctx, "Team", "alice", "bob"))

	s, err := f.coord.GroupSummary(ctx, id)
	req.NoError(err)
	req.Equal("bob", s.OwnerID)
	req.ErrorIs(f.coord.TransferOwnership(ctx, "Team", "alice", "alice"), conversation.ErrNotOwner)
}

func TestCoordinator_DissolveGroup(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()

	id, err := f.coord.CreateGroup(ctx, "Team", "alice", "")
	req.NoError(err)
	f.notifier.EXPECT().Broadcast(gomock.Any(), gomock.Any(), gomock.Any(), "bob")
	req.NoError(f.coord.JoinGroup(ctx, "Team", "bob", ""))

	f.notifier.EXPECT().
		Broadcast(notify.Dissolve(id), "alice@example.com", gomock.Any(), "").
		Do(func(_ notify.Event, _ string, rs []notify.Recipient, _ string) {
			req.ElementsMatch([]string{"alice", "bob"}, recipientIDs(rs))
		})
	req.NoError(f.coord.DissolveGroup(ctx, "Team", "alice"))

	_, err = f.coord.GroupSummary(ctx, id)
	req.ErrorIs(err, conversation.ErrNotFound)
	_, err = f.coord.Members(ctx, "Team", "alice")
	req.ErrorIs(err, conversation.ErrNotFound)
}

func TestCoordinator_UpdateInfo(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()

	id, err := f.coord.CreateGroup(ctx, "Team", "alice", "")
	req.NoError(err)
	_, err = f.coord.CreateGroup(ctx, "Other", "bob", "")
	req.NoError(err)

	err = f.coord.UpdateInfo(ctx, "Team", "alice", "other", "")
	req.ErrorIs(err, conversation.ErrAlreadyExists)

	req.NoError(f.coord.UpdateInfo(ctx, "Team", "alice", "Crew", "https://img/crew.png"))
	s, err := f.coord.GroupSummary(ctx, id)
	req.NoError(err)
	req.Equal("Crew", s.Name)
	req.Equal("https://img/crew.png", s.Avatar)

	_, err = f.coord.Members(ctx, "Team", "alice")
	req.ErrorIs(err, conversation.ErrNotFound)

	// Changing only the case keeps the key
	req.NoError(f.coord.UpdateInfo(ctx, "crew", "alice", "CREW", ""))
	s, err = f.coord.GroupSummary(ctx, id)
	req.NoError(err)
	req.Equal("CREW", s.Name)
}

func TestCoordinator_Quota(t *testing.T) {
	req := require.New(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f := setup(t, conversation.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	for _, name := range []string{"g1", "g2", "g3", "g4", "g5"} {
		_, err := f.coord.CreateGroup(ctx, name, "alice", "")
		req.NoError(err)
	}
	_, err := f.coord.CreateGroup(ctx, "g6", "alice", "")
	req.ErrorIs(err, conversation.ErrQuotaExceeded)

	// Other owners are not affected
	_, err = f.coord.CreateGroup(ctx, "g6", "bob", "")
	req.NoError(err)

	now = now.Add(25 * time.Hour)
	_, err = f.coord.CreateGroup(ctx, "g7", "alice", "")
	req.NoError(err)
}

func TestCoordinator_PostMessage(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()

	id, err := f.coord.CreateGroup(ctx, "Team", "alice", "")
	req.NoError(err)
	f.notifier.EXPECT().Broadcast(gomock.Any(), gomock.Any(), gomock.Any(), "bob")
	req.NoError(f.coord.JoinGroup(ctx, "Team", "bob", ""))
	req.NoError(f.coord.SetMuted(ctx, "Team", "bob", true))

	err = f.coord.PostMessage(ctx, id, "alice", "  ")
	req.ErrorIs(err, conversation.ErrInvalidArgument)
	err = f.coord.PostMessage(ctx, id, "carol", "hi")
	req.ErrorIs(err, conversation.ErrNotMember)
	err = f.coord.PostMessage(ctx, "missing", "alice", "hi")
	req.ErrorIs(err, conversation.ErrNotFound)

	f.notifier.EXPECT().
		NewMessage(gomock.Any(), gomock.Any()).
		Do(func(msg notify.Message, rs []notify.Recipient) {
			req.Equal(id, msg.ConversationID)
			req.Equal("alice", msg.Sender.ID)
			req.Equal("hi", msg.Content)
			req.NotEmpty(msg.EncryptionKey)
			muted := lo.FilterMap(rs, func(r notify.Recipient, _ int) (string, bool) { return r.ID, r.Muted })
			req.Equal([]string{"bob"}, muted)
			req.ElementsMatch([]string{"alice", "bob"}, recipientIDs(rs))
		})
	req.NoError(f.coord.PostMessage(ctx, id, "alice", "hi"))

	members, err := f.coord.Members(ctx, "Team", "alice")
	req.NoError(err)
	for _, m := range members {
		req.Equal(m.UserID == "alice", !m.ReadAt.IsZero(), m.UserID)
	}
}

func TestCoordinator_MarkReadAndMembers(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()

	_, err := f.coord.CreateGroup(ctx, "Team", "alice", "")
	req.NoError(err)

	_, err = f.coord.Members(ctx, "Team", "bob")
	req.ErrorIs(err, conversation.ErrNotMember)
	req.ErrorIs(f.coord.MarkRead(ctx, "Team", "bob"), conversation.ErrNotMember)

	req.NoError(f.coord.MarkRead(ctx, "Team", "alice"))
	members, err := f.coord.Members(ctx, "Team", "alice")
	req.NoError(err)
	req.Len(members, 1)
	req.False(members[0].ReadAt.IsZero())
	req.Equal("alice@example.com", members[0].User.Email)
}
