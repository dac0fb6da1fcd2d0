package conversation

import (
	"context"
	"time"

	"github.com/puoklam/groupchat/notify"
)

//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks

// Store is a transactional record store. Update runs fn atomically: either
// every write made through tx commits or none does.
type Store interface {
	View(ctx context.Context, fn func(tx Tx) error) error
	Update(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the record surface available inside a transaction. Lookups return
// nil, nil when the record does not exist.
type Tx interface {
	GroupByID(id string) (*Group, error)
	GroupByName(nameKey string) (*Group, error)
	// CreateGroup fails with ErrNameTaken if the name key is in use.
	CreateGroup(g *Group) error
	// SaveGroup fails with ErrNameTaken if a rename collides.
	SaveGroup(g *Group) error
	// DeleteGroup removes the group and every membership in it.
	DeleteGroup(id string) error
	GroupIDs() ([]string, error)
	CountOwnedSince(ownerID string, since time.Time) (int, error)

	Membership(groupID, userID string) (*Membership, error)
	// CreateMembership fails with ErrDuplicateMembership if the pair exists.
	CreateMembership(m *Membership) error
	SaveMembership(m *Membership) error
	DeleteMembership(groupID, userID string) error
	CountMemberships(groupID string) (int, error)
	Members(groupID string) ([]Member, error)

	User(id string) (*User, error)
	SaveUser(u *User) error
}

// Notifier receives committed membership changes. Implementations must not
// block and must not fail the caller.
type Notifier interface {
	Broadcast(evt notify.Event, contact string, recipients []notify.Recipient, exclude string)
	NewMessage(msg notify.Message, recipients []notify.Recipient)
}
