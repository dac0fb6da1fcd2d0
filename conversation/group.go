package conversation

import (
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/puoklam/groupchat/notify"
)

// Group is a group conversation record.
type Group struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	NameKey       string    `json:"nameKey"`
	HasPassword   bool      `json:"hasPassword"`
	JoinPassword  string    `json:"joinPassword"`
	OwnerID       string    `json:"ownerId"`
	Avatar        string    `json:"avatar"`
	EncryptionKey string    `json:"encryptionKey"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Membership is the sole definition of "user belongs to group".
// A zero ReadAt means the member never read the conversation.
type Membership struct {
	GroupID  string    `json:"groupId"`
	UserID   string    `json:"userId"`
	Muted    bool      `json:"muted"`
	ReadAt   time.Time `json:"readAt"`
	JoinedAt time.Time `json:"joinedAt"`
}

// User is the identity snapshot kept next to memberships so that fan-out
// knows where to deliver.
type User struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Nickname       string `json:"nickname"`
	CurrentChannel string `json:"currentChannel"`
	PushToken      string `json:"pushToken"`
}

// Member is a membership joined with its user.
type Member struct {
	Membership
	User User `json:"user"`
}

// Summary is the public view of a group.
type Summary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Avatar      string    `json:"avatar"`
	OwnerID     string    `json:"ownerId"`
	HasPassword bool      `json:"hasPassword"`
	CreatedAt   time.Time `json:"createdAt"`
	MemberCount int       `json:"memberCount"`
}

func (u User) summary() notify.UserSummary {
	return notify.UserSummary{ID: u.ID, Email: u.Email, NickName: u.Nickname}
}

func (u User) recipient(muted bool) notify.Recipient {
	return notify.Recipient{
		ID:        u.ID,
		Email:     u.Email,
		NickName:  u.Nickname,
		Channel:   u.CurrentChannel,
		PushToken: u.PushToken,
		Muted:     muted,
	}
}

func recipients(members []Member) []notify.Recipient {
	out := make([]notify.Recipient, 0, len(members))
	for _, m := range members {
		out = append(out, m.User.recipient(m.Muted))
	}
	return out
}

// NameKey folds a display name into the key used for uniqueness and lookup:
// surrounding space trimmed, Unicode case folded.
func NameKey(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}
