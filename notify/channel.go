package notify

import "context"

//go:generate go run go.uber.org/mock/mockgen -source=channel.go -destination=../mocks/mock_channel.go -package=mocks

// NoChannel is the handle of a user with no live session.
const NoChannel = ""

// Recipient is everything the fanout needs to reach one user.
type Recipient struct {
	ID        string
	Email     string
	NickName  string
	Channel   string
	PushToken string
	Muted     bool
}

// LiveChannel delivers to an open client session.
type LiveChannel interface {
	Push(ctx context.Context, channel string, payload []byte) error
}

// BestEffortChannel delivers out of band (mobile push). contact is the
// address the notification appears to come from.
type BestEffortChannel interface {
	Push(ctx context.Context, recipient Recipient, contact string, payload []byte) error
}
