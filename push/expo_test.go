package push

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"github.com/stretchr/testify/require"

	"github.com/puoklam/groupchat/notify"
)

type fakePublisher struct {
	sent  []*expo.PushMessage
	err   error
	block chan struct{}
}

func (f *fakePublisher) Publish(m *expo.PushMessage) (expo.PushResponse, error) {
	if f.block != nil {
		<-f.block
	}
	f.sent = append(f.sent, m)
	if f.err != nil {
		return expo.PushResponse{}, f.err
	}
	return expo.PushResponse{Status: expo.SuccessStatus}, nil
}

func newTestExpo(p publisher) *Expo {
	return &Expo{client: p, log: logs.GetLoggerFromLevel(slog.LevelDebug)}
}

func TestExpo_Push(t *testing.T) {
	req := require.New(t)
	pub := &fakePublisher{}
	e := newTestExpo(pub)
	payload := []byte(`{"type":5,"groupId":"g1"}`)

	err := e.Push(context.Background(), notify.Recipient{ID: "bob", PushToken: "ExponentPushToken[xyz]"}, "alice@example.com", payload)

	req.NoError(err)
	req.Len(pub.sent, 1)
	msg := pub.sent[0]
	req.Equal([]expo.ExponentPushToken{"ExponentPushToken[xyz]"}, msg.To)
	req.Equal("alice@example.com", msg.Title)
	req.Equal("Someone joined your group", msg.Body)
	req.Equal(string(payload), msg.Data["event"])
}

func TestExpo_SkipsMissingToken(t *testing.T) {
	req := require.New(t)
	pub := &fakePublisher{}
	e := newTestExpo(pub)

	req.NoError(e.Push(context.Background(), notify.Recipient{ID: "bob"}, "", []byte("{}")))
	req.Empty(pub.sent)
}

func TestExpo_Errors(t *testing.T) {
	req := require.New(t)
	boom := errors.New("gateway down")
	e := newTestExpo(&fakePublisher{err: boom})

	err := e.Push(context.Background(), notify.Recipient{ID: "bob", PushToken: "not-a-token"}, "", []byte("{}"))
	req.Error(err)

	err = e.Push(context.Background(), notify.Recipient{ID: "bob", PushToken: "ExponentPushToken[xyz]"}, "", []byte("{}"))
	req.ErrorIs(err, boom)
}

func TestExpo_HonoursContext(t *testing.T) {
	req := require.New(t)
	pub := &fakePublisher{block: make(chan struct{})}
	defer close(pub.block)
	e := newTestExpo(pub)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := e.Push(ctx, notify.Recipient{ID: "bob", PushToken: "ExponentPushToken[xyz]"}, "", []byte("{}"))

	req.ErrorIs(err, context.DeadlineExceeded)
}

func TestDescribe(t *testing.T) {
	req := require.New(t)
	req.Equal("New message", describe([]byte(`{"type":0,"content":"secret"}`)))
	req.Equal("A group you were in was dissolved", describe([]byte(`{"type":7}`)))
	req.Equal("You have a new notification", describe([]byte(`garbage`)))
	req.Equal("You have a new notification", describe([]byte(`{"type":42}`)))
}
