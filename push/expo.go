// Package push delivers events to mobile devices through the Expo push
// service. Delivery is best effort: a user without a registered token is
// skipped silently.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"

	"github.com/puoklam/groupchat/notify"
)

type publisher interface {
	Publish(message *expo.PushMessage) (expo.PushResponse, error)
}

type Expo struct {
	client publisher
	log    *slog.Logger
}

// NewExpo builds a client for the public Expo endpoint. accessToken is
// optional and only needed when enhanced push security is on.
func NewExpo(log *slog.Logger, accessToken string, timeout time.Duration) *Expo {
	httpClient := &http.Client{Timeout: timeout}
	if accessToken != "" {
		httpClient.Transport = bearer{token: accessToken, next: http.DefaultTransport}
	}
	return &Expo{
		client: expo.NewPushClient(&expo.ClientConfig{HTTPClient: httpClient}),
		log:    log,
	}
}

type bearer struct {
	token string
	next  http.RoundTripper
}

func (b bearer) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Authorization", "Bearer "+b.token)
	return b.next.RoundTrip(r)
}

// Push implements notify.BestEffortChannel.
func (e *Expo) Push(ctx context.Context, to notify.Recipient, contact string, payload []byte) error {
	if to.PushToken == "" {
		return nil
	}
	token, err := expo.NewExponentPushToken(to.PushToken)
	if err != nil {
		return fmt.Errorf("push token of %s: %w", to.ID, err)
	}
	msg := &expo.PushMessage{
		To:       []expo.ExponentPushToken{token},
		Title:    contact,
		Body:     describe(payload),
		Data:     map[string]string{"event": string(payload)},
		Sound:    "default",
		Priority: expo.DefaultPriority,
	}

	errc := make(chan error, 1)
	go func() {
		resp, err := e.client.Publish(msg)
		if err == nil {
			err = resp.ValidateResponse()
		}
		errc <- err
	}()
	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("expo publish: %w", err)
		}
		e.log.Debug("Push sent", "user_id", to.ID)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// describe renders the notification body shown on the lock screen.
func describe(payload []byte) string {
	var head struct {
		Type notify.EventType `json:"type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return "You have a new notification"
	}
	switch head.Type {
	case notify.EventNewMessage:
		// Content is end-to-end encrypted; the body stays generic.
		return "New message"
	case notify.EventNewFriendRequest:
		return "You have a new friend request"
	case notify.EventWereDeleted:
		return "A friend removed you"
	case notify.EventFriendAccepted:
		return "Your friend request was accepted"
	case notify.EventNewMember:
		return "Someone joined your group"
	case notify.EventSomeoneLeft:
		return "Someone left your group"
	case notify.EventDissolve:
		return "A group you were in was dissolved"
	default:
		return "You have a new notification"
	}
}
