package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout     = 5 * time.Second
	DefaultParallelism = 16
)

// Fanout delivers events to every recipient on their live channel and on the
// best-effort channel. Delivery runs in the background: callers never wait
// on it and never see its failures, which are logged and dropped.
//
// Fanout is safe for concurrent use.
type Fanout struct {
	log           *slog.Logger
	live          LiveChannel
	bestEffort    BestEffortChannel
	systemContact string
	timeout       time.Duration
	parallelism   int

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

type Option func(*Fanout)

// WithTimeout bounds every single channel push.
func WithTimeout(d time.Duration) Option {
	return func(f *Fanout) { f.timeout = d }
}

// WithParallelism bounds how many recipients of one event are served at once.
func WithParallelism(n int) Option {
	return func(f *Fanout) { f.parallelism = n }
}

// WithSystemContact sets the sender address of friend-relationship events.
func WithSystemContact(contact string) Option {
	return func(f *Fanout) { f.systemContact = contact }
}

func NewFanout(log *slog.Logger, live LiveChannel, bestEffort BestEffortChannel, opts ...Option) *Fanout {
	f := &Fanout{
		log:         log,
		live:        live,
		bestEffort:  bestEffort,
		timeout:     DefaultTimeout,
		parallelism: DefaultParallelism,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type delivery struct {
	recipient  Recipient
	payload    []byte
	bestEffort bool
}

// Broadcast sends evt to every recipient except exclude. The same payload
// goes to both channels.
func (f *Fanout) Broadcast(evt Event, contact string, recipients []Recipient, exclude string) {
	payload, err := json.Marshal(evt)
	if err != nil {
		f.log.Error("Cannot encode event", "event", evt.Kind().String(), "error", err)
		return
	}
	targets := lo.Filter(recipients, func(r Recipient, _ int) bool {
		return exclude == "" || r.ID != exclude
	})
	deliveries := lo.Map(targets, func(r Recipient, _ int) delivery {
		return delivery{recipient: r, payload: payload, bestEffort: true}
	})
	f.dispatch(evt.Kind(), contact, deliveries)
}

// NewMessage sends a chat message to every recipient. Muted recipients and
// the sender get the live event only.
func (f *Fanout) NewMessage(msg Message, recipients []Recipient) {
	deliveries := make([]delivery, 0, len(recipients))
	for _, r := range recipients {
		payload, err := json.Marshal(msg.event(r.Muted))
		if err != nil {
			f.log.Error("Cannot encode event", "event", EventNewMessage.String(), "error", err)
			return
		}
		deliveries = append(deliveries, delivery{
			recipient:  r,
			payload:    payload,
			bestEffort: !r.Muted && r.ID != msg.Sender.ID,
		})
	}
	f.dispatch(EventNewMessage, msg.Sender.Email, deliveries)
}

func (f *Fanout) FriendRequest(receiver Recipient, requester UserSummary) {
	f.Broadcast(NewFriendRequest(requester.ID), requester.Email, []Recipient{receiver}, "")
}

func (f *Fanout) FriendDeleted(receiver Recipient) {
	f.Broadcast(WereDeleted(), f.systemContact, []Recipient{receiver}, "")
}

func (f *Fanout) FriendAccepted(receiver Recipient) {
	f.Broadcast(FriendAccepted(), f.systemContact, []Recipient{receiver}, "")
}

// Close stops accepting events and waits for in-flight deliveries until ctx
// is done. Events published after Close are dropped.
func (f *Fanout) Close(ctx context.Context) error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fanout) dispatch(kind EventType, contact string, deliveries []delivery) {
	if len(deliveries) == 0 {
		return
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		f.log.Debug("Fan-out closed, event dropped", "event", kind.String(), "recipients", len(deliveries))
		return
	}
	f.wg.Add(1)
	f.mu.Unlock()
	go func() {
		defer f.wg.Done()
		var g errgroup.Group
		g.SetLimit(f.parallelism)
		for _, d := range deliveries {
			g.Go(func() error {
				f.deliver(kind, contact, d)
				return nil
			})
		}
		_ = g.Wait()
	}()
}

func (f *Fanout) deliver(kind EventType, contact string, d delivery) {
	var wg sync.WaitGroup
	if d.recipient.Channel != NoChannel && f.live != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
			defer cancel()
			if err := f.live.Push(ctx, d.recipient.Channel, d.payload); err != nil {
				f.log.Warn("Live push failed",
					"event", kind.String(), "user_id", d.recipient.ID, "channel", d.recipient.Channel, "error", err)
			}
		}()
	}
	if d.bestEffort && f.bestEffort != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
			defer cancel()
			if err := f.bestEffort.Push(ctx, d.recipient, contact, d.payload); err != nil {
				f.log.Warn("Best-effort push failed",
					"event", kind.String(), "user_id", d.recipient.ID, "error", err)
			}
		}()
	}
	wg.Wait()
}
