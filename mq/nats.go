package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const subjectPrefix = "live."

func Subject(handle string) string {
	return subjectPrefix + handle
}

// NATS is a live channel over core NATS subjects, one subject per session.
type NATS struct {
	nc  *nats.Conn
	log *slog.Logger
}

func ConnectNATS(log *slog.Logger, url string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("groupchat"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{nc: nc, log: log}, nil
}

// Push implements notify.LiveChannel. It returns once the server has the
// message, or when ctx is done.
func (n *NATS) Push(ctx context.Context, handle string, payload []byte) error {
	if err := n.nc.Publish(Subject(handle), payload); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return n.nc.FlushWithContext(ctx)
}

func (n *NATS) Subscribe(handle string, deliver func([]byte)) (func(), error) {
	sub, err := n.nc.Subscribe(Subject(handle), func(m *nats.Msg) {
		deliver(m.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			n.log.Debug("Unsubscribe failed", "channel", handle, "error", err)
		}
	}, nil
}

func (n *NATS) Close() {
	if err := n.nc.Drain(); err != nil {
		n.nc.Close()
	}
}
