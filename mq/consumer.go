package mq

import (
	"fmt"
	"log/slog"

	"github.com/nsqio/go-nsq"
)

// Subscriber attaches one NSQ consumer per socket session.
type Subscriber struct {
	log         *slog.Logger
	nsqdAddr    string
	lookupdAddr string
}

// NewSubscriber connects consumers through nsqlookupd when lookupdAddr is
// set and straight to nsqd otherwise.
func NewSubscriber(log *slog.Logger, nsqdAddr, lookupdAddr string) *Subscriber {
	return &Subscriber{log: log, nsqdAddr: nsqdAddr, lookupdAddr: lookupdAddr}
}

func (s *Subscriber) Subscribe(handle string, deliver func([]byte)) (func(), error) {
	cfg := nsq.NewConfig()
	consumer, err := nsq.NewConsumer(Topic(handle), "session#ephemeral", cfg)
	if err != nil {
		return nil, fmt.Errorf("nsq consumer: %w", err)
	}
	consumer.SetLoggerLevel(nsq.LogLevelWarning)
	consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		deliver(m.Body)
		return nil
	}))
	if s.lookupdAddr != "" {
		err = consumer.ConnectToNSQLookupd(s.lookupdAddr)
	} else {
		err = consumer.ConnectToNSQD(s.nsqdAddr)
	}
	if err != nil {
		consumer.Stop()
		return nil, fmt.Errorf("connect consumer: %w", err)
	}
	return func() {
		consumer.Stop()
		<-consumer.StopChan
		s.log.Debug("Session consumer stopped", "channel", handle)
	}, nil
}
