package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes user events keyed by user id, so every change to
// one user lands on the same partition in order.
type KafkaNotifier struct {
	w messageWriter
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			// sends are synchronous on the request path; flush each event
			// instead of waiting out the default 1s batch window
			BatchSize:    1,
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 2 * time.Second,
		},
	}
}

func (n *KafkaNotifier) NotifyUser(ctx context.Context, ev UserEvent) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("%s: %w", ev.Type, err)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Type, err)
	}

	err = n.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.UserID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}

	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.w.Close()
}
