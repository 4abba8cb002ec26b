// Package archive streams relayed chat messages to Kafka and copies them from
// there into a long-term history store.
package archive

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/mahaj/chatrelay/pkg/config"
	"github.com/mahaj/chatrelay/pkg/model"
)

// Writer is the part of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer Writer
}

func NewPublisher(w Writer) *Publisher {
	return &Publisher{writer: w}
}

func NewKafkaPublisher(cfg config.KafkaConfig) *Publisher {
	return NewPublisher(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	})
}

// Publish writes msg keyed by room, so one room's messages stay on one
// partition and keep their order.
func (p *Publisher) Publish(ctx context.Context, room string, msg model.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return errors.Wrap(err, "failed to encode message")
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(room),
		Value: data,
		Time:  msg.Timestamp,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to publish message %s", msg.ID)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
