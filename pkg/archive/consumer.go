package archive

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/mahaj/chatrelay/pkg/config"
	"github.com/mahaj/chatrelay/pkg/history"
	"github.com/mahaj/chatrelay/pkg/log"
	"github.com/mahaj/chatrelay/pkg/model"
)

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer copies archived messages into a history store. Offsets are
// committed only after the store accepted the message.
type Consumer struct {
	reader     Reader
	sink       history.Store
	retryDelay time.Duration
}

func NewConsumer(r Reader, sink history.Store) *Consumer {
	return &Consumer{reader: r, sink: sink, retryDelay: time.Second}
}

func NewKafkaConsumer(cfg config.KafkaConfig, sink history.Store) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return NewConsumer(r, sink)
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	l := log.Ctx(ctx)
	l.Info().Msg("archive consumer started")

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.Info().Msg("archive consumer stopping")
				return nil
			}
			return errors.Wrap(err, "failed to fetch message")
		}

		if err := c.handle(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "failed to commit offset")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) error {
	l := log.Ctx(ctx)

	msg, err := model.Decode(m.Value)
	if err != nil {
		l.Warn().Err(err).Int("partition", m.Partition).Int64("offset", m.Offset).Msg("skipping undecodable archive record")
		return nil
	}

	room := string(m.Key)
	if room == "" {
		room = msg.Room
	}

	for {
		err := c.sink.Append(ctx, room, msg)
		if err == nil {
			l.Debug().Str(log.FieldRoom, room).Str(log.FieldMessageID, msg.ID.String()).Msg("archived message")
			return nil
		}

		l.Error().Err(err).Str(log.FieldRoom, room).Dur("retry_in", c.retryDelay).Msg("failed to archive message")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
