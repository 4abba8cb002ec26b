package archive

import (
	"context"
	"sync"
	"time"

	"github.com/mahaj/chatrelay/pkg/history"
	"github.com/mahaj/chatrelay/pkg/log"
	"github.com/mahaj/chatrelay/pkg/model"
)

const (
	// QueueSize bounds the messages waiting for the archive stream.
	QueueSize      = 1024
	publishTimeout = 10 * time.Second
)

type pending struct {
	ctx  context.Context
	room string
	msg  model.Message
}

// TeeStore queues every successful Append for the archive stream. Publishing
// happens on its own goroutine, so a slow broker never holds up the caller.
type TeeStore struct {
	history.Store
	pub   *Publisher
	queue chan pending

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

func Tee(store history.Store, pub *Publisher) *TeeStore {
	return newTee(store, pub, QueueSize)
}

func newTee(store history.Store, pub *Publisher, size int) *TeeStore {
	t := &TeeStore{
		Store: store,
		pub:   pub,
		queue: make(chan pending, size),
		done:  make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *TeeStore) Append(ctx context.Context, room string, msg model.Message) error {
	if err := t.Store.Append(ctx, room, msg); err != nil {
		return err
	}

	l := log.Ctx(ctx)
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		l.Warn().Str(log.FieldRoom, room).Str(log.FieldMessageID, msg.ID.String()).Msg("archive closed, message not published")
		return nil
	}

	select {
	case t.queue <- pending{ctx: log.WithLogger(context.Background(), l), room: room, msg: msg}:
	default:
		l.Warn().Str(log.FieldRoom, room).Str(log.FieldMessageID, msg.ID.String()).Msg("archive queue full, message dropped")
	}
	return nil
}

func (t *TeeStore) run() {
	defer close(t.done)
	for p := range t.queue {
		ctx, cancel := context.WithTimeout(p.ctx, publishTimeout)
		if err := t.pub.Publish(ctx, p.room, p.msg); err != nil {
			l := log.Ctx(p.ctx)
			l.Warn().Err(err).Str(log.FieldRoom, p.room).Str(log.FieldMessageID, p.msg.ID.String()).Msg("archive publish failed")
		}
		cancel()
	}
}

// Close stops accepting messages and waits for the queued ones to be published.
func (t *TeeStore) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		close(t.queue)
		t.mu.Unlock()
	})
	<-t.done
	return nil
}
