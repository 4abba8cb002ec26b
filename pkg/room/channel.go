package room

import (
	"sync"
	"sync/atomic"
)

// Channel is the broadcast channel of one room. Every subscriber sees frames
// in send order. A subscriber that falls more than the buffer capacity behind
// loses its oldest frames.
type Channel struct {
	name     string
	capacity int

	mu   sync.Mutex
	subs map[*Subscription]struct{}

	sent atomic.Uint64
}

func newChannel(name string, capacity int) *Channel {
	return &Channel{
		name:     name,
		capacity: capacity,
		subs:     make(map[*Subscription]struct{}),
	}
}

func (c *Channel) Name() string { return c.name }

func (c *Channel) Capacity() int { return c.capacity }

// Send delivers frame to every current subscriber and reports how many there
// were. It never blocks on a slow subscriber.
func (c *Channel) Send(frame []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sent.Add(1)
	for s := range c.subs {
		s.push(frame)
	}
	return len(c.subs)
}

// Subscribe registers a new receiver. Frames sent before the call are not
// delivered to it.
func (c *Channel) Subscribe() *Subscription {
	s := &Subscription{
		ch:      make(chan []byte, c.capacity),
		channel: c,
	}

	c.mu.Lock()
	c.subs[s] = struct{}{}
	c.mu.Unlock()

	return s
}

func (c *Channel) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Sent is the number of frames sent on the channel since creation.
func (c *Channel) Sent() uint64 {
	return c.sent.Load()
}

func (c *Channel) remove(s *Subscription) {
	c.mu.Lock()
	delete(c.subs, s)
	close(s.ch)
	c.mu.Unlock()
}

// Subscription is one receiver on a Channel.
type Subscription struct {
	ch      chan []byte
	channel *Channel
	lagged  atomic.Uint64
	once    sync.Once
}

// C yields frames in send order. It is closed once the subscription is.
func (s *Subscription) C() <-chan []byte {
	return s.ch
}

// Lagged is the number of frames dropped because the receiver fell behind.
func (s *Subscription) Lagged() uint64 {
	return s.lagged.Load()
}

// Close detaches the subscription from its channel. Safe to call repeatedly.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.channel.remove(s)
	})
}

// push must be called with the channel lock held.
func (s *Subscription) push(frame []byte) {
	for {
		select {
		case s.ch <- frame:
			return
		default:
		}

		select {
		case <-s.ch:
			s.lagged.Add(1)
		default:
		}
	}
}
