package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mahaj/chatrelay/pkg/history"
	"github.com/mahaj/chatrelay/pkg/log"
	"github.com/mahaj/chatrelay/pkg/model"
	"github.com/mahaj/chatrelay/pkg/room"
	"github.com/mahaj/chatrelay/pkg/snowflake"
)

// State is the lifecycle stage of a Session. It only moves forward.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	errPeerClosed   = errors.New("peer sent Close")
	errUnsubscribed = errors.New("subscription closed")
)

// Session relays one websocket connection to and from its room channel. The
// inbound task handles client frames, the outbound task writes every frame
// broadcast on the room. Whichever ends first ends the other.
type Session struct {
	id       snowflake.ID
	identity model.Identity
	room     string

	conn    *websocket.Conn
	channel *room.Channel
	sub     *room.Subscription
	store   history.Store
	opts    Options

	state     atomic.Int32
	lagged    uint64
	closeOnce sync.Once
	logger    zerolog.Logger
}

func newSession(id snowflake.ID, identity model.Identity, conn *websocket.Conn, channel *room.Channel, store history.Store, opts Options, logger zerolog.Logger) *Session {
	s := &Session{
		id:       id,
		identity: identity,
		room:     channel.Name(),
		conn:     conn,
		channel:  channel,
		sub:      channel.Subscribe(),
		store:    store,
		opts:     opts,
		logger:   logger,
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *Session) ID() snowflake.ID { return s.id }

func (s *Session) State() State {
	return State(s.state.Load())
}

// advance moves to next unless the session is already at or past it.
func (s *Session) advance(next State) {
	for {
		cur := s.state.Load()
		if State(cur) >= next {
			return
		}
		if s.state.CompareAndSwap(cur, int32(next)) {
			s.logger.Debug().Str(log.FieldState, next.String()).Msg("session state changed")
			return
		}
	}
}

// Run blocks until the session is closed, either by the peer, a transport
// error, or ctx.
func (s *Session) Run(ctx context.Context) error {
	ctx = log.WithLogger(ctx, s.logger)
	s.advance(StateActive)

	if s.opts.MaxMessageSize > 0 {
		s.conn.SetReadLimit(s.opts.MaxMessageSize)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer s.advance(StateClosing)
		return s.inbound(gctx)
	})
	g.Go(func() error {
		defer s.advance(StateClosing)
		return s.outbound(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		// unblocks a pending read
		_ = s.conn.SetReadDeadline(time.Now())
		return nil
	})

	err := g.Wait()
	s.close()

	switch {
	case errors.Is(err, errPeerClosed), errors.Is(err, context.Canceled):
		return nil
	case websocket.IsCloseError(errors.Cause(err), websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		return nil
	}
	return err
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.advance(StateClosing)
		s.sub.Close()

		deadline := time.Now().Add(s.opts.WriteWait)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = s.conn.Close()

		s.advance(StateClosed)
	})
}

func (s *Session) inbound(ctx context.Context) error {
	for {
		typ, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "read frame")
		}
		if typ != websocket.TextMessage {
			continue
		}

		if s.handleFrame(ctx, data) {
			return errPeerClosed
		}
	}
}

func (s *Session) outbound(ctx context.Context) error {
	var ping <-chan time.Time
	if s.opts.PingInterval > 0 {
		t := time.NewTicker(s.opts.PingInterval)
		defer t.Stop()
		ping = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case frame, ok := <-s.sub.C():
			if !ok {
				return errUnsubscribed
			}
			s.reportLag()

			_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return errors.Wrap(err, "write frame")
			}

		case <-ping:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteWait)); err != nil {
				return errors.Wrap(err, "write ping")
			}
		}
	}
}

func (s *Session) reportLag() {
	n := s.sub.Lagged()
	if n == s.lagged {
		return
	}
	s.logger.Warn().Uint64("dropped", n-s.lagged).Uint64("dropped_total", n).Msg("subscriber lagging, oldest frames dropped")
	s.lagged = n
}

// handleFrame processes one text frame and reports whether the peer asked to
// close.
func (s *Session) handleFrame(ctx context.Context, data []byte) bool {
	switch string(data) {
	case model.FrameClose:
		return true
	case model.FramePing:
		s.channel.Send([]byte(model.FramePong))
		return false
	case model.FramePong:
		return false
	}

	msg, err := model.Decode(data)
	if err != nil {
		s.logger.Debug().Err(err).Int("size", len(data)).Msg("ignoring undecodable frame")
		return false
	}

	switch msg.Kind {
	case model.KindSend:
		s.send(ctx, msg)
	case model.KindRetrieveMessages:
		s.retrieve(ctx)
	case model.KindReceive, model.KindMessagesRetrieved, model.KindReconnected, model.KindDisconnected:
		s.logger.Debug().Str(log.FieldKind, msg.Kind.String()).Msg("ignoring client frame")
	}
	return false
}

func (s *Session) send(ctx context.Context, msg model.Message) {
	received := msg.Received(s.room)
	author := s.identity
	received.Author = &author

	if err := s.store.Append(ctx, s.room, received); err != nil {
		s.logger.Error().Err(err).Str(log.FieldMessageID, received.ID.String()).Msg("failed to persist message")
	}
	s.broadcast(received)
}

func (s *Session) retrieve(ctx context.Context) {
	msgs, err := s.store.ReadAll(ctx, s.room)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read room history")
	}

	for _, m := range msgs {
		s.broadcast(m.For(s.identity))
	}
	s.broadcast(model.Retrieved(s.identity, s.room))

	s.logger.Debug().Int("replayed", len(msgs)).Msg("history replayed")
}

func (s *Session) broadcast(msg model.Message) {
	frame, err := msg.Encode()
	if err != nil {
		s.logger.Error().Err(err).Str(log.FieldMessageID, msg.ID.String()).Msg("failed to encode message")
		return
	}
	s.channel.Send(frame)
}
