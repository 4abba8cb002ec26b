// Package relay serves the room websocket endpoint.
package relay

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mahaj/chatrelay/pkg/config"
	"github.com/mahaj/chatrelay/pkg/history"
	"github.com/mahaj/chatrelay/pkg/log"
	"github.com/mahaj/chatrelay/pkg/model"
	"github.com/mahaj/chatrelay/pkg/room"
	"github.com/mahaj/chatrelay/pkg/snowflake"
)

const defaultWriteWait = 10 * time.Second

// Authenticator resolves the identity of an incoming request.
type Authenticator interface {
	Authenticate(r *http.Request) (model.Identity, error)
}

// PresenceTracker is told when an identity enters and leaves a room.
type PresenceTracker interface {
	Join(ctx context.Context, room string, id model.Identity) error
	Leave(ctx context.Context, room string, id model.Identity) error
}

type Options struct {
	WriteWait      time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	AllowedOrigins []string

	// optional
	Presence PresenceTracker
	IDs      *snowflake.Node
}

// OptionsFromConfig maps the websocket section of the service config.
func OptionsFromConfig(cfg config.WebSocketConfig) Options {
	return Options{
		WriteWait:      cfg.WriteWait,
		PingInterval:   cfg.PingInterval,
		MaxMessageSize: cfg.MaxMessageSize,
		AllowedOrigins: cfg.AllowedOrigins,
	}
}

// Handler upgrades authenticated requests on /ws/{room} and runs one Session
// per connection for as long as the connection lives.
type Handler struct {
	registry *room.Registry
	store    history.Store
	auth     Authenticator
	opts     Options
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	active atomic.Int64
}

func NewHandler(registry *room.Registry, store history.Store, auth Authenticator, opts Options) *Handler {
	if opts.WriteWait <= 0 {
		opts.WriteWait = defaultWriteWait
	}
	if opts.IDs == nil {
		opts.IDs, _ = snowflake.NewNode(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handler{
		registry: registry,
		store:    store,
		auth:     auth,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.opts.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// ActiveSessions is the number of sessions currently running.
func (h *Handler) ActiveSessions() int64 {
	return h.active.Load()
}

func roomFromRequest(r *http.Request) string {
	if name := r.PathValue("room"); name != "" {
		return name
	}
	path := strings.TrimSuffix(r.URL.Path, "/")
	return path[strings.LastIndex(path, "/")+1:]
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l := log.Ctx(r.Context())

	name := roomFromRequest(r)
	if err := ValidateRoom(name); err != nil {
		l.Info().Err(err).Msg("rejected room name")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	identity, err := h.auth.Authenticate(r)
	if err != nil {
		l.Info().Err(err).Str(log.FieldRoom, name).Msg("unauthorized websocket request")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if !h.begin() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.wg.Done()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	channel := h.registry.GetOrCreate(name)
	id := h.opts.IDs.Generate()
	logger := l.With().
		Str(log.FieldRoom, name).
		Str(log.FieldSessionID, id.String()).
		Int64(log.FieldUserID, identity.ID).
		Str(log.FieldUsername, identity.Name).
		Logger()

	session := newSession(id, identity, conn, channel, h.store, h.opts, logger)

	h.active.Add(1)
	defer h.active.Add(-1)

	if p := h.opts.Presence; p != nil {
		if err := p.Join(h.ctx, name, identity); err != nil {
			logger.Warn().Err(err).Msg("presence join failed")
		}
		defer func() {
			// leave even when shutting down
			ctx, cancel := context.WithTimeout(context.Background(), h.opts.WriteWait)
			defer cancel()
			if err := p.Leave(ctx, name, identity); err != nil {
				logger.Warn().Err(err).Msg("presence leave failed")
			}
		}()
	}

	logger.Info().Int("subscribers", channel.Subscribers()).Msg("session started")
	if err := session.Run(h.ctx); err != nil {
		logger.Info().Err(err).Msg("session ended")
		return
	}
	logger.Info().Msg("session ended")
}

func (h *Handler) begin() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.wg.Add(1)
	return true
}

// Close ends every running session and waits for them to tear down. Later
// requests are refused.
func (h *Handler) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.cancel()
	h.wg.Wait()
}
