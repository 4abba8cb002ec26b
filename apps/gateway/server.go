package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/mahaj/chatrelay/pkg/archive"
	"github.com/mahaj/chatrelay/pkg/auth"
	"github.com/mahaj/chatrelay/pkg/config"
	"github.com/mahaj/chatrelay/pkg/history"
	"github.com/mahaj/chatrelay/pkg/log"
	"github.com/mahaj/chatrelay/pkg/presence"
	"github.com/mahaj/chatrelay/pkg/relay"
	"github.com/mahaj/chatrelay/pkg/room"
	"github.com/mahaj/chatrelay/pkg/snowflake"
)

// gateway owns everything the relay server needs and releases it on Close.
type gateway struct {
	server   *http.Server
	handler  *relay.Handler
	registry *room.Registry
	closers  []func() error
}

func newGateway(ctx context.Context, cfg *config.Config) (*gateway, error) {
	g := &gateway{}
	l := log.L()

	tokens, err := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}

	admin, closer, err := history.Open(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open history store")
	}
	g.closers = append(g.closers, closer.Close)
	l.Info().Str(log.FieldBackend, cfg.History.Backend).Msg("history store ready")

	var store history.Store = admin
	if cfg.Kafka.Enabled {
		pub := archive.NewKafkaPublisher(cfg.Kafka)
		g.closers = append(g.closers, pub.Close)
		tee := archive.Tee(admin, pub)
		g.closers = append(g.closers, tee.Close)
		store = tee
		l.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("archiving to kafka")
	}

	nodes, err := snowflake.NewNode(cfg.Node.ID)
	if err != nil {
		g.Close()
		return nil, err
	}

	opts := relay.OptionsFromConfig(cfg.WebSocket)
	opts.IDs = nodes
	if cfg.Presence.Enabled {
		client := history.NewRedisClient(cfg.Redis)
		g.closers = append(g.closers, client.Close)
		opts.Presence = presence.NewTracker(client, cfg.Presence.KeyPrefix)
	}

	g.registry = room.NewRegistry(cfg.WebSocket.ChannelCapacity)
	g.handler = relay.NewHandler(g.registry, store, auth.NewRequestAuthenticator(tokens, cfg.Auth.CookieName), opts)

	mux := http.NewServeMux()
	mux.Handle("GET /ws/{room}", g.handler)
	mux.HandleFunc("GET /health", g.health)

	g.server = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           log.HTTPMiddleware(l)(mux),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return g, nil
}

func (g *gateway) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Shutdown stops accepting requests, then ends every running session.
func (g *gateway) Shutdown(ctx context.Context) error {
	err := g.server.Shutdown(ctx)
	g.handler.Close()
	return err
}

func (g *gateway) Close() {
	for i := len(g.closers) - 1; i >= 0; i-- {
		if err := g.closers[i](); err != nil {
			l := log.L()
			l.Warn().Err(err).Msg("failed to release resource")
		}
	}
}
