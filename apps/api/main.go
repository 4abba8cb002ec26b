package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mahaj/chatrelay/pkg/auth"
	"github.com/mahaj/chatrelay/pkg/config"
	"github.com/mahaj/chatrelay/pkg/history"
	"github.com/mahaj/chatrelay/pkg/log"
	"github.com/mahaj/chatrelay/pkg/presence"
)

func newRouter(h *HTTPHandler, allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(log.GinMiddleware(log.L()))
	r.Use(CORSMiddleware(allowedOrigins))
	h.RegisterRoutes(r)
	return r
}

func main() {
	configPath := flag.String("config", "", "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		l := log.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Log.ServiceName == "" {
		cfg.Log.ServiceName = "api"
	}
	log.Init(cfg.Log)
	logger := log.L()

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tokens, err := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token manager")
	}

	store, closer, err := history.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open history store")
	}
	defer closer.Close()

	var members Members
	if cfg.Presence.Enabled {
		client := history.NewRedisClient(cfg.Redis)
		defer client.Close()
		members = presence.NewTracker(client, cfg.Presence.KeyPrefix)
	}

	if cfg.API.DevLogin {
		logger.Warn().Msg("development login enabled: any identity can obtain a token")
	}

	gin.SetMode(gin.ReleaseMode)
	handler := NewHTTPHandler(store, members, auth.NewRequestAuthenticator(tokens, cfg.Auth.CookieName), cfg.API.DevLogin)
	server := &http.Server{
		Addr:              cfg.API.Addr(),
		Handler:           newRouter(handler, cfg.API.AllowedOrigins),
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Str(log.FieldBackend, cfg.History.Backend).Msg("api starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api forced to shutdown")
	}
	logger.Info().Msg("api stopped")
}
