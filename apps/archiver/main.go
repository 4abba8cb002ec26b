package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mahaj/chatrelay/pkg/archive"
	"github.com/mahaj/chatrelay/pkg/config"
	"github.com/mahaj/chatrelay/pkg/db"
	"github.com/mahaj/chatrelay/pkg/history"
	"github.com/mahaj/chatrelay/pkg/log"
	"github.com/mahaj/chatrelay/pkg/snowflake"
)

func main() {
	configPath := flag.String("config", "", "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		l := log.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Log.ServiceName == "" {
		cfg.Log.ServiceName = "archiver"
	}
	log.Init(cfg.Log)
	logger := log.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = log.WithLogger(ctx, logger)

	// Schema creation belongs in migrations; relayctl schema create does the same.
	if err := db.CreateKeyspace(cfg.Scylla.Hosts, cfg.Scylla.Keyspace, cfg.Scylla.Timeout); err != nil {
		logger.Fatal().Err(err).Msg("failed to create keyspace")
	}
	session, err := db.NewSession(cfg.Scylla.Hosts, cfg.Scylla.Keyspace, cfg.Scylla.Timeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to ScyllaDB")
	}
	defer session.Close()
	if err := session.EnsureSchema(); err != nil {
		logger.Fatal().Err(err).Msg("failed to create schema")
	}

	node, err := snowflake.NewNode(cfg.Node.ID)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid node id")
	}

	consumer := archive.NewKafkaConsumer(cfg.Kafka, history.NewScylla(session, node))
	defer consumer.Close()

	logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Str("group", cfg.Kafka.GroupID).Msg("archiver starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(gctx) })
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("archiver stopped with error")
		return
	}
	logger.Info().Msg("archiver stopped")
}
