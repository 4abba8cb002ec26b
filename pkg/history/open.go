package history

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/mahaj/chatrelay/pkg/config"
	"github.com/mahaj/chatrelay/pkg/db"
	"github.com/mahaj/chatrelay/pkg/snowflake"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

var nopCloser = closerFunc(func() error { return nil })

// Open builds the backend named by cfg.History.Backend. The returned closer
// releases its connections.
func Open(ctx context.Context, cfg *config.Config) (Admin, io.Closer, error) {
	switch cfg.History.Backend {
	case "memory":
		return NewMemory(), nopCloser, nil

	case "redis":
		client := NewRedisClient(cfg.Redis)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, unavailable(err, "failed to reach redis at %s", cfg.Redis.Address)
		}
		return NewRedis(client, cfg.History.KeyPrefix), client, nil

	case "scylla":
		if err := db.CreateKeyspace(cfg.Scylla.Hosts, cfg.Scylla.Keyspace, cfg.Scylla.Timeout); err != nil {
			return nil, nil, err
		}
		session, err := db.NewSession(cfg.Scylla.Hosts, cfg.Scylla.Keyspace, cfg.Scylla.Timeout)
		if err != nil {
			return nil, nil, err
		}
		if err := session.EnsureSchema(); err != nil {
			session.Close()
			return nil, nil, err
		}
		node, err := snowflake.NewNode(cfg.Node.ID)
		if err != nil {
			session.Close()
			return nil, nil, err
		}
		return NewScylla(session, node), closerFunc(func() error { session.Close(); return nil }), nil

	default:
		return nil, nil, errors.Errorf("unknown history backend %q", cfg.History.Backend)
	}
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
