package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "jwt", cfg.Auth.CookieName)
	require.Equal(t, "redis", cfg.History.Backend)
	require.Equal(t, "room:", cfg.History.KeyPrefix)
	require.Equal(t, MinChannelCapacity, cfg.WebSocket.ChannelCapacity)
	require.Equal(t, 10*time.Second, cfg.WebSocket.WriteWait)
	require.Zero(t, cfg.WebSocket.PingInterval)
	require.False(t, cfg.Kafka.Enabled)
	require.Empty(t, cfg.API.AllowedOrigins)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
server:
  port: 9000
history:
  backend: memory
api:
  allowed_origins: [http://localhost:3000]
websocket:
  channel_capacity: 2048
scylla:
  hosts: [a:9042, b:9042]
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("AUTH_JWT_SECRET", "from-env")

	cfg, err := Load(dir)
	require.NoError(t, err)

	require.Equal(t, 9000, cfg.Server.Port)
	require.Equal(t, "memory", cfg.History.Backend)
	require.Equal(t, 2048, cfg.WebSocket.ChannelCapacity)
	require.Equal(t, []string{"a:9042", "b:9042"}, cfg.Scylla.Hosts)
	require.Equal(t, "from-env", cfg.Auth.JWTSecret)
	require.Equal(t, []string{"http://localhost:3000"}, cfg.API.AllowedOrigins)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(t.TempDir())
		require.NoError(t, err)
		cfg.Auth.JWTSecret = "secret"
		return cfg
	}

	require.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"unknown backend", func(c *Config) { c.History.Backend = "postgres" }},
		{"small capacity", func(c *Config) { c.WebSocket.ChannelCapacity = 10 }},
		{"zero frame size", func(c *Config) { c.WebSocket.MaxMessageSize = 0 }},
		{"kafka without topic", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Topic = "" }},
		{"archive into own backend", func(c *Config) { c.Kafka.Enabled = true; c.History.Backend = "scylla" }},
		{"node out of range", func(c *Config) { c.Node.ID = 4096 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
